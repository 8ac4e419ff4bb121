package content

import (
	"io/fs"
	"path/filepath"
)

// CopyBuilder copies files that are not built byte for byte.
type CopyBuilder struct {
	builder *Builder
}

func (cp *CopyBuilder) CanHandle(rel string, info fs.FileInfo) bool {
	return info.Mode().IsRegular()
}

func (cp *CopyBuilder) Process(rel string, info fs.FileInfo) (*Page, error) {
	b := cp.builder
	src := filepath.Join(b.App.HTMLPath, rel)
	out := OutFilePath(nil, b.App.OutputPath, rel)

	b.log.Debug("builder", "copy", "msg", "copying", "file", src, "out", out)
	_, err := b.writer.Copy(src, out)
	return nil, err
}
