// Package filewriter writes build artifacts, creating parent directories as
// needed and minifying text assets when enabled.
package filewriter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
)

var mediatypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
}

type Minifier interface {
	Writer(string, io.WriteCloser) io.WriteCloser
}

type TDMinifier struct {
	Minifier *minify.M
}

func (m *TDMinifier) Writer(mediatype string, out io.WriteCloser) io.WriteCloser {
	return &closeBoth{WriteCloser: m.Minifier.Writer(mediatype, out), out: out}
}

type NOOPMinifier struct {
}

func (m *NOOPMinifier) Writer(mediatype string, out io.WriteCloser) io.WriteCloser {
	return out
}

// closeBoth flushes the minifier before closing the file under it.
type closeBoth struct {
	io.WriteCloser
	out io.WriteCloser
}

func (c *closeBoth) Close() error {
	err := c.WriteCloser.Close()
	if cerr := c.out.Close(); err == nil {
		err = cerr
	}
	return err
}

func NewTDMinifier() *TDMinifier {
	minifier := minify.New()
	minifier.AddFunc("text/css", css.Minify)
	minifier.Add("text/html", &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	minifier.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)
	return &TDMinifier{
		Minifier: minifier,
	}
}

// Writer writes files under any root of fs.
type Writer struct {
	fs       afero.Fs
	minifier Minifier
}

// New returns a Writer on fs. When minify is set, HTML, CSS and JS files are
// minified as they are written.
func New(fs afero.Fs, minify bool) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	var m Minifier = &NOOPMinifier{}
	if minify {
		m = NewTDMinifier()
	}
	return &Writer{fs: fs, minifier: m}
}

func (w *Writer) Fs() afero.Fs {
	return w.fs
}

// Write stores data at p and returns p.
func (w *Writer) Write(p string, data []byte) (string, error) {
	err := w.fs.MkdirAll(filepath.Dir(p), 0o755)
	if err != nil {
		return "", err
	}

	f, err := w.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}

	var out io.WriteCloser = f
	if mt, ok := mediatypes[strings.ToLower(filepath.Ext(p))]; ok {
		out = w.minifier.Writer(mt, f)
	}

	_, err = out.Write(data)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	return p, nil
}

// Copy copies the regular file src to dst byte for byte.
func (w *Writer) Copy(src, dst string) (int64, error) {
	sourceFileStat, err := w.fs.Stat(src)
	if err != nil {
		return 0, err
	}

	if !sourceFileStat.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", src)
	}

	source, err := w.fs.Open(src)
	if err != nil {
		return 0, err
	}
	defer source.Close()

	err = w.fs.MkdirAll(filepath.Dir(dst), 0o755)
	if err != nil {
		return 0, err
	}

	destination, err := w.fs.Create(dst)
	if err != nil {
		return 0, err
	}
	defer destination.Close()
	return io.Copy(destination, source)
}

// CopyDir copies the tree under src into dst. A missing src returns an error
// satisfying os.IsNotExist.
func (w *Writer) CopyDir(src, dst string) error {
	info, err := w.fs.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}

	return afero.Walk(w.fs, src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return w.fs.MkdirAll(target, 0o755)
		}
		_, err = w.Copy(p, target)
		return err
	})
}
