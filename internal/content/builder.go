// Package content builds the pages of an app: front matter, body templates,
// markdown, summary, layout and asset rewriting, then output.
package content

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/afero"
	"github.com/toastate/toastblog/internal/assets"
	"github.com/toastate/toastblog/internal/filewriter"
	"github.com/toastate/toastblog/internal/settings"
	"github.com/toastate/toastblog/internal/templates"
	"github.com/toastate/toastblog/internal/tlogger"
)

// FileBuilder turns one content file into output.
type FileBuilder interface {
	CanHandle(rel string, info fs.FileInfo) bool
	Process(rel string, info fs.FileInfo) (*Page, error)
}

// Builder builds the content tree of one app.
type Builder struct {
	App *settings.App

	fs       afero.Fs
	writer   *filewriter.Writer
	loader   *templates.Loader
	rewriter *assets.Rewriter

	ignore       []glob.Glob
	templateDirs map[string]struct{}

	fileBuilders []FileBuilder
	log          tlogger.Logger
}

// New returns a Builder for app. manifest may be nil.
func New(app *settings.App, manifest assets.Manifest, w *filewriter.Writer, loader *templates.Loader) *Builder {
	if w == nil {
		w = filewriter.New(nil, false)
	}
	if loader == nil {
		loader = templates.NewLoader(w.Fs(), false)
	}

	b := &Builder{
		App:    app,
		fs:     w.Fs(),
		writer: w,
		loader: loader,
		rewriter: &assets.Rewriter{
			PublicPath:  app.PublicPath,
			Manifest:    manifest,
			BuildSuffix: app.Bundle.BuildSuffix,
		},
		templateDirs: normalizedSet(app.TemplateDirs),
		log:          tlogger.With("app", app.Name),
	}

	for _, pattern := range app.IgnoreFiles {
		g, err := glob.Compile(pattern)
		if err != nil {
			b.log.Warn("msg", "Invalid ignore pattern", "pattern", pattern, "err", err)
			continue
		}
		b.ignore = append(b.ignore, g)
	}

	b.fileBuilders = []FileBuilder{
		&HTMLBuilder{builder: b},
		&CopyBuilder{builder: b},
	}
	return b
}

// SetManifest replaces the asset manifest used for rewriting.
func (b *Builder) SetManifest(m assets.Manifest) {
	b.rewriter.Manifest = m
}

func normalizedSet(dirs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(dirs))
	for _, d := range dirs {
		set[normalize(d)] = struct{}{}
	}
	return set
}

func normalize(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// Ignored reports whether the file name matches an ignore pattern.
func (b *Builder) Ignored(name string) bool {
	for _, g := range b.ignore {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// IsTemplateDir reports whether fullPath is one of the app's template directories.
func (b *Builder) IsTemplateDir(fullPath string) bool {
	_, ok := b.templateDirs[normalize(fullPath)]
	return ok
}

// ShouldHandle reports whether fullPath is content: not ignored and not a template directory.
func (b *Builder) ShouldHandle(fullPath string) bool {
	return !b.Ignored(filepath.Base(fullPath)) && !b.IsTemplateDir(fullPath)
}

// Rel returns fullPath relative to the app's content root.
func (b *Builder) Rel(fullPath string) (string, error) {
	return filepath.Rel(b.App.HTMLPath, fullPath)
}

// WriteContent builds or copies the file at fullPath into the output tree.
// Copied files return a nil page.
func (b *Builder) WriteContent(fullPath string) (*Page, error) {
	info, err := b.fs.Stat(fullPath)
	if err != nil {
		return nil, err
	}
	rel, err := b.Rel(fullPath)
	if err != nil {
		return nil, err
	}

	for _, fb := range b.fileBuilders {
		if fb.CanHandle(rel, info) {
			return fb.Process(rel, info)
		}
	}
	return nil, nil
}

// BuildContents walks inputPath depth first and writes every content file.
// A missing or empty inputPath yields no pages.
func (b *Builder) BuildContents(inputPath string) ([]*Page, error) {
	if inputPath == "" {
		return nil, nil
	}
	if _, err := b.fs.Stat(inputPath); err != nil {
		if os.IsNotExist(err) {
			b.log.Debug("msg", "No content folder", "path", inputPath)
			return nil, nil
		}
		return nil, err
	}

	var pages []*Page
	err := afero.Walk(b.fs, inputPath, func(fullPath string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fullPath != inputPath && !b.ShouldHandle(fullPath) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		page, err := b.WriteContent(fullPath)
		if err != nil {
			b.log.Error("msg", "Error processing file", "file", fullPath, "err", err)
			return err
		}
		if page != nil {
			pages = append(pages, page)
		}
		return nil
	})
	if err != nil {
		return pages, err
	}
	return pages, nil
}

func (b *Builder) hasExt(exts []string, rel string) bool {
	ext := strings.ToLower(filepath.Ext(rel))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
