// Package templates resolves layout names to template files and renders them.
//
// Layouts are html/template files looked up in an ordered list of
// directories: the first directory holding the file wins. Files under a
// "partials" subdirectory of any search directory are parsed along with the
// layout, so layouts can {{template "partials/header.html" .}}.
package templates

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// DefaultLayout is used when neither the page nor the template map names one.
const DefaultLayout = "application.html"

// ErrTemplateNotFound is returned when no search directory holds the layout.
var ErrTemplateNotFound = errors.New("template not found")

// Template is a compiled layout bound to the file it was read from.
type Template struct {
	Path string
	tmpl *template.Template
	deps []string
}

// Execute renders the layout with data.
func (t *Template) Execute(data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	err := t.tmpl.Execute(&buf, data)
	if err != nil {
		return buf.Bytes(), fmt.Errorf("execute %s: %w", t.Path, err)
	}
	return buf.Bytes(), nil
}

// Loader compiles layouts. Without caching every Load reads and compiles the
// file again, so edits are picked up immediately.
type Loader struct {
	fs    afero.Fs
	funcs template.FuncMap

	mu    sync.Mutex
	cache map[string]*Template
}

// NewLoader returns a Loader on fs. With cache set, compiled templates are
// kept until Invalidate or Reset.
func NewLoader(fs afero.Fs, cache bool) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	l := &Loader{
		fs:    fs,
		funcs: Funcs(),
	}
	if cache {
		l.cache = map[string]*Template{}
	}
	return l
}

// FileName returns name with ".html" appended unless it has an extension.
func FileName(name string) string {
	if filepath.Ext(name) != "" {
		return name
	}
	return name + ".html"
}

// Resolve returns the path of the first file named after name in dirs.
func (l *Loader) Resolve(name string, dirs []string) (string, error) {
	fileName := FileName(name)

	seen := map[string]struct{}{}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, fileName)
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}

		info, err := l.fs.Stat(candidate)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if info.Mode().IsRegular() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %s in %s", ErrTemplateNotFound, fileName, strings.Join(dirs, ", "))
}

// Load resolves and compiles the layout name.
func (l *Loader) Load(name string, dirs []string) (*Template, error) {
	p, err := l.Resolve(name, dirs)
	if err != nil {
		return nil, err
	}

	key := p + "\x00" + strings.Join(dirs, "\x00")
	if l.cache != nil {
		l.mu.Lock()
		t, ok := l.cache[key]
		l.mu.Unlock()
		if ok {
			return t, nil
		}
	}

	t, err := l.compile(p, dirs)
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		l.mu.Lock()
		l.cache[key] = t
		l.mu.Unlock()
	}
	return t, nil
}

func (l *Loader) compile(p string, dirs []string) (*Template, error) {
	src, err := afero.ReadFile(l.fs, p)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(filepath.Base(p)).Funcs(l.funcs).Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p, err)
	}

	t := &Template{Path: p, tmpl: tmpl, deps: []string{p}}

	// last directory first, so partials of earlier directories replace them
	for i := len(dirs) - 1; i >= 0; i-- {
		partials, err := l.partials(dirs[i])
		if err != nil {
			return nil, err
		}
		for _, partial := range partials {
			body, err := afero.ReadFile(l.fs, partial)
			if err != nil {
				return nil, err
			}
			rel, _ := filepath.Rel(dirs[i], partial)
			_, err = tmpl.New(filepath.ToSlash(rel)).Parse(string(body))
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", partial, err)
			}
			t.deps = append(t.deps, partial)
		}
	}

	return t, nil
}

func (l *Loader) partials(dir string) ([]string, error) {
	files, err := afero.Glob(l.fs, filepath.Join(dir, "partials", "*.html"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Invalidate drops every cached template compiled from path.
func (l *Loader) Invalidate(path string) {
	if l.cache == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, t := range l.cache {
		for _, d := range t.deps {
			if d == path {
				delete(l.cache, k)
				break
			}
		}
	}
}

// Reset empties the cache.
func (l *Loader) Reset() {
	if l.cache == nil {
		return
	}
	l.mu.Lock()
	l.cache = map[string]*Template{}
	l.mu.Unlock()
}

// LayoutName picks the layout of a page: its own layout, then the template
// map entry for its path, then DefaultLayout.
func LayoutName(layout, relPath string, templateMap map[string]string) string {
	if layout != "" {
		return layout
	}
	if name, ok := templateMap[filepath.ToSlash(relPath)]; ok && name != "" {
		return name
	}
	return DefaultLayout
}

// Apply renders data through the layout selected by LayoutName. A missing
// layout returns ErrTemplateNotFound. Execution errors are returned with the
// partial output.
func (l *Loader) Apply(data interface{}, layout, relPath string, templateMap map[string]string, dirs []string) ([]byte, error) {
	t, err := l.Load(LayoutName(layout, relPath, templateMap), dirs)
	if err != nil {
		return nil, err
	}
	return t.Execute(data)
}
