package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
	"github.com/toastate/toastblog/internal/tlogger"
)

const (
	bundleOverrideFile  = "webpack.json"
	optionsOverrideFile = "options.json"
	defaultEntryFile    = "app.jsx"
)

// BundleSettings returns the bundler parameters of one entry, with the
// optional webpack.json of appPath decoded over the defaults.
func (b *Builder) BundleSettings(name, file, appPath string, port int, opts Options) (Bundle, error) {
	production := IsProduction(opts.Stage)

	bundle := Bundle{
		Name:          name,
		File:          file,
		Path:          appPath,
		ShouldLint:    opts.ShouldLint,
		Stage:         opts.Stage,
		Production:    production,
		BuildSuffix:   b.cfg.BuildSuffix,
		Port:          port,
		Filename:      "[name]",
		ChunkFilename: "[id]",
	}
	if production {
		bundle.Filename = "[name]-[hash]"
		bundle.ChunkFilename = "[id]-[hash]"
	}

	custom, err := b.readOverride(filepath.Join(appPath, bundleOverrideFile))
	if err != nil {
		return Bundle{}, err
	}
	if custom != nil {
		if err := decodeOver(custom, &bundle); err != nil {
			return Bundle{}, fmt.Errorf("decode %s of %s: %w", bundleOverrideFile, name, err)
		}
	}

	return bundle, nil
}

// AppSettings returns the settings of the app living in <apps>/<name>. The
// app's options.json is decoded over a copy of opts; opts itself is untouched.
func (b *Builder) AppSettings(name string, port int, opts Options) (*App, error) {
	appPath := filepath.Join(b.cfg.Path(b.cfg.AppsDir), name)
	htmlPath := filepath.Join(appPath, "html")
	staticPath := filepath.Join(appPath, "static")

	combined := opts.clone()
	custom, err := b.readOverride(filepath.Join(appPath, optionsOverrideFile))
	if err != nil {
		return nil, err
	}
	if custom != nil {
		if err := mergeOver(custom, &combined); err != nil {
			return nil, fmt.Errorf("decode %s of %s: %w", optionsOverrideFile, name, err)
		}
	}

	bundle, err := b.BundleSettings(name, defaultEntryFile, appPath, port, combined)
	if err != nil {
		return nil, err
	}

	app := &App{
		Name:       name,
		Paths:      b.OutputPaths(name, port, combined),
		Bundle:     bundle,
		HTMLPath:   htmlPath,
		StaticPath: staticPath,
		TemplateDirs: union(
			[]string{filepath.Join(htmlPath, "layouts")},
			b.cfg.ThemeTemplateDirs(),
		),
	}
	if err := b.fillHTML(app, combined); err != nil {
		return nil, fmt.Errorf("html options of %s: %w", name, err)
	}

	return app, nil
}

// ThemeSettings returns a bundle-only app for one file of a theme's entries directory.
func (b *Builder) ThemeSettings(entryFile, entriesPath, themeName string, port int, opts Options) (*App, error) {
	entryName := strings.TrimSuffix(entryFile, filepath.Ext(entryFile))

	themeOpts := opts.clone()
	themeOpts.OnlyPack = true

	bundle, err := b.BundleSettings(entryName, entryFile, entriesPath, port, themeOpts)
	if err != nil {
		return nil, err
	}

	return &App{
		Name:       entryName,
		Paths:      b.OutputPaths(themeName, port, themeOpts),
		Bundle:     bundle,
		StaticPath: filepath.Join(entriesPath, "static"),
	}, nil
}

// PostsApp returns the app building the top-level content tree with theme
// layouts only.
func (b *Builder) PostsApp(opts Options) (*App, error) {
	contentPath := b.cfg.Path(b.cfg.ContentDir)
	production := IsProduction(opts.Stage)

	app := &App{
		Name:  "posts",
		Paths: b.OutputPaths("", opts.Port, opts),
		Bundle: Bundle{
			Name:        "posts",
			Path:        contentPath,
			Stage:       opts.Stage,
			Production:  production,
			BuildSuffix: b.cfg.BuildSuffix,
			Port:        opts.Port,
		},
		HTMLPath:     contentPath,
		PostSource:   filepath.Join(contentPath, "posts"),
		TemplateDirs: b.cfg.ThemeTemplateDirs(),
	}
	if err := b.fillHTML(app, opts.clone()); err != nil {
		return nil, err
	}
	return app, nil
}

// Apps returns the settings of every directory under the apps directory, in
// name order. With AppPerPort each app gets the next port.
func (b *Builder) Apps(opts Options) ([]*App, error) {
	appsDir := b.cfg.Path(b.cfg.AppsDir)
	entries, err := afero.ReadDir(b.fs, appsDir)
	if err != nil {
		if os.IsNotExist(err) {
			tlogger.Debug("msg", "No apps directory", "path", appsDir)
			return nil, nil
		}
		return nil, err
	}

	port := opts.Port
	var apps []*App
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		app, err := b.AppSettings(e.Name(), port, opts)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
		if opts.AppPerPort {
			port++
		}
	}
	return apps, nil
}

// Themes returns one bundle-only app per theme entry: the default theme's
// entries first, then the active theme's, which replace same-named ones.
func (b *Builder) Themes(opts Options) ([]*App, error) {
	var out []*App
	index := map[string]int{}

	themes := []string{"default"}
	if b.cfg.Theme != "" && b.cfg.Theme != "default" {
		themes = append(themes, b.cfg.Theme)
	}

	for _, theme := range themes {
		entriesPath := filepath.Join(b.cfg.Path(b.cfg.ThemesDir), theme, "entries")
		files, err := afero.ReadDir(b.fs, entriesPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			app, err := b.ThemeSettings(f.Name(), entriesPath, theme, opts.Port, opts)
			if err != nil {
				return nil, err
			}
			if i, ok := index[app.Name]; ok {
				out[i] = app
				continue
			}
			index[app.Name] = len(out)
			out = append(out, app)
		}
	}
	return out, nil
}

func (b *Builder) fillHTML(app *App, opts Options) error {
	app.HTMLOptions = b.cfg.HTMLOptions.Clone()
	if opts.HTMLOptions != nil {
		if err := decodeOver(opts.HTMLOptions, &app.HTMLOptions); err != nil {
			return err
		}
	}

	app.TemplateMap = map[string]string{"index.html": "home"}
	for k, v := range opts.TemplateMap {
		app.TemplateMap[k] = v
	}

	app.TemplateData = TemplateData{
		Site:  b.cfg.Site,
		Time:  b.now,
		Extra: opts.TemplateData,
	}
	app.IgnoreFiles = append([]string(nil), b.cfg.IgnoreFiles...)
	return nil
}

// readOverride returns nil when the file does not exist.
func (b *Builder) readOverride(p string) (map[string]interface{}, error) {
	data, err := afero.ReadFile(b.fs, p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", p, err)
	}
	return out, nil
}

// decodeOver replaces the fields present in input. Slices and maps present in
// input replace the existing value instead of being merged index by index.
func decodeOver(input map[string]interface{}, out interface{}) error {
	return decode(input, out, true)
}

// mergeOver is decodeOver with map keys merged into the existing maps.
func mergeOver(input map[string]interface{}, out interface{}) error {
	return decode(input, out, false)
}

func decode(input map[string]interface{}, out interface{}, zero bool) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ZeroFields:       zero,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func union(lists ...[]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, l := range lists {
		for _, v := range l {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
