// Package bundler builds the script and style entry of an app with esbuild.
//
// A build runs in the background: Start returns a Job whose Wait blocks until
// the bundle and its asset manifest are written.
package bundler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"github.com/toastate/toastblog/internal/assets"
	"github.com/toastate/toastblog/internal/settings"
	"github.com/toastate/toastblog/internal/tlogger"
)

// HotStage leaves bundling to the dev asset server.
const HotStage = "hot"

// ErrBundle wraps the messages of a failed build.
var ErrBundle = errors.New("bundle failed")

var fileLoaders = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".woff", ".woff2", ".ttf", ".eot"}

// Result describes a settled build.
type Result struct {
	Name         string
	OutputDir    string
	Manifest     assets.Manifest
	ManifestPath string
	Files        []string
	Warnings     []string
	// Skipped is set when nothing was built: hot stage or no entry file.
	Skipped bool
}

// Job is a bundle build in progress.
type Job struct {
	done   chan struct{}
	result *Result
	err    error
}

// Done is closed when the build settles.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the build settles or ctx is done.
func (j *Job) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func settled(r *Result, err error) *Job {
	j := &Job{done: make(chan struct{}), result: r, err: err}
	close(j.done)
	return j
}

// Start bundles b into outputDir on fs in the background.
func Start(ctx context.Context, fs afero.Fs, b settings.Bundle, outputDir, publicPath string) *Job {
	if b.Stage == HotStage {
		tlogger.Debug("builder", "bundle", "msg", "hot stage, bundling left to the asset server", "app", b.Name)
		return settled(&Result{Name: b.Name, OutputDir: outputDir, Skipped: true}, nil)
	}

	entry := filepath.Join(b.Path, b.File)
	if b.File == "" {
		return settled(&Result{Name: b.Name, OutputDir: outputDir, Skipped: true}, nil)
	}
	if _, err := os.Stat(entry); err != nil {
		if os.IsNotExist(err) {
			tlogger.Debug("builder", "bundle", "msg", "No entry file", "app", b.Name, "file", entry)
			return settled(&Result{Name: b.Name, OutputDir: outputDir, Skipped: true}, nil)
		}
		return settled(nil, err)
	}

	j := &Job{done: make(chan struct{})}
	go func() {
		defer close(j.done)
		j.result, j.err = run(ctx, fs, b, entry, outputDir, publicPath)
	}()
	return j
}

func run(ctx context.Context, fs afero.Fs, b settings.Bundle, entry, outputDir, publicPath string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts, err := Options(b, entry, outputDir, publicPath)
	if err != nil {
		return nil, err
	}

	tlogger.Info("builder", "bundle", "msg", "Bundling", "app", b.Name, "entry", entry)
	res := api.Build(opts)

	warnings := messages(res.Warnings)
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s: %s", ErrBundle, b.Name, strings.Join(messages(res.Errors), "; "))
	}
	if b.ShouldLint && len(warnings) > 0 {
		return nil, fmt.Errorf("%w: %s: lint: %s", ErrBundle, b.Name, strings.Join(warnings, "; "))
	}
	for _, w := range warnings {
		tlogger.Warn("builder", "bundle", "app", b.Name, "msg", w)
	}

	result := &Result{
		Name:      b.Name,
		OutputDir: outputDir,
		Warnings:  warnings,
	}
	for _, f := range res.OutputFiles {
		if err := fs.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
			return nil, err
		}
		if err := afero.WriteFile(fs, f.Path, f.Contents, 0o644); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, f.Path)
	}

	result.Manifest, err = ManifestFromMetafile(b.Name, res.Metafile)
	if err != nil {
		return nil, err
	}
	result.ManifestPath = assets.ManifestPath(outputDir, b.Name)
	if err := result.Manifest.Save(fs, result.ManifestPath); err != nil {
		return nil, err
	}

	return result, nil
}

// Options translates bundle settings into esbuild build options.
func Options(b settings.Bundle, entry, outputDir, publicPath string) (api.BuildOptions, error) {
	absOut, err := filepath.Abs(outputDir)
	if err != nil {
		return api.BuildOptions{}, err
	}
	absWD, err := filepath.Abs(b.Path)
	if err != nil {
		return api.BuildOptions{}, err
	}

	nodeEnv := "development"
	if b.Production {
		nodeEnv = "production"
	}
	define := map[string]string{
		"process.env.NODE_ENV": fmt.Sprintf("%q", nodeEnv),
	}
	for k, v := range cast.ToStringMapString(b.Extra["define"]) {
		define[k] = v
	}

	loaders := map[string]api.Loader{".js": api.LoaderJSX}
	for _, ext := range fileLoaders {
		loaders[ext] = api.LoaderFile
	}

	opts := api.BuildOptions{
		EntryPoints:   []string{entry},
		AbsWorkingDir: absWD,
		Outdir:        absOut,
		EntryNames:    EntryNames(b),
		ChunkNames:    strings.ReplaceAll(b.ChunkFilename, "[id]", "[name]"),
		AssetNames:    "assets/[name]-[hash]",
		PublicPath:    publicPath,
		Bundle:        true,
		Write:         false,
		Metafile:      true,
		Platform:      api.PlatformBrowser,
		Format:        api.FormatIIFE,
		Loader:        loaders,
		Define:        define,
		External:      cast.ToStringSlice(b.Extra["external"]),
		LogLevel:      api.LogLevelSilent,
	}
	if b.Production {
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
	} else {
		opts.Sourcemap = api.SourceMapLinked
	}
	return opts, nil
}

// EntryNames returns the output name template of b: the configured file
// name with the entry name filled in, plus the build suffix stem outside
// production ("blog_bundle" for "_bundle.js").
func EntryNames(b settings.Bundle) string {
	name := strings.ReplaceAll(b.Filename, "[name]", b.Name)
	if name == "" {
		name = b.Name
	}
	if !b.Production && b.BuildSuffix != "" {
		name += strings.TrimSuffix(b.BuildSuffix, filepath.Ext(b.BuildSuffix))
	}
	return name
}

type metafile struct {
	Outputs map[string]struct {
		EntryPoint string `json:"entryPoint"`
		CSSBundle  string `json:"cssBundle"`
	} `json:"outputs"`
}

// ManifestFromMetafile maps the outputs of entry in an esbuild metafile to
// file names relative to the output directory.
func ManifestFromMetafile(entry, meta string) (assets.Manifest, error) {
	m := assets.Manifest{}
	if meta == "" {
		return m, nil
	}

	var mf metafile
	if err := json.Unmarshal([]byte(meta), &mf); err != nil {
		return nil, fmt.Errorf("decode metafile: %w", err)
	}

	outputs := make([]string, 0, len(mf.Outputs))
	for p := range mf.Outputs {
		outputs = append(outputs, p)
	}
	sort.Strings(outputs)

	for _, p := range outputs {
		out := mf.Outputs[p]
		if out.EntryPoint == "" {
			continue
		}
		switch filepath.Ext(p) {
		case ".js":
			m.Add(entry, "js", filepath.Base(p))
			if out.CSSBundle != "" {
				m.Add(entry, "css", filepath.Base(out.CSSBundle))
			}
		case ".css":
			m.Add(entry, "css", filepath.Base(p))
		}
	}
	return m, nil
}

func messages(msgs []api.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			out = append(out, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		out = append(out, m.Text)
	}
	return out
}
