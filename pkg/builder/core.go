package builder

import (
	"errors"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/toastate/toastblog/internal/assets"
	"github.com/toastate/toastblog/internal/content"
	"github.com/toastate/toastblog/internal/filewriter"
	"github.com/toastate/toastblog/internal/metrics"
	"github.com/toastate/toastblog/internal/settings"
	"github.com/toastate/toastblog/internal/templates"
	"github.com/toastate/toastblog/pkg/config"
)

// ErrSrcNotFound is returned when there is nothing to build: no app, no theme
// entry and no content folder.
var ErrSrcNotFound = errors.New("src folder not found")

// ErrDegradedPage is returned in strict mode when a page was built from
// degraded output.
var ErrDegradedPage = errors.New("page built with errors")

type Builder struct {
	opts *BuilderOpts

	initialized bool

	cfg      *config.Configuration
	fs       afero.Fs
	settings *settings.Builder
	writer   *filewriter.Writer
	loader   *templates.Loader
	recorder metrics.Recorder

	mu    sync.Mutex
	apps  []*AppBuild
	fps   map[string]string
	build string
}

type BuilderOpts struct {
	Settings settings.Options
	// Strict fails the build on the first degraded page instead of logging it.
	Strict bool
	// Clean removes the output root before a full build.
	Clean bool
	// CacheTemplates keeps compiled layouts between pages until a file changes.
	CacheTemplates bool
	Recorder       metrics.Recorder
}

// AppBuild is the state of one built app, kept for incremental rebuilds.
type AppBuild struct {
	App      *settings.App
	Content  *content.Builder
	Manifest assets.Manifest
	Pages    []*content.Page
	Duration time.Duration
}

// Result is the outcome of a full build.
type Result struct {
	ID       string
	Apps     []*AppBuild
	Duration time.Duration
}

// Pages returns the pages of every app.
func (r *Result) Pages() []*content.Page {
	var out []*content.Page
	for _, a := range r.Apps {
		out = append(out, a.Pages...)
	}
	return out
}

func NewBuilder(cfg *config.Configuration, fs afero.Fs, opts *BuilderOpts) *Builder {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	o := BuilderOpts{}
	if opts != nil {
		o = *opts
	}
	return &Builder{
		cfg:  cfg.Clone(),
		fs:   fs,
		opts: &o,
	}
}

func (b *Builder) Config() *config.Configuration {
	return b.cfg
}

// OutputRoot is the root of the output tree for the configured stage.
func (b *Builder) OutputRoot() string {
	if settings.IsProduction(b.opts.Settings.Stage) {
		return b.cfg.Path(b.cfg.ProdOutput)
	}
	return b.cfg.Path(b.cfg.DevOutput)
}
