package settings

import (
	"time"

	"github.com/spf13/afero"
	"github.com/toastate/toastblog/pkg/config"
)

// Options are the per-invocation switches. Per-app options.json files are
// decoded over a copy of them.
type Options struct {
	Stage      string `mapstructure:"stage"`
	Port       int    `mapstructure:"port"`
	AppPerPort bool   `mapstructure:"appPerPort"`
	OnlyPack   bool   `mapstructure:"onlyPack"`
	RootOutput bool   `mapstructure:"rootOutput"`
	Name       string `mapstructure:"name"`
	ShouldLint bool   `mapstructure:"shouldLint"`

	HTMLOptions  map[string]interface{} `mapstructure:"htmlOptions"`
	TemplateMap  map[string]string      `mapstructure:"templateMap"`
	TemplateData map[string]interface{} `mapstructure:"templateData"`

	Extra map[string]interface{} `mapstructure:",remain"`
}

func (o Options) clone() Options {
	o.HTMLOptions = cloneMap(o.HTMLOptions)
	o.TemplateData = cloneMap(o.TemplateData)
	o.Extra = cloneMap(o.Extra)
	if o.TemplateMap != nil {
		tm := make(map[string]string, len(o.TemplateMap))
		for k, v := range o.TemplateMap {
			tm[k] = v
		}
		o.TemplateMap = tm
	}
	return o
}

// Paths locate the output of one app and the URL its assets are served from.
type Paths struct {
	RootOutputPath string
	OutputPath     string
	// PublicPath always ends with "/".
	PublicPath string
}

// Bundle holds the bundler parameters of one entry. Keys of webpack.json that
// have no field land in Extra.
type Bundle struct {
	Name          string `mapstructure:"name"`
	File          string `mapstructure:"file"`
	Path          string `mapstructure:"path"`
	ShouldLint    bool   `mapstructure:"shouldLint"`
	Stage         string `mapstructure:"stage"`
	Production    bool   `mapstructure:"production"`
	BuildSuffix   string `mapstructure:"buildSuffix"`
	Port          int    `mapstructure:"port"`
	Filename      string `mapstructure:"filename"`
	ChunkFilename string `mapstructure:"chunkFilename"`

	Extra map[string]interface{} `mapstructure:",remain"`
}

// TemplateData is passed to every page as it is rendered.
type TemplateData struct {
	Site  config.Site
	Time  time.Time
	Extra map[string]interface{}
}

// App is everything needed to bundle and render one app.
type App struct {
	Name string
	Paths

	Bundle Bundle

	HTMLPath   string
	StaticPath string
	PostSource string

	TemplateData TemplateData
	// TemplateMap selects a layout per content path, relative to HTMLPath.
	TemplateMap map[string]string
	HTMLOptions config.HTMLOptions
	// TemplateDirs are searched in order; app layouts come first.
	TemplateDirs []string
	IgnoreFiles  []string
}

func (a *App) Stage() string { return a.Bundle.Stage }

func (a *App) Production() bool { return a.Bundle.Production }

// Builder computes app settings from one immutable configuration.
type Builder struct {
	cfg *config.Configuration
	fs  afero.Fs
	now time.Time
}

func New(cfg *config.Configuration, fs afero.Fs) *Builder {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Builder{
		cfg: cfg,
		fs:  fs,
		now: time.Now(),
	}
}

// IsProduction reports whether stage produces a production build.
func IsProduction(stage string) bool {
	return stage == "production" || stage == "staging"
}

func isNameRequired(opts Options) bool {
	return !opts.OnlyPack && !opts.RootOutput
}
