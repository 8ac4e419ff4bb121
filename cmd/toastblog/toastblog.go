package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/davecgh/go-spew/spew"
	"github.com/toastate/toastblog/internal/metrics"
	"github.com/toastate/toastblog/internal/settings"
	"github.com/toastate/toastblog/internal/tlogger"
	"github.com/toastate/toastblog/internal/watcher"
	"github.com/toastate/toastblog/pkg/builder"
	"github.com/toastate/toastblog/pkg/config"
	"github.com/toastate/toastblog/pkg/server"
)

var CLI struct {
	Build    CommandBuild    `cmd:"" aliases:"b" help:"Builds or rebuilds every app, theme entry and the posts."`
	Watch    CommandWatch    `cmd:"" aliases:"w" help:"Builds, then rebuilds on every change."`
	Serve    CommandServe    `cmd:"" aliases:"s" help:"Run a live dev server."`
	Settings CommandSettings `cmd:"" help:"Print the computed settings of every app."`

	ConfigFile string `short:"c" name:"config" help:"configuration file path (optional)"`
}

type BuildFlags struct {
	Stage      string `help:"Build stage: production, staging, development or hot." env:"STAGE"`
	Port       int    `help:"Asset server port."`
	AppPerPort bool   `help:"Give each app its own asset port."`
	OnlyPack   bool   `help:"Bundle only, write every app at the output root."`
	RootOutput bool   `help:"Write the apps at the output root."`
	Name       string `help:"Output directory name overriding the app name."`
	Lint       bool   `help:"Fail the bundling on warnings."`
	Strict     bool   `help:"Fail the build on pages built with errors."`

	Verbose int `short:"v" help:"Print verbose output." type:"counter"`
}

type CommandBuild struct {
	BuildFlags `embed:""`

	Clean bool `help:"Remove the output folder first."`
}

type CommandWatch struct {
	BuildFlags `embed:""`
}

type CommandServe struct {
	BuildFlags `embed:""`

	Build       bool `negatable:"" default:"true" help:"Build and watch before serving."`
	ServePort   int  `short:"p" help:"Listener port"`
	WithMetrics bool `name:"metrics" help:"Expose Prometheus metrics on /metrics."`
}

type CommandSettings struct {
	BuildFlags `embed:""`
}

func main() {
	ctx := kong.Parse(&CLI, kong.UsageOnError())

	cfg, err := config.Load(CLI.ConfigFile)
	tlogger.FatalIf(err)

	err = ctx.Run(cfg)
	if err != nil {
		tlogger.Error("msg", "Command failed", "err", err)
		os.Exit(1)
	}
}

func applyVerbose(v int) {
	switch v {
	case 0:
		tlogger.ApplyLogLevel("info")
	case 1:
		tlogger.ApplyLogLevel("debug")
	default:
		tlogger.ApplyLogLevel("all")
	}
}

func (f *BuildFlags) options() settings.Options {
	return settings.Options{
		Stage:      f.Stage,
		Port:       f.Port,
		AppPerPort: f.AppPerPort,
		OnlyPack:   f.OnlyPack,
		RootOutput: f.RootOutput,
		Name:       f.Name,
		ShouldLint: f.Lint,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (r *CommandBuild) Run(cfg *config.Configuration) error {
	applyVerbose(r.Verbose)

	buildtool := builder.NewBuilder(cfg, nil, &builder.BuilderOpts{
		Settings: r.options(),
		Strict:   r.Strict,
		Clean:    r.Clean,
	})

	ctx, cancel := signalContext()
	defer cancel()

	_, err := buildtool.Build(ctx)
	return err
}

func (r *CommandWatch) Run(cfg *config.Configuration) error {
	applyVerbose(r.Verbose)

	buildtool := builder.NewBuilder(cfg, nil, &builder.BuilderOpts{
		Settings:       r.options(),
		Strict:         r.Strict,
		CacheTemplates: true,
	})

	ctx, cancel := signalContext()
	defer cancel()

	if _, err := buildtool.Build(ctx); err != nil {
		return err
	}

	updates, err := watcher.StartWatcher(ctx, cfg.IgnoreFiles, buildtool.WatchRoots()...)
	if err != nil {
		return err
	}
	tlogger.Info("msg", "Watching for changes", "paths", buildtool.WatchRoots())

	watcher.Dispatch(ctx, updates, func(ctx context.Context, p string) error {
		_, err := buildtool.Rebuild(ctx, p)
		return err
	})
	return nil
}

func (r *CommandServe) Run(cfg *config.Configuration) error {
	applyVerbose(r.Verbose)

	if r.ServePort <= 0 {
		r.ServePort = cfg.ServeConfig.Port
	}

	opts := &builder.BuilderOpts{
		Settings:       r.options(),
		Strict:         r.Strict,
		CacheTemplates: true,
	}
	serverOpts := server.Options{
		Port:        r.ServePort,
		Override404: cfg.ServeConfig.Redirect404,
	}
	if r.WithMetrics || cfg.ServeConfig.Metrics {
		rec := metrics.NewPrometheusRecorder(nil)
		opts.Recorder = rec
		serverOpts.Metrics = rec.Handler()
	}

	buildtool := builder.NewBuilder(cfg, nil, opts)
	if err := buildtool.Init(); err != nil {
		return err
	}
	serverOpts.BuildDir = buildtool.OutputRoot()
	if r.Build {
		serverOpts.Builder = buildtool
	}

	ctx, cancel := signalContext()
	defer cancel()

	return server.NewServer(serverOpts).Start(ctx, r.Build)
}

func (r *CommandSettings) Run(cfg *config.Configuration) error {
	applyVerbose(r.Verbose)

	buildtool := builder.NewBuilder(cfg, nil, &builder.BuilderOpts{Settings: r.options()})
	apps, err := buildtool.Apps()
	if err != nil {
		return err
	}

	spew.Config.Indent = "  "
	spew.Config.DisableMethods = true
	spew.Dump(cfg)
	for _, app := range apps {
		spew.Dump(app)
	}
	return nil
}
