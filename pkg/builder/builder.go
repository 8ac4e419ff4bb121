package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/toastate/toastblog/internal/assets"
	"github.com/toastate/toastblog/internal/bundler"
	"github.com/toastate/toastblog/internal/content"
	"github.com/toastate/toastblog/internal/filewriter"
	"github.com/toastate/toastblog/internal/metrics"
	"github.com/toastate/toastblog/internal/settings"
	"github.com/toastate/toastblog/internal/templates"
	"github.com/toastate/toastblog/internal/tlogger"
)

// Init is idempotent, multiple calls will only initialize the builder once
func (b *Builder) Init() error {
	if b.initialized {
		return nil
	}

	if b.opts.Settings.Stage == "" {
		b.opts.Settings.Stage = b.cfg.Stage
	}
	if b.opts.Settings.Port == 0 {
		b.opts.Settings.Port = b.cfg.HotPort
	}
	if b.opts.Recorder == nil {
		b.opts.Recorder = metrics.NoopRecorder{}
	}

	b.settings = settings.New(b.cfg, b.fs)
	minify := b.cfg.HTMLOptions.Minify && settings.IsProduction(b.opts.Settings.Stage)
	b.writer = filewriter.New(b.fs, minify)
	b.loader = templates.NewLoader(b.fs, b.opts.CacheTemplates)
	b.recorder = b.opts.Recorder
	b.fps = map[string]string{}

	b.initialized = true
	return nil
}

// Apps computes the settings of everything a full build produces: theme
// entries first, then the apps, then the posts app.
func (b *Builder) Apps() ([]*settings.App, error) {
	if err := b.Init(); err != nil {
		return nil, err
	}

	themes, err := b.settings.Themes(b.opts.Settings)
	if err != nil {
		return nil, fmt.Errorf("theme settings: %w", err)
	}
	apps, err := b.settings.Apps(b.opts.Settings)
	if err != nil {
		return nil, fmt.Errorf("app settings: %w", err)
	}

	out := append(themes, apps...)
	if _, err := b.fs.Stat(b.cfg.Path(b.cfg.ContentDir)); err == nil {
		posts, err := b.settings.PostsApp(b.opts.Settings)
		if err != nil {
			return nil, fmt.Errorf("posts settings: %w", err)
		}
		out = append(out, posts)
	}
	return out, nil
}

func (b *Builder) Build(ctx context.Context) (*Result, error) {
	if err := b.Init(); err != nil {
		return nil, err
	}

	start := time.Now()
	id := uuid.NewString()
	log := tlogger.With("build", id)

	apps, err := b.Apps()
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		log.Error("msg", "Nothing to build", "path", b.cfg.RootDir)
		b.recorder.IncBuildOutcome(metrics.BuildFailed)
		return nil, ErrSrcNotFound
	}

	if b.opts.Clean {
		b.cleanOutput()
	}
	b.loader.Reset()

	log.Info("msg", "Building started", "path", b.cfg.RootDir, "stage", b.opts.Settings.Stage)

	result := &Result{ID: id}
	for _, app := range apps {
		ab, err := b.BuildApp(ctx, app)
		if err != nil {
			log.Error("msg", "Build failed", "app", app.Name, "err", err)
			b.recorder.IncBuildOutcome(metrics.BuildFailed)
			return nil, err
		}
		result.Apps = append(result.Apps, ab)
	}

	b.mu.Lock()
	b.apps = result.Apps
	b.build = id
	b.mu.Unlock()

	result.Duration = time.Since(start)
	b.recorder.ObserveStageDuration("build", result.Duration)
	b.recorder.IncBuildOutcome(metrics.BuildSuccess)
	log.Info("msg", "Building finished", "duration", result.Duration)
	return result, nil
}

func (b *Builder) cleanOutput() {
	root := b.OutputRoot()
	err := b.fs.RemoveAll(root)
	if err != nil {
		<-time.After(time.Millisecond * 20)
		err = b.fs.RemoveAll(root)
		if err != nil {
			<-time.After(time.Millisecond * 20)
			err = b.fs.RemoveAll(root)
			tlogger.Error("msg", "Failed to remove build folder", "path", root, "err", err)
		}
	}
}

// BuildApp copies the static files of app, bundles it, then builds its
// content and derived pages. Content is not built before bundling settles,
// and not at all with OnlyPack.
func (b *Builder) BuildApp(ctx context.Context, app *settings.App) (*AppBuild, error) {
	if err := b.Init(); err != nil {
		return nil, err
	}

	start := time.Now()
	log := tlogger.With("app", app.Name)

	b.copyStatic(app)

	stageStart := time.Now()
	job := bundler.Start(ctx, b.fs, app.Bundle, app.OutputPath, app.PublicPath)
	res, err := job.Wait(ctx)
	if err != nil {
		return nil, err
	}
	b.recorder.ObserveStageDuration("bundle", time.Since(stageStart))

	manifest := res.Manifest
	if manifest == nil {
		manifest, err = assets.LoadManifest(b.fs, assets.ManifestPath(app.OutputPath, app.Name))
		if err != nil {
			return nil, err
		}
	}

	log.Debug("msg", "Asset manifest", "entries", manifest.Entries())

	ab := &AppBuild{
		App:      app,
		Manifest: manifest,
		Content:  content.New(app, manifest, b.writer, b.loader),
	}

	if app.HTMLPath != "" && !b.opts.Settings.OnlyPack {
		log.Info("msg", "Building html", "path", app.HTMLPath)
		stageStart = time.Now()
		pages, err := ab.Content.BuildContents(app.HTMLPath)
		if err != nil {
			b.recorder.IncPageResult(app.Name, metrics.PageFailed)
			return nil, err
		}
		if err := b.checkPages(app, pages); err != nil {
			return nil, err
		}
		content.SortByDate(pages)
		ab.Pages = pages
		b.recordFingerprints(pages)
		b.recorder.ObserveStageDuration("content", time.Since(stageStart))

		stageStart = time.Now()
		if err := b.BuildPostPages(ab); err != nil {
			return nil, err
		}
		if err := b.BuildTagPages(ab); err != nil {
			return nil, err
		}
		b.recorder.ObserveStageDuration("derived", time.Since(stageStart))
	}

	ab.Duration = time.Since(start)
	b.recorder.ObserveBuildDuration(app.Name, ab.Duration)
	log.Info("msg", "Done building files", "duration", ab.Duration, "pages", len(ab.Pages))
	return ab, nil
}

func (b *Builder) copyStatic(app *settings.App) {
	if app.StaticPath == "" {
		return
	}
	err := b.writer.CopyDir(app.StaticPath, app.OutputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		tlogger.Warn("msg", "Failed to copy static files", "app", app.Name, "path", app.StaticPath, "err", err)
		return
	}
	tlogger.Debug("msg", "Copied static files", "app", app.Name, "path", app.StaticPath)
}

// checkPages applies the failure policy to degraded pages: logged by default,
// fatal in strict mode.
func (b *Builder) checkPages(app *settings.App, pages []*content.Page) error {
	for _, p := range pages {
		if p.Err == nil {
			b.recorder.IncPageResult(app.Name, metrics.PageOK)
			continue
		}
		b.recorder.IncPageResult(app.Name, metrics.PageDegraded)
		if b.opts.Strict {
			return fmt.Errorf("%w: %v", ErrDegradedPage, p.Err)
		}
		tlogger.Warn("msg", "Page built with errors", "app", app.Name, "file", p.Source, "err", p.Err)
	}
	return nil
}

func (b *Builder) recordFingerprints(pages []*content.Page) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range pages {
		b.fps[p.Source] = p.Fingerprint
	}
}

// isTemplateNotFound tells derived page generation to skip a missing layout.
func isTemplateNotFound(err error) bool {
	return errors.Is(err, templates.ErrTemplateNotFound)
}
