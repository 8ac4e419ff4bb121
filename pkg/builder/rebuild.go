package builder

import (
	"context"
	"os"
	"path/filepath"

	"github.com/toastate/toastblog/internal/content"
	"github.com/toastate/toastblog/internal/metrics"
	"github.com/toastate/toastblog/internal/tlogger"
)

// Kinds of rebuild triggered by a changed file.
const (
	RebuildNone    = "none"
	RebuildFull    = "full"
	RebuildApp     = "app"
	RebuildStatic  = "static"
	RebuildContent = "content"
)

// WatchRoots returns the directories whose changes trigger a rebuild.
func (b *Builder) WatchRoots() []string {
	roots := []string{
		b.cfg.Path(b.cfg.AppsDir),
		b.cfg.Path(b.cfg.ThemesDir),
		b.cfg.Path(b.cfg.ContentDir),
	}
	var out []string
	for _, r := range roots {
		if _, err := b.fs.Stat(r); err == nil {
			out = append(out, r)
		}
	}
	return out
}

// Rebuild brings the output up to date after fullPath changed and returns the
// kind of rebuild it ran. A theme change rebuilds everything; an app layout or
// source change rebuilds that app; a static or content file is written alone.
func (b *Builder) Rebuild(ctx context.Context, fullPath string) (string, error) {
	if err := b.Init(); err != nil {
		return RebuildNone, err
	}

	b.mu.Lock()
	apps := b.apps
	b.mu.Unlock()

	if apps == nil || content.Under(b.cfg.Path(b.cfg.ThemesDir), fullPath) {
		b.recorder.IncRebuild(RebuildFull)
		_, err := b.Build(ctx)
		return RebuildFull, err
	}

	for i, ab := range apps {
		switch {
		case b.inTemplateDirs(ab, fullPath):
			b.loader.Invalidate(fullPath)
			return RebuildApp, b.rebuildApp(ctx, i, ab)

		case content.Under(ab.App.StaticPath, fullPath):
			b.recorder.IncRebuild(RebuildStatic)
			return RebuildStatic, b.copyStaticFile(ab, fullPath)

		case content.Under(ab.App.HTMLPath, fullPath):
			b.recorder.IncRebuild(RebuildContent)
			return RebuildContent, b.BuildSingle(ctx, ab, fullPath)

		case ab.App.Bundle.File != "" && content.Under(ab.App.Bundle.Path, fullPath):
			return RebuildApp, b.rebuildApp(ctx, i, ab)
		}
	}

	tlogger.Debug("msg", "Change outside of any app", "file", fullPath)
	return RebuildNone, nil
}

func (b *Builder) inTemplateDirs(ab *AppBuild, fullPath string) bool {
	for _, d := range ab.App.TemplateDirs {
		if content.Under(d, fullPath) {
			return true
		}
	}
	return false
}

func (b *Builder) rebuildApp(ctx context.Context, i int, ab *AppBuild) error {
	b.recorder.IncRebuild(RebuildApp)
	nab, err := b.BuildApp(ctx, ab.App)
	if err != nil {
		return err
	}
	b.mu.Lock()
	if i < len(b.apps) && b.apps[i] == ab {
		b.apps[i] = nab
	}
	b.mu.Unlock()
	return nil
}

func (b *Builder) copyStaticFile(ab *AppBuild, fullPath string) error {
	rel, err := filepath.Rel(ab.App.StaticPath, fullPath)
	if err != nil {
		return err
	}
	info, err := b.fs.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return b.writer.CopyDir(fullPath, filepath.Join(ab.App.OutputPath, rel))
	}
	_, err = b.writer.Copy(fullPath, filepath.Join(ab.App.OutputPath, rel))
	return err
}

// BuildSingle re-runs the content pipeline for one file of ab. When the page's
// front matter or body changed, the derived pages of the app are regenerated.
// Removed files are left in the output.
func (b *Builder) BuildSingle(ctx context.Context, ab *AppBuild, fullPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := b.fs.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			tlogger.Debug("msg", "File removed", "file", fullPath)
			return nil
		}
		return err
	}
	if info.IsDir() || !ab.Content.ShouldHandle(fullPath) {
		return nil
	}

	page, err := ab.Content.WriteContent(fullPath)
	if err != nil {
		b.recorder.IncPageResult(ab.App.Name, metrics.PageFailed)
		return err
	}
	if page == nil {
		b.recorder.IncPageResult(ab.App.Name, metrics.PageCopied)
		return nil
	}
	if err := b.checkPages(ab.App, []*content.Page{page}); err != nil {
		return err
	}

	b.mu.Lock()
	unchanged := b.fps[page.Source] == page.Fingerprint
	b.fps[page.Source] = page.Fingerprint
	b.mu.Unlock()
	if unchanged {
		tlogger.Debug("msg", "Page unchanged", "file", fullPath)
		return nil
	}

	replaced := false
	for i, p := range ab.Pages {
		if p.Source == page.Source {
			ab.Pages[i] = page
			replaced = true
			break
		}
	}
	if !replaced {
		ab.Pages = append(ab.Pages, page)
	}
	content.SortByDate(ab.Pages)

	if err := b.BuildPostPages(ab); err != nil {
		return err
	}
	return b.BuildTagPages(ab)
}
