package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/toastate/toastblog/internal/tlogger"
)

const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// StartWatcher watches every directory under folders and sends the path of
// each changed file. Directories created later are watched as well. The
// channel is closed once ctx is done.
func StartWatcher(ctx context.Context, ignore []string, folders ...string) (<-chan string, error) {
	wch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	var patterns []glob.Glob
	for _, p := range ignore {
		g, err := glob.Compile(p)
		if err != nil {
			tlogger.Warn("msg", "Invalid ignore pattern", "pattern", p, "err", err)
			continue
		}
		patterns = append(patterns, g)
	}

	for _, folder := range folders {
		if err := addRecursive(wch, folder); err != nil {
			wch.Close()
			return nil, err
		}
	}

	outCh := make(chan string, 100)

	go func() {
		defer close(outCh)
		defer wch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-wch.Events:
				if !ok {
					return
				}
				if event.Op&relevantOps == 0 || ShouldIgnore(event.Name, patterns) {
					continue
				}
				if event.Op&fsnotify.Create == fsnotify.Create {
					if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
						_ = addRecursive(wch, event.Name)
						continue
					}
				}
				tlogger.Info("msg", "Detected change", "path", event.Name, "op", event.Op.String())
				select {
				case outCh <- event.Name:
				case <-ctx.Done():
					return
				}
			case err, ok := <-wch.Errors:
				if !ok {
					return
				}
				tlogger.Error("msg", "Watcher error", "err", err)
			}
		}
	}()

	return outCh, nil
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(fi.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			tlogger.Warn("msg", "Could not watch directory", "path", path, "err", err)
		}
		return nil
	})
}

// ShouldIgnore reports whether a change to path is editor or system noise, or
// matches one of patterns by base name.
func ShouldIgnore(path string, patterns []glob.Glob) bool {
	base := filepath.Base(path)

	if strings.HasPrefix(base, ".") {
		return true
	}
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	if base == "Thumbs.db" || base == "4913" {
		return true
	}

	for _, g := range patterns {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// Dispatch calls rebuild for every path received on changes, one at a time.
// Paths queued while a rebuild runs are coalesced. Rebuild errors are logged
// and do not stop the loop. Dispatch returns when changes is closed or ctx is
// done.
func Dispatch(ctx context.Context, changes <-chan string, rebuild func(ctx context.Context, path string) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-changes:
			if !ok {
				return
			}
			batch, open := drain(changes, []string{p})
			for _, path := range batch {
				if ctx.Err() != nil {
					return
				}
				if err := rebuild(ctx, path); err != nil {
					tlogger.Error("msg", "Rebuild failed", "path", path, "err", err)
				}
			}
			if !open {
				return
			}
		}
	}
}

// drain collects the paths already queued on changes, without duplicates,
// in arrival order.
func drain(changes <-chan string, batch []string) ([]string, bool) {
	seen := map[string]struct{}{batch[0]: {}}
	for {
		select {
		case p, ok := <-changes:
			if !ok {
				return batch, false
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			batch = append(batch, p)
		default:
			return batch, true
		}
	}
}
