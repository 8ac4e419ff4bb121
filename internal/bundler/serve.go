package bundler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/toastate/toastblog/internal/settings"
	"github.com/toastate/toastblog/internal/tlogger"
)

// Serve runs the hot stage asset server of b on its port until ctx is done.
// Bundles are rebuilt in memory whenever a source changes.
func Serve(ctx context.Context, b settings.Bundle, outputDir, publicPath string) error {
	entry := filepath.Join(b.Path, b.File)
	opts, err := Options(b, entry, outputDir, publicPath)
	if err != nil {
		return err
	}
	opts.Metafile = false

	bctx, cerr := api.Context(opts)
	if cerr != nil {
		return fmt.Errorf("%w: %s: %v", ErrBundle, b.Name, cerr)
	}
	defer bctx.Dispose()

	if err := bctx.Watch(api.WatchOptions{}); err != nil {
		return err
	}

	res, err := bctx.Serve(api.ServeOptions{Port: uint16(b.Port)})
	if err != nil {
		return err
	}
	tlogger.Info("builder", "bundle", "msg", "Serving assets", "app", b.Name, "host", res.Host, "port", res.Port)

	<-ctx.Done()
	return nil
}
