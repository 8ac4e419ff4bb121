package settings

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

var loopbackHosts = []string{"localhost", "0.0.0.0", "127.0.0.1"}

// JoinURLOrPath joins p to base with exactly one "/" between them. base may
// be a URL with a scheme, which filepath.Join would mangle.
func JoinURLOrPath(base, p string) string {
	if base == "" {
		return p
	}
	if p == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(p, "/")
}

func withNameIfRequired(name, relativeOutput string, opts Options) string {
	if isNameRequired(opts) && !opts.AppPerPort {
		return JoinURLOrPath(relativeOutput, name)
	}
	return relativeOutput
}

func isLoopback(assetsURL string) bool {
	for _, h := range loopbackHosts {
		if strings.Contains(assetsURL, h) {
			return true
		}
	}
	return false
}

func hasPort(assetsURL string) bool {
	u, err := url.Parse(assetsURL)
	if err != nil {
		return false
	}
	return u.Port() != ""
}

// OutputPaths computes where an app is written and the public URL its assets
// are served from. Production and staging use the production tree and asset
// base; other stages use the development asset URL, with the port appended
// for loopback hosts.
func (b *Builder) OutputPaths(name string, port int, opts Options) Paths {
	outName := name
	if opts.Name != "" {
		outName = opts.Name
	}

	devOutput := b.cfg.Path(b.cfg.DevOutput)
	prodOutput := b.cfg.Path(b.cfg.ProdOutput)

	p := Paths{
		RootOutputPath: devOutput,
		OutputPath:     devOutput,
	}

	if IsProduction(opts.Stage) {
		p.RootOutputPath = prodOutput
		p.OutputPath = prodOutput
		if isNameRequired(opts) {
			p.OutputPath = filepath.Join(prodOutput, outName)
		}
		p.PublicPath = JoinURLOrPath(b.cfg.ProdAssetsURL, withNameIfRequired(outName, b.cfg.ProdRelativeOutput, opts))
	} else {
		if isNameRequired(opts) {
			p.OutputPath = filepath.Join(devOutput, outName)
		}
		devURL := b.cfg.DevAssetsURL
		if isLoopback(devURL) && !hasPort(devURL) {
			devURL = fmt.Sprintf("%s:%d", devURL, port)
		}
		p.PublicPath = JoinURLOrPath(devURL, withNameIfRequired(outName, b.cfg.DevRelativeOutput, opts))
	}

	// fonts and lazy chunks resolve against the public path, it needs the trailing slash
	if !strings.HasSuffix(p.PublicPath, "/") {
		p.PublicPath += "/"
	}

	return p
}
