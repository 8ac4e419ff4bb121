// Package assets rewrites the stylesheet, script and image references of
// generated pages to the public location of the build output.
package assets

import (
	"bytes"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/toastate/toastblog/internal/settings"
	"golang.org/x/net/html"
)

var rewrittenAttrs = map[string]string{
	"link":   "href",
	"script": "src",
	"img":    "src",
}

// assetRels are the link relations pointing at build assets. Other links,
// such as canonical or alternate, are page URLs and are left alone.
var assetRels = map[string]struct{}{
	"stylesheet":       {},
	"preload":          {},
	"modulepreload":    {},
	"prefetch":         {},
	"icon":             {},
	"apple-touch-icon": {},
	"manifest":         {},
}

// Rewriter maps asset references of one app.
type Rewriter struct {
	PublicPath string
	Manifest   Manifest
	// BuildSuffix is the conventional name suffix of development bundles,
	// e.g. "_bundle.js" for "<entry>_bundle.js" and "<entry>_bundle.css".
	BuildSuffix string
}

// URL returns the rewritten form of u.
//
// A bundle reference whose entry is in the manifest points at the manifest
// file. Other root-relative URLs are resolved against the public path.
// Relative and absolute URLs are returned unchanged.
func (r *Rewriter) URL(u string) string {
	if u == "" || isExternal(u) || strings.HasPrefix(u, "#") {
		return u
	}

	if entry, kind, ok := r.bundleEntry(path.Base(u)); ok {
		if f, ok := r.Manifest.Lookup(entry, kind); ok {
			if isExternal(f) {
				return f
			}
			return settings.JoinURLOrPath(r.PublicPath, f)
		}
	}

	if !strings.HasPrefix(u, "/") {
		return u
	}
	pub := strings.TrimRight(r.PublicPath, "/")
	if pub == "" || strings.HasPrefix(u, pub+"/") {
		return u
	}
	return settings.JoinURLOrPath(r.PublicPath, u)
}

func (r *Rewriter) bundleEntry(base string) (entry, kind string, ok bool) {
	suffix := r.BuildSuffix
	if suffix == "" {
		return "", "", false
	}
	stem := strings.TrimSuffix(suffix, path.Ext(suffix))

	ext := path.Ext(base)
	switch ext {
	case ".js":
		kind = "js"
	case ".css":
		kind = "css"
	default:
		return "", "", false
	}

	name := strings.TrimSuffix(base, ext)
	if !strings.HasSuffix(name, stem) || len(name) == len(stem) {
		return "", "", false
	}
	return strings.TrimSuffix(name, stem), kind, true
}

// Rewrite returns page with its asset references rewritten. Tags that are not
// rewritten are copied byte for byte.
func (r *Rewriter) Rewrite(page string) string {
	var out bytes.Buffer
	out.Grow(len(page))

	z := html.NewTokenizer(strings.NewReader(page))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() == io.EOF {
				// a tag left open at the end of the page
				out.Write(z.Raw())
			}
			break
		}
		raw := z.Raw()
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(raw)
			continue
		}

		// Token lowercases the tag buffer in place
		raw = append([]byte(nil), raw...)
		tok := z.Token()
		attr, ok := rewrittenAttrs[tok.Data]
		if !ok || tok.Data == "link" && !isAssetLink(tok.Attr) {
			out.Write(raw)
			continue
		}

		changed := false
		for i, a := range tok.Attr {
			if a.Namespace != "" || a.Key != attr {
				continue
			}
			if u := r.URL(a.Val); u != a.Val {
				tok.Attr[i].Val = u
				changed = true
			}
		}
		if !changed {
			out.Write(raw)
			continue
		}
		out.WriteString(tok.String())
	}
	return out.String()
}

func isAssetLink(attrs []html.Attribute) bool {
	for _, a := range attrs {
		if a.Namespace != "" || a.Key != "rel" {
			continue
		}
		for _, rel := range strings.Fields(strings.ToLower(a.Val)) {
			if _, ok := assetRels[rel]; ok {
				return true
			}
		}
	}
	return false
}

func isExternal(u string) bool {
	if strings.HasPrefix(u, "//") {
		return true
	}
	parsed, err := url.Parse(u)
	return err == nil && parsed.IsAbs()
}
