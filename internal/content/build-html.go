package content

import (
	"errors"
	"html/template"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/inful/mdfp"
	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"github.com/toastate/toastblog/internal/frontmatter"
	"github.com/toastate/toastblog/internal/helpers"
	"github.com/toastate/toastblog/internal/markdown"
	"github.com/toastate/toastblog/internal/summary"
	"github.com/toastate/toastblog/internal/templates"
)

// HTMLBuilder runs the page pipeline on files with a build extension.
type HTMLBuilder struct {
	builder *Builder
}

func (hb *HTMLBuilder) CanHandle(rel string, info fs.FileInfo) bool {
	return info.Mode().IsRegular() && hb.builder.hasExt(hb.builder.App.HTMLOptions.BuildExtensions, rel)
}

func (hb *HTMLBuilder) Process(rel string, info fs.FileInfo) (*Page, error) {
	b := hb.builder
	fullPath := filepath.Join(b.App.HTMLPath, rel)

	page, err := b.BuildContent(fullPath)
	if err != nil {
		return nil, err
	}

	out := OutFilePath(page, b.App.OutputPath, rel)
	b.log.Debug("builder", "html", "msg", "writing", "file", fullPath, "out", out)
	page.OutputFilePath, err = b.writer.Write(out, []byte(page.HTML))
	if err != nil {
		b.log.Error("builder", "html", "msg", "output file creation", "file", out, "err", err)
		return nil, err
	}
	return page, nil
}

// BuildContent runs the pipeline on the file at fullPath without writing it.
//
// Template and markdown failures do not fail the call: the page is built
// from the output available and Page.Err tells what failed. A missing layout,
// malformed front matter or an unreadable file return an error.
func (b *Builder) BuildContent(fullPath string) (*Page, error) {
	log := b.log.With("builder", "html", "file", fullPath)

	raw, err := afero.ReadFile(b.fs, fullPath)
	if err != nil {
		log.Error("msg", "file error", "err", err)
		return nil, err
	}
	raw = helpers.NormalizeNewlines(raw)

	fm, body, format, err := frontmatter.Split(raw)
	if err != nil {
		return nil, &PageError{Stage: StageContent, Source: fullPath, Err: err}
	}
	meta, err := frontmatter.Parse(fm, format)
	if err != nil {
		return nil, &PageError{Stage: StageContent, Source: fullPath, Err: err}
	}

	rel, err := b.Rel(fullPath)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Metadata:    meta,
		Source:      fullPath,
		Rel:         rel,
		Layout:      metaString(meta, "layout"),
		Destination: metaString(meta, "permalink", "destination"),
		Tags:        parseTags(meta["tags"]),
		Fingerprint: mdfp.CalculateFingerprintFromParts(string(fm), string(body)),
	}
	b.fillDateAndTitle(page, fullPath)

	page.URL = page.Destination
	if page.URL == "" {
		page.URL = URLFor(rel)
	}

	data := b.pageData(page)

	html, err := templates.EvalBody(rel, body, data)
	if err != nil {
		log.Error("msg", "Unable to compile html", "err", err)
		page.Err = &PageError{Stage: StageContent, Source: fullPath, Err: err}
		if len(html) == 0 {
			html = body
		}
	} else if b.hasExt(b.App.HTMLOptions.MarkdownExtensions, rel) {
		rendered, headings, err := markdown.For(b.App.HTMLOptions.Highlight).Render(html)
		if err != nil {
			log.Error("msg", "Unable to render markdown", "err", err)
			page.Err = &PageError{Stage: StageMarkdown, Source: fullPath, Err: err}
		} else {
			html = rendered
			page.Headings = headings
		}
	}

	page.Content = string(html)
	page.Summary = summary.Summarize(page.Content, b.App.HTMLOptions.SummaryMarker, b.App.HTMLOptions.TruncateSummaryAt)

	data["Content"] = template.HTML(page.Content)
	data["Summary"] = template.HTML(page.Summary)
	data["Headings"] = page.Headings

	out, err := b.loader.Apply(data, page.Layout, rel, b.App.TemplateMap, b.App.TemplateDirs)
	if err != nil {
		if errors.Is(err, templates.ErrTemplateNotFound) {
			log.Error("msg", "No layout", "err", err)
			return nil, err
		}
		log.Error("msg", "Unable to build file", "err", err)
		if page.Err == nil {
			page.Err = &PageError{Stage: StageLayout, Source: fullPath, Err: err}
		}
		out = nil
	}

	page.HTML = b.rewriter.Rewrite(string(out))
	return page, nil
}

func (b *Builder) fillDateAndTitle(page *Page, fullPath string) {
	info, dated := Filename2Date(fullPath)

	if v, ok := page.Metadata["date"]; ok {
		if d, err := cast.ToTimeE(v); err == nil {
			page.Date = d
		} else {
			b.log.Warn("msg", "Invalid front matter date", "file", fullPath, "date", v, "err", err)
		}
	}
	if page.Date.IsZero() && dated {
		page.Date = info.Date
	}
	if page.Date.IsZero() {
		if st, err := b.fs.Stat(fullPath); err == nil {
			page.Date = st.ModTime()
		}
	}

	page.Title = metaString(page.Metadata, "title")
	if page.Title == "" && dated {
		page.Title = info.Title
	}
	if page.Title == "" {
		base := filepath.Base(fullPath)
		page.Title = helpers.Humanize(strings.TrimSuffix(base, filepath.Ext(base)))
	}
}

// pageData is the context of the body template and the layout. App template
// data is merged first so the page keys always win.
func (b *Builder) pageData(page *Page) map[string]interface{} {
	data := b.BaseData()
	data["Date"] = page.Date
	data["Title"] = page.Title
	data["Metadata"] = page.Metadata
	data["Tags"] = page.Tags
	data["URL"] = page.URL
	data["Destination"] = page.Destination
	data["Page"] = page
	return data
}
