package content

import (
	"path/filepath"
	"strings"
)

// BaseData returns the template context shared by every page of the app.
func (b *Builder) BaseData() map[string]interface{} {
	data := map[string]interface{}{}
	for k, v := range b.App.TemplateData.Extra {
		data[k] = v
	}
	data["Site"] = b.App.TemplateData.Site
	data["Time"] = b.App.TemplateData.Time
	data["Data"] = b.App.TemplateData.Extra
	data["Options"] = b.App.HTMLOptions
	data["PublicPath"] = b.App.PublicPath
	return data
}

// RenderLayout renders a page that has no source file, such as a listing,
// through layout and writes it at destination. It returns the output path.
// A missing layout returns an error matching templates.ErrTemplateNotFound.
func (b *Builder) RenderLayout(layout string, data map[string]interface{}, destination string) (string, error) {
	t, err := b.loader.Load(layout, b.App.TemplateDirs)
	if err != nil {
		return "", err
	}
	html, err := t.Execute(data)
	if err != nil {
		return "", err
	}

	out := OutFilePath(&Page{Destination: destination}, b.App.OutputPath, "")
	b.log.Debug("builder", "derived", "msg", "writing", "layout", layout, "out", out)
	return b.writer.Write(out, []byte(b.rewriter.Rewrite(string(html))))
}

// Under reports whether p is dir or inside it.
func Under(dir, p string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
