package markdown

import (
	"bytes"
	"sync"

	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// Heading is one heading of a rendered document, in document order.
type Heading struct {
	Level int
	ID    string
	Title string
}

// Renderer converts markdown to HTML. Raw HTML in the source is kept as is,
// since bodies reach the renderer after template evaluation.
type Renderer struct {
	md goldmark.Markdown
}

var (
	renderersMu sync.Mutex
	renderers   = map[string]*Renderer{}
)

// New returns a renderer with GitHub flavored markdown and heading ids. A
// non-empty style enables syntax highlighting of fenced code blocks.
func New(style string) *Renderer {
	extensions := []goldmark.Extender{extension.GFM}
	if style != "" {
		extensions = append(extensions, highlighting.NewHighlighting(highlighting.WithStyle(style)))
	}

	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extensions...),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
}

// For returns a shared renderer for style.
func For(style string) *Renderer {
	renderersMu.Lock()
	defer renderersMu.Unlock()

	r, ok := renderers[style]
	if !ok {
		r = New(style)
		renderers[style] = r
	}
	return r
}

// Render returns the HTML of source and its headings.
func (r *Renderer) Render(source []byte) ([]byte, []Heading, error) {
	doc := r.md.Parser().Parse(text.NewReader(source), parser.WithContext(parser.NewContext()))

	var headings []Heading
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		heading := Heading{Level: h.Level, Title: string(h.Text(source))}
		if id, found := h.AttributeString("id"); found {
			if b, ok := id.([]byte); ok {
				heading.ID = string(b)
			}
		}
		headings = append(headings, heading)
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, nil, err
	}

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, source, doc); err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), headings, nil
}
