package content

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toastate/toastblog/internal/assets"
	"github.com/toastate/toastblog/internal/filewriter"
	"github.com/toastate/toastblog/internal/settings"
	"github.com/toastate/toastblog/internal/templates"
	"github.com/toastate/toastblog/pkg/config"
)

const (
	htmlRoot = "/site/client/apps/blog/html"
	outRoot  = "/site/build/dev/blog"
)

const layout = `<html><head><link rel="stylesheet" href="/blog_bundle.css"></head>` +
	`<body><h1 class="title">{{.Title}}</h1>{{.Content}}<footer>{{.Site.Title}}</footer></body></html>`

func newTestBuilder(t *testing.T) (*Builder, afero.Fs) {
	t.Helper()
	cfg := config.DefaultConfiguration()
	cfg.RootDir = "/site"
	fs := afero.NewMemMapFs()

	app, err := settings.New(cfg, fs).AppSettings("blog", 8080, settings.Options{Stage: "development"})
	require.NoError(t, err)

	write(t, fs, "/site/client/themes/default/application.html", layout)
	write(t, fs, "/site/client/themes/default/home.html", `home:{{.Content}}`)

	return New(app, nil, filewriter.New(fs, false), templates.NewLoader(fs, false)), fs
}

func write(t *testing.T, fs afero.Fs, p, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, p, []byte(body), 0o644))
}

func read(t *testing.T, fs afero.Fs, p string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, p)
	require.NoError(t, err)
	return string(data)
}

func TestMarkdownWithPermalink(t *testing.T) {
	b, fs := newTestBuilder(t)
	src := filepath.Join(htmlRoot, "hello.md")
	write(t, fs, src, "---\ntitle: Hello\npermalink: /hello/\n---\n# Hi\n")

	page, err := b.WriteContent(src)
	require.NoError(t, err)
	require.NotNil(t, page)
	require.NoError(t, page.Err)

	assert.Equal(t, "Hello", page.Title)
	assert.Equal(t, "/hello/", page.Destination)
	assert.Equal(t, "/hello/", page.URL)
	assert.Equal(t, filepath.Join(outRoot, "hello", "index.html"), page.OutputFilePath)
	assert.Contains(t, page.Content, `<h1 id="hi">Hi</h1>`)

	out := read(t, fs, page.OutputFilePath)
	assert.Contains(t, out, `<h1 id="hi">Hi</h1>`)
	assert.Contains(t, out, `<h1 class="title">Hello</h1>`)
	assert.Contains(t, out, `<footer>Speak Easy</footer>`)
	assert.Contains(t, out, `href="/blog/blog_bundle.css"`)
}

func TestNonBuildFileCopiedByteIdentical(t *testing.T) {
	b, fs := newTestBuilder(t)
	payload := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '{', '{', 0x00}
	src := filepath.Join(htmlRoot, "img", "logo.png")
	require.NoError(t, afero.WriteFile(fs, src, payload, 0o644))

	page, err := b.WriteContent(src)
	require.NoError(t, err)
	assert.Nil(t, page)

	data, err := afero.ReadFile(fs, filepath.Join(outRoot, "img", "logo.png"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestMirroredOutputPath(t *testing.T) {
	b, fs := newTestBuilder(t)
	src := filepath.Join(htmlRoot, "about", "team.html")
	write(t, fs, src, "<p>We are {{len .Tags}} people</p>")

	page, err := b.WriteContent(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outRoot, "about", "team.html"), page.OutputFilePath)
	assert.Equal(t, "/about/team.html", page.URL)
	assert.Equal(t, "Team", page.Title)
	assert.Equal(t, "<p>We are 0 people</p>", page.Content)
}

func TestDestinationWithoutTrailingSlash(t *testing.T) {
	b, fs := newTestBuilder(t)
	src := filepath.Join(htmlRoot, "feed.html")
	write(t, fs, src, "---\ndestination: /rss/feed.xml\n---\n<rss/>")

	page, err := b.WriteContent(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outRoot, "rss", "feed.xml"), page.OutputFilePath)
}

func TestTemplateMapSelectsLayout(t *testing.T) {
	b, fs := newTestBuilder(t)
	src := filepath.Join(htmlRoot, "index.html")
	write(t, fs, src, "<p>welcome</p>")

	page, err := b.WriteContent(src)
	require.NoError(t, err)
	assert.Equal(t, "home:<p>welcome</p>", read(t, fs, page.OutputFilePath))
	assert.Equal(t, "/", page.URL)
}

func TestMissingLayoutFails(t *testing.T) {
	b, fs := newTestBuilder(t)
	src := filepath.Join(htmlRoot, "x.html")
	write(t, fs, src, "---\nlayout: nope\n---\nbody")

	_, err := b.WriteContent(src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, templates.ErrTemplateNotFound))
}

func TestMalformedFrontMatterFails(t *testing.T) {
	b, fs := newTestBuilder(t)
	src := filepath.Join(htmlRoot, "x.md")
	write(t, fs, src, "---\ntitle: [oops\n---\nbody")

	_, err := b.BuildContent(src)
	require.Error(t, err)
	var perr *PageError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, StageContent, perr.Stage)
}

func TestBodyTemplateFailureDegrades(t *testing.T) {
	b, fs := newTestBuilder(t)
	src := filepath.Join(htmlRoot, "broken.md")
	write(t, fs, src, "# Title\nbefore {{index .Tags 3}} after")

	page, err := b.WriteContent(src)
	require.NoError(t, err)
	require.Error(t, page.Err)

	var perr *PageError
	require.True(t, errors.As(page.Err, &perr))
	assert.Equal(t, StageContent, perr.Stage)
	// markdown is skipped for failed bodies
	assert.Equal(t, "# Title\nbefore ", page.Content)
	assert.Contains(t, read(t, fs, page.OutputFilePath), "# Title\nbefore ")
}

func TestBodyParseFailureKeepsRawBody(t *testing.T) {
	b, fs := newTestBuilder(t)
	src := filepath.Join(htmlRoot, "raw.html")
	write(t, fs, src, "<p>{{ .Title </p>")

	page, err := b.BuildContent(src)
	require.NoError(t, err)
	require.Error(t, page.Err)
	assert.Equal(t, "<p>{{ .Title </p>", page.Content)
}

func TestLayoutFailureGivesEmptyHTML(t *testing.T) {
	b, fs := newTestBuilder(t)
	write(t, fs, "/site/client/themes/default/bad.html", `start {{index .Tags 9}}`)
	src := filepath.Join(htmlRoot, "p.html")
	write(t, fs, src, "---\nlayout: bad\n---\n<p>x</p>")

	page, err := b.BuildContent(src)
	require.NoError(t, err)
	var perr *PageError
	require.True(t, errors.As(page.Err, &perr))
	assert.Equal(t, StageLayout, perr.Stage)
	assert.Empty(t, page.HTML)
}

func TestDateAndTitleFromFilename(t *testing.T) {
	b, fs := newTestBuilder(t)
	src := filepath.Join(htmlRoot, "posts", "2024-03-09-my-first-post.md")
	write(t, fs, src, "---\ntags: go, web\n---\nText")

	page, err := b.BuildContent(src)
	require.NoError(t, err)
	assert.Equal(t, "My First Post", page.Title)
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), page.Date)
	assert.Equal(t, []string{"go", "web"}, page.Tags)

	write(t, fs, src, "---\ndate: 2023-01-02\ntitle: Explicit\n---\nText")
	page, err = b.BuildContent(src)
	require.NoError(t, err)
	assert.Equal(t, "Explicit", page.Title)
	assert.Equal(t, 2023, page.Date.Year())
}

func TestSummary(t *testing.T) {
	b, fs := newTestBuilder(t)
	src := filepath.Join(htmlRoot, "long.md")
	write(t, fs, src, "Intro paragraph.\n\n<!--more-->\n\nRest of the post.\n")

	page, err := b.BuildContent(src)
	require.NoError(t, err)
	assert.Equal(t, "<p>Intro paragraph.</p>\n", page.Summary)
}

func TestManifestRewriting(t *testing.T) {
	b, fs := newTestBuilder(t)
	b.SetManifest(assets.Manifest{"blog": {"css": "blog-AB12.css"}})
	src := filepath.Join(htmlRoot, "a.html")
	write(t, fs, src, "<p>a</p>")

	page, err := b.BuildContent(src)
	require.NoError(t, err)
	assert.Contains(t, page.HTML, `href="/blog/blog-AB12.css"`)
}

func TestBuildContentsSkipsTemplateDirsAndIgnored(t *testing.T) {
	b, fs := newTestBuilder(t)
	write(t, fs, filepath.Join(htmlRoot, "layouts", "application.html"), "app layout {{.Content}}")
	write(t, fs, filepath.Join(htmlRoot, ".DS_Store"), "junk")
	write(t, fs, filepath.Join(htmlRoot, "draft.md.swp"), "junk")
	write(t, fs, filepath.Join(htmlRoot, "one.md"), "# One")
	write(t, fs, filepath.Join(htmlRoot, "sub", "two.html"), "<p>two</p>")
	write(t, fs, filepath.Join(htmlRoot, "sub", "pic.jpg"), "jpg")

	pages, err := b.BuildContents(htmlRoot)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	for _, p := range []string{"layouts/application.html", ".DS_Store", "draft.md.swp"} {
		ok, err := afero.Exists(fs, filepath.Join(outRoot, p))
		require.NoError(t, err)
		assert.False(t, ok, p)
	}
	// the app layout wins over the theme layout
	assert.Contains(t, read(t, fs, filepath.Join(outRoot, "one.md")), "app layout")
	assert.Equal(t, "jpg", read(t, fs, filepath.Join(outRoot, "sub", "pic.jpg")))
}

func TestBuildContentsMissingRoot(t *testing.T) {
	b, _ := newTestBuilder(t)
	pages, err := b.BuildContents("/site/nowhere")
	require.NoError(t, err)
	assert.Empty(t, pages)

	pages, err = b.BuildContents("")
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestOutFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/out", "a", "b.md"), OutFilePath(nil, "/out", filepath.Join("a", "b.md")))
	assert.Equal(t, filepath.Join("/out", "x", "index.html"), OutFilePath(&Page{Destination: "/x/"}, "/out", "a.md"))
	assert.Equal(t, filepath.Join("/out", "x.html"), OutFilePath(&Page{Destination: "x.html"}, "/out", "a.md"))
}

func TestFilename2Date(t *testing.T) {
	info, ok := Filename2Date("/c/2020-12-31-new-year.md")
	require.True(t, ok)
	assert.Equal(t, "new-year", info.Slug)
	assert.Equal(t, "New Year", info.Title)
	assert.Equal(t, 2020, info.Date.Year())

	_, ok = Filename2Date("/c/about.md")
	assert.False(t, ok)
	_, ok = Filename2Date("/c/2020-13-45-bad.md")
	assert.False(t, ok)
}

func TestSortByDate(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }
	pages := []*Page{
		{URL: "/b", Date: d(1)},
		{URL: "/c", Date: d(3)},
		{URL: "/a", Date: d(1)},
	}
	SortByDate(pages)
	assert.Equal(t, []string{"/c", "/a", "/b"}, []string{pages[0].URL, pages[1].URL, pages[2].URL})
}

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseTags("a, b,,a"))
	assert.Equal(t, []string{"x", "y"}, parseTags([]interface{}{"x", "y", "x"}))
	assert.Nil(t, parseTags(nil))
}

func TestRenderLayout(t *testing.T) {
	b, fs := newTestBuilder(t)
	write(t, fs, "/site/client/themes/default/posts.html", `<link href="/blog_bundle.css">{{range .Posts}}{{.}};{{end}}{{.Site.Title}}`)

	data := b.BaseData()
	data["Posts"] = []string{"a", "b"}
	out, err := b.RenderLayout("posts", data, "/posts/")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outRoot, "posts", "index.html"), out)
	assert.Equal(t, `<link href="/blog/blog_bundle.css">a;b;Speak Easy`, read(t, fs, out))

	_, err = b.RenderLayout("tag", data, "/tags/go/")
	assert.True(t, errors.Is(err, templates.ErrTemplateNotFound))
}

func TestUnder(t *testing.T) {
	assert.True(t, Under("/a/b", "/a/b/c.md"))
	assert.True(t, Under("/a/b", "/a/b"))
	assert.False(t, Under("/a/b", "/a/bc/d.md"))
	assert.False(t, Under("/a/b", "/a"))
	assert.False(t, Under("", "/a"))
}
