package builder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toastate/toastblog/internal/content"
	"github.com/toastate/toastblog/internal/metrics"
	"github.com/toastate/toastblog/internal/settings"
	"github.com/toastate/toastblog/pkg/config"
)

const (
	devRoot  = "/site/build/dev"
	themeDir = "/site/client/themes/default"
)

func newTestBuilder(t *testing.T, opts *BuilderOpts, mutate func(*config.Configuration)) (*Builder, afero.Fs) {
	t.Helper()
	cfg := config.DefaultConfiguration()
	cfg.RootDir = "/site"
	if mutate != nil {
		mutate(cfg)
	}
	fs := afero.NewMemMapFs()
	if opts == nil {
		opts = &BuilderOpts{}
	}
	opts.Settings.Stage = "development"
	return NewBuilder(cfg, fs, opts), fs
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

func exists(t *testing.T, fs afero.Fs, p string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, p)
	require.NoError(t, err)
	return ok
}

func writeSite(t *testing.T, fs afero.Fs) {
	t.Helper()
	write(t, fs, filepath.Join(themeDir, "application.html"), `<h1>{{.Title}}</h1>{{.Content}}`)
	write(t, fs, filepath.Join(themeDir, "home.html"), `home:{{.Content}}`)
	write(t, fs, filepath.Join(themeDir, "posts.html"),
		`{{range .Posts}}[{{.Title}}]{{end}}|{{.Pagination.Page}}/{{.Pagination.TotalPages}}|{{.Pagination.NextURL}}`)
	write(t, fs, filepath.Join(themeDir, "tag.html"), `tag:{{.Tag.Name}}:{{len .Posts}}`)

	write(t, fs, "/site/client/apps/blog/html/index.html", `<p>welcome</p>`)
	write(t, fs, "/site/client/apps/blog/static/robots.txt", "User-agent: *")

	write(t, fs, "/site/content/about.md", "---\ntitle: About\n---\nabout us\n")
	write(t, fs, "/site/content/posts/2024-01-02-first.md", "---\ntags: [Go, Web]\n---\nfirst body\n")
	write(t, fs, "/site/content/posts/2024-03-05-second.md", "---\ntitle: Second\ntags: go\n---\nsecond body\n")
}

func TestBuildEverything(t *testing.T) {
	b, fs := newTestBuilder(t, nil, nil)
	writeSite(t, fs)

	res, err := b.Build(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.ID)
	require.Len(t, res.Apps, 2)
	assert.Equal(t, "blog", res.Apps[0].App.Name)
	assert.Equal(t, "posts", res.Apps[1].App.Name)
	assert.Len(t, res.Pages(), 4)

	assert.Equal(t, "User-agent: *", read(t, fs, filepath.Join(devRoot, "blog", "robots.txt")))
	assert.Equal(t, "home:<p>welcome</p>", read(t, fs, filepath.Join(devRoot, "blog", "index.html")))
	assert.Contains(t, read(t, fs, filepath.Join(devRoot, "about.md")), "<h1>About</h1>")

	posts := res.Apps[1].Pages
	require.Len(t, posts, 3)
	assert.Equal(t, "Second", posts[0].Title)
	assert.Equal(t, "First", posts[1].Title)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), posts[1].Date.UTC())

	assert.False(t, exists(t, fs, filepath.Join(devRoot, "blog", "posts", "index.html")), "apps without a post source have no listings")
	assert.Equal(t, "[Second][First]|1/1|", read(t, fs, filepath.Join(devRoot, "posts", "index.html")))
	// the newest page names the tag
	assert.Equal(t, "tag:go:2", read(t, fs, filepath.Join(devRoot, "tags", "go", "index.html")))
	assert.Equal(t, "tag:Web:1", read(t, fs, filepath.Join(devRoot, "tags", "web", "index.html")))
	assert.False(t, exists(t, fs, filepath.Join(devRoot, "tags", "index.html")))
}

func TestBuildPaginatesPosts(t *testing.T) {
	b, fs := newTestBuilder(t, nil, func(c *config.Configuration) {
		c.HTMLOptions.Paginate = 1
	})
	writeSite(t, fs)

	_, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "[Second]|1/2|/posts/page/2/", read(t, fs, filepath.Join(devRoot, "posts", "index.html")))
	assert.Equal(t, "[First]|2/2|", read(t, fs, filepath.Join(devRoot, "posts", "page", "2", "index.html")))
}

func TestBuildWithoutSources(t *testing.T) {
	b, _ := newTestBuilder(t, nil, nil)
	_, err := b.Build(context.Background())
	require.ErrorIs(t, err, ErrSrcNotFound)
}

type pageCounter struct {
	metrics.NoopRecorder
	results map[metrics.PageResult]int
}

func (c *pageCounter) IncPageResult(_ string, r metrics.PageResult) {
	c.results[r]++
}

func TestBuildMissingLayoutFails(t *testing.T) {
	rec := &pageCounter{results: map[metrics.PageResult]int{}}
	b, fs := newTestBuilder(t, &BuilderOpts{Recorder: rec}, nil)
	write(t, fs, "/site/content/about.md", "---\nlayout: nowhere\n---\nx\n")

	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, rec.results[metrics.PageFailed])
	assert.Zero(t, rec.results[metrics.PageOK])
}

func TestNewBuilderKeepsCallerOptions(t *testing.T) {
	opts := &BuilderOpts{Strict: true}
	b := NewBuilder(config.DefaultConfiguration(), afero.NewMemMapFs(), opts)
	require.NoError(t, b.Init())

	assert.Equal(t, &BuilderOpts{Strict: true}, opts)
	assert.Equal(t, "development", b.opts.Settings.Stage)
	assert.Equal(t, 8080, b.opts.Settings.Port)
	assert.NotNil(t, b.opts.Recorder)
}

func TestDegradedPagePolicy(t *testing.T) {
	page := "---\ntitle: Broken\n---\n{{ .Title | nofunc }}\n"

	b, fs := newTestBuilder(t, nil, nil)
	writeSite(t, fs)
	write(t, fs, "/site/content/broken.md", page)
	_, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Contains(t, read(t, fs, filepath.Join(devRoot, "broken.md")), "<h1>Broken</h1>")

	b, fs = newTestBuilder(t, &BuilderOpts{Strict: true}, nil)
	writeSite(t, fs)
	write(t, fs, "/site/content/broken.md", page)
	_, err = b.Build(context.Background())
	require.ErrorIs(t, err, ErrDegradedPage)
}

func TestBuildCleansOutput(t *testing.T) {
	b, fs := newTestBuilder(t, &BuilderOpts{Clean: true}, nil)
	writeSite(t, fs)
	write(t, fs, filepath.Join(devRoot, "stale.html"), "old")

	_, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.False(t, exists(t, fs, filepath.Join(devRoot, "stale.html")))
	assert.True(t, exists(t, fs, filepath.Join(devRoot, "posts", "index.html")))
}

func TestRebuild(t *testing.T) {
	ctx := context.Background()
	b, fs := newTestBuilder(t, nil, nil)
	writeSite(t, fs)

	kind, err := b.Rebuild(ctx, "/site/content/about.md")
	require.NoError(t, err)
	assert.Equal(t, RebuildFull, kind, "first change without a build runs a full build")

	write(t, fs, "/site/content/posts/2024-01-02-first.md", "---\ntitle: Renamed\n---\nfirst body\n")
	kind, err = b.Rebuild(ctx, "/site/content/posts/2024-01-02-first.md")
	require.NoError(t, err)
	assert.Equal(t, RebuildContent, kind)
	assert.Equal(t, "[Second][Renamed]|1/1|", read(t, fs, filepath.Join(devRoot, "posts", "index.html")))

	write(t, fs, "/site/client/apps/blog/static/humans.txt", "us")
	kind, err = b.Rebuild(ctx, "/site/client/apps/blog/static/humans.txt")
	require.NoError(t, err)
	assert.Equal(t, RebuildStatic, kind)
	assert.Equal(t, "us", read(t, fs, filepath.Join(devRoot, "blog", "humans.txt")))

	write(t, fs, "/site/client/apps/blog/html/layouts/home.html", `app-home:{{.Content}}`)
	kind, err = b.Rebuild(ctx, "/site/client/apps/blog/html/layouts/home.html")
	require.NoError(t, err)
	assert.Equal(t, RebuildApp, kind)
	assert.Equal(t, "app-home:<p>welcome</p>", read(t, fs, filepath.Join(devRoot, "blog", "index.html")))

	write(t, fs, filepath.Join(themeDir, "application.html"), `<h2>{{.Title}}</h2>`)
	kind, err = b.Rebuild(ctx, filepath.Join(themeDir, "application.html"))
	require.NoError(t, err)
	assert.Equal(t, RebuildFull, kind)
	assert.Equal(t, "<h2>About</h2>", read(t, fs, filepath.Join(devRoot, "about.md")))

	kind, err = b.Rebuild(ctx, "/elsewhere/file.txt")
	require.NoError(t, err)
	assert.Equal(t, RebuildNone, kind)

	kind, err = b.Rebuild(ctx, "/site/content/removed.md")
	require.NoError(t, err)
	assert.Equal(t, RebuildContent, kind)
}

func TestWatchRoots(t *testing.T) {
	b, fs := newTestBuilder(t, nil, nil)
	require.NoError(t, b.Init())
	assert.Empty(t, b.WatchRoots())

	writeSite(t, fs)
	assert.Equal(t, []string{
		filepath.Join("/site", "client/apps"),
		filepath.Join("/site", "client/themes"),
		filepath.Join("/site", "content"),
	}, b.WatchRoots())
}

func TestTags(t *testing.T) {
	a := &content.Page{Title: "a", Tags: []string{"Go", "Élan"}}
	c := &content.Page{Title: "c", Tags: []string{"go"}}

	tags := Tags([]*content.Page{a, c}, "")
	require.Len(t, tags, 2)
	assert.Equal(t, "elan", tags[0].Slug)
	assert.Equal(t, "/tags/elan/", tags[0].URL)
	assert.Equal(t, "go", tags[1].Slug)
	assert.Equal(t, "Go", tags[1].Name)
	assert.Equal(t, []*content.Page{a, c}, tags[1].Pages)

	tags = Tags([]*content.Page{a}, "topics")
	assert.Equal(t, "/topics/go/", tags[1].URL)
}

func TestPostsUnderPostSource(t *testing.T) {
	in := &content.Page{Source: "/site/content/posts/a.md"}
	out := &content.Page{Source: "/site/content/about.md"}
	ab := &AppBuild{
		App:   &settings.App{PostSource: "/site/content/posts"},
		Pages: []*content.Page{in, out},
	}
	assert.Equal(t, []*content.Page{in}, Posts(ab))

	ab.App.PostSource = ""
	assert.Empty(t, Posts(ab))
}
