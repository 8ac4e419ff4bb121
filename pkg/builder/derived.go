package builder

import (
	"fmt"
	"path"
	"sort"

	"github.com/toastate/toastblog/internal/content"
	"github.com/toastate/toastblog/internal/helpers"
	"github.com/toastate/toastblog/internal/tlogger"
)

const (
	postsLayout    = "posts"
	tagLayout      = "tag"
	tagsLayout     = "tags"
	postsURL       = "/posts/"
	defaultTagPath = "tags"
)

// Pagination is passed to listing layouts.
type Pagination struct {
	Page       int
	TotalPages int
	PrevURL    string
	NextURL    string
}

// Tag groups the pages carrying one tag, newest first.
type Tag struct {
	Name  string
	Slug  string
	URL   string
	Pages []*content.Page
}

// Posts returns the pages listed by the post listings: the pages under the
// app's post source. Apps without one have no listings.
func Posts(ab *AppBuild) []*content.Page {
	if ab.App.PostSource == "" {
		return nil
	}
	var out []*content.Page
	for _, p := range ab.Pages {
		if content.Under(ab.App.PostSource, p.Source) {
			out = append(out, p)
		}
	}
	return out
}

func pageURL(n int) string {
	if n <= 1 {
		return postsURL
	}
	return fmt.Sprintf("%spage/%d/", postsURL, n)
}

// BuildPostPages writes the paginated post listings with the posts layout.
func (b *Builder) BuildPostPages(ab *AppBuild) error {
	posts := Posts(ab)
	if len(posts) == 0 {
		return nil
	}

	per := ab.App.HTMLOptions.Paginate
	if per <= 0 {
		per = len(posts)
	}
	total := (len(posts) + per - 1) / per

	for n := 1; n <= total; n++ {
		end := n * per
		if end > len(posts) {
			end = len(posts)
		}
		pagination := Pagination{Page: n, TotalPages: total}
		if n > 1 {
			pagination.PrevURL = pageURL(n - 1)
		}
		if n < total {
			pagination.NextURL = pageURL(n + 1)
		}

		data := ab.Content.BaseData()
		data["Title"] = ab.App.HTMLOptions.RecentPostsTitle
		data["URL"] = pageURL(n)
		data["Posts"] = posts[(n-1)*per : end]
		data["Pagination"] = pagination

		out, err := ab.Content.RenderLayout(postsLayout, data, pageURL(n))
		if err != nil {
			if isTemplateNotFound(err) {
				tlogger.Warn("msg", "No posts layout, skipping post listings", "app", ab.App.Name)
				return nil
			}
			return fmt.Errorf("post listing %d of %s: %w", n, ab.App.Name, err)
		}
		tlogger.Debug("builder", "derived", "msg", "Wrote post listing", "app", ab.App.Name, "out", out)
	}
	return nil
}

// Tags groups pages by tag slug, ordered by slug.
func Tags(pages []*content.Page, tagsPath string) []*Tag {
	if tagsPath == "" {
		tagsPath = defaultTagPath
	}
	bySlug := map[string]*Tag{}
	for _, p := range pages {
		for _, name := range p.Tags {
			slug := helpers.CleanTag(name)
			if slug == "" {
				continue
			}
			t, ok := bySlug[slug]
			if !ok {
				t = &Tag{
					Name: name,
					Slug: slug,
					URL:  path.Join("/", tagsPath, slug) + "/",
				}
				bySlug[slug] = t
			}
			t.Pages = append(t.Pages, p)
		}
	}

	tags := make([]*Tag, 0, len(bySlug))
	for _, t := range bySlug {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Slug < tags[j].Slug })
	return tags
}

// BuildTagPages writes one page per tag with the tag layout, then the tag
// index with the tags layout.
func (b *Builder) BuildTagPages(ab *AppBuild) error {
	tags := Tags(ab.Pages, ab.App.TemplateData.Site.TagsPath)
	if len(tags) == 0 {
		return nil
	}

	for _, t := range tags {
		data := ab.Content.BaseData()
		data["Title"] = t.Name
		data["URL"] = t.URL
		data["Tag"] = t
		data["Posts"] = t.Pages

		_, err := ab.Content.RenderLayout(tagLayout, data, t.URL)
		if err != nil {
			if isTemplateNotFound(err) {
				tlogger.Warn("msg", "No tag layout, skipping tag pages", "app", ab.App.Name)
				break
			}
			return fmt.Errorf("tag page %s of %s: %w", t.Slug, ab.App.Name, err)
		}
	}

	tagsPath := ab.App.TemplateData.Site.TagsPath
	if tagsPath == "" {
		tagsPath = defaultTagPath
	}
	indexURL := path.Join("/", tagsPath) + "/"

	data := ab.Content.BaseData()
	data["Title"] = "Tags"
	data["URL"] = indexURL
	data["Tags"] = tags

	_, err := ab.Content.RenderLayout(tagsLayout, data, indexURL)
	if err != nil {
		if isTemplateNotFound(err) {
			tlogger.Warn("msg", "No tags layout, skipping tag index", "app", ab.App.Name)
			return nil
		}
		return fmt.Errorf("tag index of %s: %w", ab.App.Name, err)
	}
	return nil
}
