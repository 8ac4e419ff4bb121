package content

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/toastate/toastblog/internal/helpers"
	"github.com/toastate/toastblog/internal/markdown"
)

// Stages of the pipeline a PageError can come from.
const (
	StageContent  = "content"
	StageMarkdown = "markdown"
	StageLayout   = "layout"
)

// Page is the result of building one content file.
type Page struct {
	Title       string
	Date        time.Time
	Metadata    map[string]interface{}
	Tags        []string
	Layout      string
	Destination string
	URL         string

	// Content is the rendered body, Summary its teaser and HTML the final
	// page after layout and asset rewriting.
	Content  string
	Summary  string
	HTML     string
	Headings []markdown.Heading

	Source         string
	Rel            string
	OutputFilePath string
	Fingerprint    string

	// Err is set when a stage failed and the page was built from degraded
	// output.
	Err error
}

// PageError reports a failed stage of one page.
type PageError struct {
	Stage  string
	Source string
	Err    error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("%s stage of %s: %v", e.Stage, e.Source, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// FilenameInfo is what a "YYYY-MM-DD-slug.ext" file name tells about a page.
type FilenameInfo struct {
	Date  time.Time
	Slug  string
	Title string
}

var datedFilename = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-(.+)$`)

// Filename2Date parses the date and title out of a dated file name.
func Filename2Date(p string) (FilenameInfo, bool) {
	base := filepath.Base(p)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	m := datedFilename.FindStringSubmatch(base)
	if m == nil {
		return FilenameInfo{}, false
	}
	date, err := time.Parse("2006-01-02", m[1])
	if err != nil {
		return FilenameInfo{}, false
	}
	return FilenameInfo{
		Date:  date,
		Slug:  m[2],
		Title: helpers.Humanize(m[2]),
	}, true
}

// OutFilePath returns where the page built from the file at rel, relative to
// the content root, is written. A destination ending with "/" is written as
// its index.html. Without a page or a destination the relative path is kept.
func OutFilePath(page *Page, outputPath, rel string) string {
	if page != nil && page.Destination != "" {
		if strings.HasSuffix(page.Destination, "/") {
			return filepath.Join(outputPath, filepath.FromSlash(page.Destination), "index.html")
		}
		return filepath.Join(outputPath, filepath.FromSlash(page.Destination))
	}
	return filepath.Join(outputPath, rel)
}

// URLFor returns the site URL of a page written from rel without a destination.
func URLFor(rel string) string {
	u := "/" + filepath.ToSlash(rel)
	if strings.HasSuffix(u, "/index.html") {
		u = strings.TrimSuffix(u, "index.html")
	}
	return u
}

// SortByDate orders pages newest first. Pages of the same date are ordered by URL.
func SortByDate(pages []*Page) {
	sort.SliceStable(pages, func(i, j int) bool {
		if !pages[i].Date.Equal(pages[j].Date) {
			return pages[i].Date.After(pages[j].Date)
		}
		return pages[i].URL < pages[j].URL
	})
}

func metaString(meta map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := meta[k]; ok {
			if s := strings.TrimSpace(cast.ToString(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

// parseTags accepts a list or a comma separated string.
func parseTags(v interface{}) []string {
	if v == nil {
		return nil
	}
	var raw []string
	if s, ok := v.(string); ok {
		raw = strings.Split(s, ",")
	} else {
		raw = cast.ToStringSlice(v)
	}

	var tags []string
	seen := map[string]struct{}{}
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	return tags
}
