package templates

import (
	"html/template"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/toastate/toastblog/internal/helpers"
)

// Funcs are available in layouts and in page bodies.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"cleanTag":   helpers.CleanTag,
		"slugify":    helpers.Slugify,
		"formatDate": formatDate,
		"safeHTML":   safeHTML,
		"lower":      strings.ToLower,
		"upper":      strings.ToUpper,
		"join":       join,
		"default":    defaultValue,
	}
}

// formatDate accepts anything cast understands as a time. An empty layout
// formats as "January 2, 2006".
func formatDate(layout string, v interface{}) string {
	t, err := cast.ToTimeE(v)
	if err != nil || t.IsZero() {
		return ""
	}
	if layout == "" {
		layout = "January 2, 2006"
	}
	return t.Format(layout)
}

func safeHTML(v interface{}) template.HTML {
	return template.HTML(cast.ToString(v))
}

func join(sep string, v interface{}) string {
	return strings.Join(cast.ToStringSlice(v), sep)
}

func defaultValue(def, v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return def
	case string:
		if x == "" {
			return def
		}
	case time.Time:
		if x.IsZero() {
			return def
		}
	}
	return v
}
