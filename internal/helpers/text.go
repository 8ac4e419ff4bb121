package helpers

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var windowCRregexp = regexp.MustCompile(`\r\n`)

// NormalizeNewlines replaces Windows line endings with "\n".
func NormalizeNewlines(b []byte) []byte {
	return windowCRregexp.ReplaceAll(b, []byte("\n"))
}

func removeAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Slugify lowercases s, strips accents and joins the remaining letter and
// digit runs with "-".
func Slugify(s string) string {
	s = strings.ToLower(removeAccents(s))

	var b strings.Builder
	dash := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

// CleanTag turns a tag into the path segment of its tag page.
func CleanTag(tag string) string {
	return Slugify(strings.TrimSpace(tag))
}

// Humanize turns a file slug such as "my-first-post" into "My First Post".
func Humanize(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	return cases.Title(language.Und).String(strings.Join(words, " "))
}
