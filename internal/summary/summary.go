// Package summary extracts the teaser of a rendered page.
package summary

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

var voidElements = map[string]struct{}{
	"area": {}, "base": {}, "br": {}, "col": {}, "embed": {}, "hr": {}, "img": {},
	"input": {}, "link": {}, "meta": {}, "source": {}, "track": {}, "wbr": {},
}

// Summarize returns the part of s before marker when s contains it. Otherwise
// it returns s truncated so that the result, closing tags included, is at most
// budget bytes long. Tags are never cut; an image that does not fit is left
// out whole. A budget <= 0 disables truncation.
func Summarize(s, marker string, budget int) string {
	if marker != "" {
		if i := strings.Index(s, marker); i >= 0 {
			return s[:i]
		}
	}
	if budget <= 0 || len(s) <= budget {
		return s
	}
	return Truncate(s, budget)
}

// Truncate cuts the HTML fragment s to at most budget bytes and closes the
// elements still open at the cut.
func Truncate(s string, budget int) string {
	var (
		out     bytes.Buffer
		stack   []string
		closers int
	)
	remaining := func() int { return budget - out.Len() - closers }

	z := html.NewTokenizer(strings.NewReader(s))
loop:
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := z.Raw()

		switch tt {
		case html.TextToken:
			if len(raw) <= remaining() {
				out.Write(raw)
				continue
			}
			out.Write(cutText(raw, remaining()))
			break loop

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			_, void := voidElements[tag]
			if void || tt == html.SelfClosingTagToken {
				if len(raw) > remaining() {
					break loop
				}
				out.Write(raw)
				continue
			}
			closer := len(tag) + 3
			if len(raw)+closer > remaining() {
				break loop
			}
			out.Write(raw)
			stack = append(stack, tag)
			closers += closer

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			i := lastIndex(stack, tag)
			if i < 0 {
				continue
			}
			for len(stack) > i {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				closers -= len(top) + 3
				out.WriteString("</" + top + ">")
			}

		default:
			if len(raw) > remaining() {
				break loop
			}
			out.Write(raw)
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		out.WriteString("</" + stack[i] + ">")
	}
	return out.String()
}

func lastIndex(stack []string, tag string) int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == tag {
			return i
		}
	}
	return -1
}

// cutText returns the longest prefix of text of at most n bytes that does not
// end inside a rune or a character reference.
func cutText(text []byte, n int) []byte {
	if n <= 0 {
		return nil
	}
	if n > len(text) {
		n = len(text)
	}
	for n > 0 && n < len(text) && !utf8.RuneStart(text[n]) {
		n--
	}
	cut := text[:n]
	if amp := bytes.LastIndexByte(cut, '&'); amp >= 0 && isOpenReference(text[amp+1:], len(cut)-amp-1) {
		cut = cut[:amp]
	}
	return cut
}

// isOpenReference reports whether rest, the text following an "&", starts a
// character reference that the first kept bytes do not finish.
func isOpenReference(rest []byte, kept int) bool {
	for i, c := range rest {
		switch {
		case c == ';':
			return i > 0 && i >= kept
		case c == '#' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9':
		default:
			return false
		}
	}
	return false
}
