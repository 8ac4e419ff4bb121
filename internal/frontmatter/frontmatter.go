// Package frontmatter splits a content file into its metadata block and body.
//
// A YAML block is delimited by "---" lines and a TOML block by "+++" lines.
// Both must start on the first line of the file.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Format int

const (
	None Format = iota
	YAML
	TOML
)

func (f Format) String() string {
	switch f {
	case YAML:
		return "yaml"
	case TOML:
		return "toml"
	default:
		return "none"
	}
}

// ErrMissingClosingDelimiter is returned when a file opens a front matter
// block that is never closed.
var ErrMissingClosingDelimiter = errors.New("front matter start delimiter found but closing delimiter is missing")

var delimiters = map[Format]string{
	YAML: "---",
	TOML: "+++",
}

// Split returns the raw front matter and the body. When content has no front
// matter the format is None and body is the whole input.
func Split(content []byte) (fm []byte, body []byte, format Format, err error) {
	nl := "\n"
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		nl = "\r\n"
	}

	for _, f := range []Format{YAML, TOML} {
		delim := delimiters[f]
		open := []byte(delim + nl)
		if !bytes.HasPrefix(content, open) {
			continue
		}
		rest := content[len(open):]

		// empty block
		if bytes.HasPrefix(rest, []byte(delim)) {
			after := rest[len(delim):]
			if len(after) == 0 || bytes.HasPrefix(after, []byte(nl)) {
				return []byte{}, bytes.TrimPrefix(after, []byte(nl)), f, nil
			}
		}

		closeSeq := []byte(nl + delim)
		idx := bytes.Index(rest, closeSeq)
		for idx >= 0 {
			end := idx + len(closeSeq)
			if end == len(rest) {
				return rest[:idx+len(nl)], []byte{}, f, nil
			}
			if bytes.HasPrefix(rest[end:], []byte(nl)) {
				return rest[:idx+len(nl)], rest[end+len(nl):], f, nil
			}
			next := bytes.Index(rest[end:], closeSeq)
			if next < 0 {
				break
			}
			idx = end + next
		}
		return nil, nil, f, ErrMissingClosingDelimiter
	}

	return nil, content, None, nil
}

// Parse decodes raw front matter of the given format into a map. An empty
// block yields an empty map.
func Parse(fm []byte, format Format) (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if len(bytes.TrimSpace(fm)) == 0 {
		return fields, nil
	}

	var err error
	switch format {
	case YAML:
		err = yaml.Unmarshal(fm, &fields)
	case TOML:
		err = toml.Unmarshal(fm, &fields)
	default:
		return fields, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s front matter: %w", format, err)
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	return fields, nil
}

// Document is a content file split into attributes and body.
type Document struct {
	Attributes map[string]interface{}
	Body       []byte
	Format     Format
}

// Read splits and parses content in one call.
func Read(content []byte) (*Document, error) {
	fm, body, format, err := Split(content)
	if err != nil {
		return nil, err
	}
	attrs, err := Parse(fm, format)
	if err != nil {
		return nil, err
	}
	return &Document{
		Attributes: attrs,
		Body:       body,
		Format:     format,
	}, nil
}

// Raw returns the front matter block of content, delimiters excluded, or nil.
func Raw(content []byte) []byte {
	fm, _, _, err := Split(content)
	if err != nil {
		return nil
	}
	return fm
}
