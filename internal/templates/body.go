package templates

import (
	"bytes"
	"fmt"
	texttemplate "text/template"
)

// EvalBody evaluates a page body as a text template. Output is not escaped:
// bodies are HTML or markdown written by the site author. On error the output
// produced so far is returned with it.
func EvalBody(name string, body []byte, data interface{}) ([]byte, error) {
	if !bytes.Contains(body, []byte("{{")) {
		return body, nil
	}

	tmpl, err := texttemplate.New(name).
		Funcs(texttemplate.FuncMap(Funcs())).
		Option("missingkey=zero").
		Parse(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, data)
	if err != nil {
		return buf.Bytes(), fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
