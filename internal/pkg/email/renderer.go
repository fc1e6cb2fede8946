package email

import (
	"bytes"
	"fmt"
	"text/template"
)

// Renderer holds the parsed plain-text templates keyed by name.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses the given name->source templates. A template that fails to parse is an error:
// notices are fixed text and a broken one is a programming mistake.
func NewRenderer(sources map[string]string) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(sources))}
	for name, content := range sources {
		tmpl, err := template.New(name).Option("missingkey=error").Parse(content)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render executes the named template with data
func (r *Renderer) Render(name string, data interface{}) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("template %s not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
