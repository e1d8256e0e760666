// Package prompts holds the embedded prompt catalog
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Prompt names in prompts.yaml
const (
	ExtractTransaction = "extract_transaction"
	ClassifyIntent     = "classify_intent"
	DuplicateFile      = "duplicate_file"
	DuplicateWarning   = "duplicate_warning"
	ImportSummary      = "import_summary"
	TransactionSuccess = "transaction_success"
	TransactionFailure = "transaction_failure"
	General            = "general"
	AdvisorAnswer      = "advisor_answer"
	MapColumns         = "map_columns"
)

//go:embed prompts.yaml
var catalogYAML []byte

var funcs = template.FuncMap{
	"join": strings.Join,
}

// Catalog is a parsed set of prompt templates
type Catalog struct {
	templates map[string]*template.Template
}

// Parse builds a catalog from YAML mapping prompt names to templates
func Parse(data []byte) (*Catalog, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}

	c := &Catalog{templates: make(map[string]*template.Template, len(raw))}
	for name, text := range raw {
		tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", name, err)
		}
		c.templates[name] = tmpl
	}
	return c, nil
}

// Default returns the embedded catalog. It panics if the embedded file is broken.
func Default() *Catalog {
	c, err := Parse(catalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Render executes the named prompt with data
func (c *Catalog) Render(name string, data any) (string, error) {
	tmpl, ok := c.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Has reports whether the catalog defines name
func (c *Catalog) Has(name string) bool {
	_, ok := c.templates[name]
	return ok
}
