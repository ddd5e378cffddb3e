// Package render turns report contexts into HTML markup and PDF documents.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed templates/*.html.tmpl
var bundledTemplates embed.FS

// TemplateSuffix is appended to a template name to find its file.
const TemplateSuffix = ".html.tmpl"

// NotAvailable is shown in place of absent values.
const NotAvailable = "N/A"

var ErrTemplateNotFound = errors.New("report template not found")

// TemplateRenderer executes named report templates.
type TemplateRenderer struct {
	set *template.Template
}

// NewTemplateRenderer parses the templates bundled with the binary.
func NewTemplateRenderer() (*TemplateRenderer, error) {
	sub, err := fs.Sub(bundledTemplates, "templates")
	if err != nil {
		return nil, err
	}
	return NewTemplateRendererFS(sub)
}

// NewTemplateRendererFS parses every *.html.tmpl file at the top of fsys.
func NewTemplateRendererFS(fsys fs.FS) (*TemplateRenderer, error) {
	set, err := template.New("reports").Funcs(Funcs()).ParseFS(fsys, "*"+TemplateSuffix)
	if err != nil {
		return nil, fmt.Errorf("parse report templates: %w", err)
	}
	return &TemplateRenderer{set: set}, nil
}

// Render executes the template called name (without suffix) into w.
func (r *TemplateRenderer) Render(w io.Writer, name string, data interface{}) error {
	tmpl := r.set.Lookup(name + TemplateSuffix)
	if tmpl == nil {
		return fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return tmpl.Execute(w, data)
}

// RenderHTML executes the template and returns the markup.
func (r *TemplateRenderer) RenderHTML(name string, data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Names lists the available template names.
func (r *TemplateRenderer) Names() []string {
	var names []string
	for _, t := range r.set.Templates() {
		if strings.HasSuffix(t.Name(), TemplateSuffix) {
			names = append(names, strings.TrimSuffix(t.Name(), TemplateSuffix))
		}
	}
	sort.Strings(names)
	return names
}

// Funcs returns the helpers available inside report templates.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"value":      FormatValue,
		"label":      formatLabel,
		"classClass": ClassificationClass,
		"present":    func(v interface{}) bool { return v != nil },
		"inc":        func(i int) int { return i + 1 },
	}
}

// FormatValue renders a resolved field value, substituting N/A for nil.
func FormatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return NotAvailable
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func formatLabel(label *string) string {
	if label == nil {
		return ""
	}
	return *label
}

// ClassificationClass maps a classification label to a CSS class name,
// e.g. "Normal weight" to "class-normal-weight".
func ClassificationClass(label *string) string {
	if label == nil || strings.TrimSpace(*label) == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("class-")
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(*label)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
