package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"strings"
)

//go:embed templates/*.html
var defaultTemplates embed.FS

// Template names shipped with the service.
const (
	TemplateNewRequest          = "new_request.html"
	TemplateRequestFulfilled    = "request_fulfilled.html"
	TemplateDonationConfirmed   = "donation_confirmed.html"
	TemplateEligibilityReminder = "eligibility_reminder.html"
)

// Renderer executes named HTML templates. Every template sees the layout
// defined in layout.html.
type Renderer struct {
	tmpl        *template.Template
	frontendURL string
}

// NewRenderer parses *.html from dir when it exists, otherwise the
// embedded defaults.
func NewRenderer(dir, frontendURL string) (*Renderer, error) {
	var fsys fs.FS
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		fsys = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(defaultTemplates, "templates")
		if err != nil {
			return nil, err
		}
		fsys = sub
	}
	return NewRendererFS(fsys, frontendURL)
}

func NewRendererFS(fsys fs.FS, frontendURL string) (*Renderer, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"upper": func(v any) string { return strings.ToUpper(fmt.Sprint(v)) },
	}).ParseFS(fsys, "*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, frontendURL: strings.TrimRight(frontendURL, "/")}, nil
}

// Render executes name with data. A missing template or a failing
// execution is returned, never ignored.
func (r *Renderer) Render(name string, data map[string]any) (string, error) {
	if r.tmpl.Lookup(name) == nil {
		return "", fmt.Errorf("email template %q not found", name)
	}

	view := make(map[string]any, len(data)+1)
	for k, v := range data {
		view[k] = v
	}
	if _, ok := view["FrontendURL"]; !ok {
		view["FrontendURL"] = r.frontendURL
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, view); err != nil {
		return "", fmt.Errorf("failed to render email template %q: %w", name, err)
	}
	return buf.String(), nil
}
