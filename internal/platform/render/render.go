// Package render turns page data into HTML: page templates with a shared
// layout, inline alerts, go-echarts charts, and datastar fragments.
package render

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

// Renderer implements echo.Renderer over a set of page templates. Each page
// is parsed together with the layout and the shared partials.
//
// Render names are either "page", which executes the layout around the
// page's "content" block, or "page#block", which executes only that block.
type Renderer struct {
	pages map[string]*template.Template
}

// New parses templates/layout.html, templates/partials/*.html and every
// templates/pages/*.html in fsys.
func New(fsys fs.FS) (*Renderer, error) {
	base, err := template.New("layout.html").Funcs(Funcs()).ParseFS(fsys,
		"templates/layout.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	files, err := fs.Glob(fsys, "templates/pages/*.html")
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}

	r := &Renderer{pages: make(map[string]*template.Template, len(files))}
	for _, f := range files {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout for %s: %w", f, err)
		}
		if _, err := t.ParseFS(fsys, f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		r.pages[strings.TrimSuffix(path.Base(f), ".html")] = t
	}
	return r, nil
}

// Has reports whether a page template exists.
func (r *Renderer) Has(page string) bool {
	_, ok := r.pages[page]
	return ok
}

// Render implements echo.Renderer.
func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	page, block, _ := strings.Cut(name, "#")
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("render: unknown page %q", page)
	}
	if block == "" {
		block = "layout"
	}
	return t.ExecuteTemplate(w, block, data)
}

// Funcs returns the template helpers available to every page.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"json":     toJSON,
		"pct":      pct,
		"fmtFloat": fmtFloat,
		"title":    title,
		"lower":    strings.ToLower,
		"seq":      seq,
		"add":      func(a, b int) int { return a + b },
		"dict":     dict,
	}
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// pct formats a probability in [0,1] as a percentage. Values above 1 are
// taken to be percentages already.
func pct(v any) string {
	f, ok := number(v)
	if !ok {
		return "-"
	}
	if f > 1 {
		f /= 100
	}
	return fmt.Sprintf("%.1f%%", f*100)
}

func fmtFloat(v any, prec int) string {
	f, ok := number(v)
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.*f", prec, f)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case interface{ Float64() float64 }:
		return n.Float64(), true
	default:
		return 0, false
	}
}

// title turns snake_case keys into labels: "family_history" → "Family History".
func title(s string) string {
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func seq(n int) []int {
	if n < 0 {
		n = 0
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", pairs[i])
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}
