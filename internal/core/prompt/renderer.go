package prompt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

// requiredSlots are the actions every tag extraction template must reference
// so that the text, the requested tag count, and the few-shot block all end
// up in the prompt.
var requiredSlots = []string{".Text", ".MaxTags", ".Examples"}

type TemplateRenderError struct {
	Path string
	Err  error
}

func (e *TemplateRenderError) Error() string {
	return fmt.Sprintf("failed to render template %s: %v", e.Path, e.Err)
}

func (e *TemplateRenderError) Unwrap() error {
	return e.Err
}

// Request carries the values substituted into a template. Examples are
// rendered in file order so that identical inputs always produce a
// byte-identical prompt.
type Request struct {
	Text     string
	MaxTags  int
	Examples []FewShotExample
}

// Renderer turns a template file plus a Request into the final prompt
// string. Parsed templates are memoized per path. Template funcs are limited
// to deterministic ones; anything like random sampling would break the
// rendered-prompt cache key.
type Renderer struct {
	mu        sync.Mutex
	templates map[string]*template.Template
}

func NewRenderer() *Renderer {
	return &Renderer{templates: make(map[string]*template.Template)}
}

func (r *Renderer) Render(templatePath string, req Request) (string, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", fmt.Errorf("text is empty after trimming")
	}
	if req.MaxTags <= 0 {
		return "", fmt.Errorf("requested tag count must be positive, got %d", req.MaxTags)
	}

	tmpl, err := r.load(templatePath)
	if err != nil {
		return "", err
	}

	data := Request{Text: text, MaxTags: req.MaxTags, Examples: req.Examples}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", &TemplateRenderError{Path: templatePath, Err: err}
	}

	return buf.String(), nil
}

func (r *Renderer) load(path string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tmpl, ok := r.templates[path]; ok {
		return tmpl, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &TemplateRenderError{Path: path, Err: err}
	}

	for _, slot := range requiredSlots {
		if !strings.Contains(string(src), slot) {
			return nil, &TemplateRenderError{Path: path, Err: fmt.Errorf("template is missing required slot {{%s}}", slot)}
		}
	}

	tmpl, err := template.New(filepath.Base(path)).
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(string(src))
	if err != nil {
		return nil, &TemplateRenderError{Path: path, Err: err}
	}

	r.templates[path] = tmpl
	return tmpl, nil
}
