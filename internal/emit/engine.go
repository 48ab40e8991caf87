package emit

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"
)

// Engine renders named templates.
type Engine interface {
	Execute(name string, data any) (string, error)
}

// TextTemplateEngine loads every *.tmpl file from an embedded tree and lets
// a directory on disk replace individual templates by relative path.
type TextTemplateEngine struct {
	templates *template.Template
	funcs     template.FuncMap
	embedded  fs.FS
	customDir string
}

func NewEngine(embedded fs.FS, customDir string, funcs template.FuncMap) (*TextTemplateEngine, error) {
	e := &TextTemplateEngine{
		embedded:  embedded,
		customDir: customDir,
		funcs:     funcs,
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *TextTemplateEngine) load() error {
	e.templates = template.New("").Funcs(e.funcs)

	if err := e.parseTree(e.embedded, "embedded"); err != nil {
		return fmt.Errorf("loading embedded templates: %w", err)
	}

	if e.customDir != "" {
		err := e.parseTree(os.DirFS(e.customDir), "custom")
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading custom templates: %w", err)
		}
	}
	return nil
}

// parseTree parses each template under its slash-separated path. A later
// tree wins over an earlier one for the same path.
func (e *TextTemplateEngine) parseTree(tree fs.FS, origin string) error {
	return fs.WalkDir(tree, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".tmpl") {
			return nil
		}
		content, err := fs.ReadFile(tree, path)
		if err != nil {
			return fmt.Errorf("reading %s template %s: %w", origin, path, err)
		}
		if _, err := e.templates.New(path).Parse(string(content)); err != nil {
			return fmt.Errorf("parsing %s template %s: %w", origin, path, err)
		}
		return nil
	})
}

func (e *TextTemplateEngine) Execute(name string, data any) (string, error) {
	tmpl := e.templates.Lookup(name)
	if tmpl == nil {
		return "", fmt.Errorf("template not found: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %s: %w", name, err)
	}
	return buf.String(), nil
}
