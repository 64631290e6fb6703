package template

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"

	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
	drovertemplate "github.com/drover-labs/drover/pkg/drover/v1/template"
)

var simpleVarRegex = regexp.MustCompile(`^\s*\{\{\s*\.([a-zA-Z0-9_.]+)\s*\}\}\s*$`)

// GoRenderer implements the public Renderer interface using Go's
// text/template package, with a cache of parsed templates. Safe for
// concurrent use.
type GoRenderer struct {
	templateCache map[string]*template.Template
	mu            sync.Mutex
}

// NewGoRenderer creates a new GoRenderer with an empty template cache.
func NewGoRenderer() *GoRenderer {
	return &GoRenderer{
		templateCache: make(map[string]*template.Template),
	}
}

var _ drovertemplate.Renderer = (*GoRenderer)(nil)

// Render executes a template string against the given variables. The basedir
// anchors the file template function so playbook-relative paths resolve the
// same way includes do. Missing keys are an error.
func (r *GoRenderer) Render(basedir, templateString string, vars map[string]interface{}) (string, error) {
	t, err := r.getOrParseTemplate(templateString, GetFuncMap(basedir))
	if err != nil {
		return "", droverrors.NewValidationError(fmt.Sprintf("template parse error: %s", err.Error()), err)
	}

	var buf bytes.Buffer
	if execErr := t.Execute(&buf, vars); execErr != nil {
		return "", droverrors.NewValidationError(fmt.Sprintf("template execution error: %s", execErr.Error()), execErr)
	}

	return buf.String(), nil
}

// Resolve returns the underlying value when the template is a bare variable
// reference, preserving its type instead of flattening to a string. Complex
// expressions fall back to full rendering.
func (r *GoRenderer) Resolve(basedir, templateString string, vars map[string]interface{}) (interface{}, error) {
	matches := simpleVarRegex.FindStringSubmatch(templateString)
	if len(matches) == 2 {
		if value, found := lookupPath(vars, matches[1]); found {
			return value, nil
		}
	}
	return r.Render(basedir, templateString, vars)
}

// getOrParseTemplate parses and caches templates under the mutex. Cached
// entries are cloned so the per-call FuncMap (which captures basedir) can be
// re-applied safely.
func (r *GoRenderer) getOrParseTemplate(templateString string, funcMap template.FuncMap) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cachedTemplate, exists := r.templateCache[templateString]; exists {
		clonedTemplate, err := cachedTemplate.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone cached template: %w", err)
		}
		return clonedTemplate.Funcs(funcMap), nil
	}

	t, parseErr := template.New(templateString).Option("missingkey=error").Funcs(funcMap).Parse(templateString)
	if parseErr != nil {
		return nil, fmt.Errorf("template parse error: %w", parseErr)
	}

	r.templateCache[templateString] = t
	return t, nil
}

// lookupPath walks a dotted path through nested string-keyed maps.
func lookupPath(data map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = data
	for _, part := range parts {
		currentMap, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = currentMap[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
