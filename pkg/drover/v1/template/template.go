// Package template defines the string-expansion contract the engine and the
// playbook loader consume for task names, handler names, include arguments
// and lookup terms.
package template

// Renderer expands template expressions against a variable mapping. The
// basedir is the play's base directory, made available to file-aware
// template functions.
type Renderer interface {
	// Render expands the template string and returns the result.
	Render(basedir, templateString string, vars map[string]interface{}) (string, error)

	// Resolve expands the template string, returning the underlying value
	// directly when the string is a single simple variable reference. Used
	// for lookup terms, where a list-valued variable must stay a list.
	Resolve(basedir, templateString string, vars map[string]interface{}) (interface{}, error)
}
