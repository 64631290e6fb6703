package lookup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/drover-labs/drover/pkg/drover/v1/lookup"
)

// ItemsPlugin returns its terms as the item sequence. A list yields its
// elements with one level of nested lists flattened; a scalar yields a
// single-item sequence.
type ItemsPlugin struct{}

func (p *ItemsPlugin) Run(basedir string, terms interface{}, vars map[string]interface{}) ([]interface{}, error) {
	switch t := terms.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		items := make([]interface{}, 0, len(t))
		for _, term := range t {
			if nested, ok := term.([]interface{}); ok {
				items = append(items, nested...)
				continue
			}
			items = append(items, term)
		}
		return items, nil
	default:
		return []interface{}{terms}, nil
	}
}

// EnvPlugin maps environment variable names to their values. Unset variables
// yield empty strings, matching the behavior of a shell expansion.
type EnvPlugin struct{}

func (p *EnvPlugin) Run(basedir string, terms interface{}, vars map[string]interface{}) ([]interface{}, error) {
	names, err := stringTerms(terms)
	if err != nil {
		return nil, fmt.Errorf("env lookup: %w", err)
	}
	items := make([]interface{}, 0, len(names))
	for _, name := range names {
		items = append(items, os.Getenv(name))
	}
	return items, nil
}

// FileglobPlugin expands glob patterns into matching file paths. Relative
// patterns are anchored at the basedir of the playbook that used them, and
// only regular files are returned, in sorted order.
type FileglobPlugin struct{}

func (p *FileglobPlugin) Run(basedir string, terms interface{}, vars map[string]interface{}) ([]interface{}, error) {
	patterns, err := stringTerms(terms)
	if err != nil {
		return nil, fmt.Errorf("fileglob lookup: %w", err)
	}
	var items []interface{}
	for _, pattern := range patterns {
		if !filepath.IsAbs(pattern) && basedir != "" {
			pattern = filepath.Join(basedir, pattern)
		}
		matches, globErr := filepath.Glob(pattern)
		if globErr != nil {
			return nil, fmt.Errorf("fileglob lookup: bad pattern %q: %w", pattern, globErr)
		}
		sort.Strings(matches)
		for _, match := range matches {
			info, statErr := os.Stat(match)
			if statErr != nil || info.IsDir() {
				continue
			}
			items = append(items, match)
		}
	}
	return items, nil
}

// stringTerms normalizes scalar-or-list terms into a string slice.
func stringTerms(terms interface{}) ([]string, error) {
	switch t := terms.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, term := range t {
			s, ok := term.(string)
			if !ok {
				return nil, fmt.Errorf("expected string term, got %T", term)
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return t, nil
	default:
		return nil, fmt.Errorf("expected string or list of strings, got %T", terms)
	}
}

var (
	_ lookup.Plugin = (*ItemsPlugin)(nil)
	_ lookup.Plugin = (*EnvPlugin)(nil)
	_ lookup.Plugin = (*FileglobPlugin)(nil)
)
