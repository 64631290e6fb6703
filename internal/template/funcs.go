package template

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"text/template"
)

// GetFuncMap returns the standard function map for playbook templates. The
// basedir anchors the file function so relative paths resolve against the
// playbook that referenced them.
func GetFuncMap(basedir string) template.FuncMap {
	return template.FuncMap{
		"env": funcEnv,
		"eq": func(a, b interface{}) bool {
			return reflect.DeepEqual(a, b)
		},
		"file": func(path string) (string, error) {
			if !filepath.IsAbs(path) && basedir != "" {
				path = filepath.Join(basedir, path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			return strings.TrimRight(string(data), "\n"), nil
		},
	}
}

// funcEnv retrieves an environment variable.
func funcEnv(key string) string {
	return os.Getenv(key)
}
