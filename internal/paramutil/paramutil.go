// Package paramutil provides typed accessors for module argument maps.
// Module args arrive as map[string]interface{} straight from YAML and
// templating, so every module faces the same missing-key and wrong-type
// checks; these helpers keep the error messages uniform.
package paramutil

import (
	"fmt"

	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
)

// GetRequiredString retrieves a required string argument. A missing key or a
// non-string value yields a ValidationError naming the argument.
func GetRequiredString(args map[string]interface{}, key string) (string, error) {
	value, exists := args[key]
	if !exists {
		return "", droverrors.NewValidationError(fmt.Sprintf("missing required argument '%s'", key), nil)
	}
	strValue, ok := value.(string)
	if !ok {
		return "", droverrors.NewValidationError(fmt.Sprintf("argument '%s' must be a string, got %T", key, value), nil)
	}
	return strValue, nil
}

// GetOptionalString retrieves an optional string argument. The second result
// reports whether the key was present.
func GetOptionalString(args map[string]interface{}, key string) (string, bool, error) {
	value, exists := args[key]
	if !exists {
		return "", false, nil
	}
	strValue, ok := value.(string)
	if !ok {
		return "", false, droverrors.NewValidationError(fmt.Sprintf("argument '%s' must be a string, got %T", key, value), nil)
	}
	return strValue, true, nil
}

// GetOptionalBool retrieves an optional boolean argument, accepting the YAML
// bool forms modules commonly receive ("yes"/"no" arrive as strings once
// templated).
func GetOptionalBool(args map[string]interface{}, key string, fallback bool) (bool, error) {
	value, exists := args[key]
	if !exists {
		return fallback, nil
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch v {
		case "yes", "true", "1":
			return true, nil
		case "no", "false", "0", "":
			return false, nil
		}
	}
	return false, droverrors.NewValidationError(fmt.Sprintf("argument '%s' must be a boolean, got %v (%T)", key, value, value), nil)
}
