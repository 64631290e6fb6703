package config

import (
	_ "embed"
	"fmt"
	"sync"

	droverrors "github.com/drover-labs/drover/pkg/drover/v1/errors"
	"github.com/xeipuuv/gojsonschema"
)

// The play schema is embedded so the binary validates playbooks without any
// runtime file dependency.
//
//go:embed drover_schema_v1.json
var schemaV1Bytes []byte

var (
	schemaV1   *gojsonschema.Schema
	schemaOnce sync.Once
	schemaErr  error
)

// loadSchema compiles the embedded schema exactly once.
func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		if len(schemaV1Bytes) == 0 {
			schemaErr = droverrors.NewConfigError("embedded schema 'drover_schema_v1.json' is empty or not found", nil)
			return
		}
		schemaV1, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaV1Bytes))
		if schemaErr != nil {
			schemaErr = droverrors.NewConfigError("failed to compile embedded schema 'drover_schema_v1.json'", schemaErr)
		}
	})
	return schemaV1, schemaErr
}

// ValidatePlay validates one decoded play entry against the embedded schema.
// The entry arrives as generic YAML-decoded data, which gojsonschema accepts
// directly through a Go loader.
func ValidatePlay(entry map[string]interface{}) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(entry))
	if err != nil {
		return droverrors.NewConfigError("schema validation process failed", err)
	}
	if !result.Valid() {
		errMsg := "play failed schema validation:"
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "(root)" || field == "" {
				field = desc.Context().String()
			}
			errMsg += fmt.Sprintf("\n  - Field '%s': %s", field, desc.Description())
		}
		return droverrors.NewValidationError(errMsg, nil)
	}
	return nil
}
