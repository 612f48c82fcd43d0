package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidExecutionConfig = errors.New("invalid execution config")

// JSONSchema represents a JSON Schema for configuration validation
type JSONSchema struct {
	Type        string               `json:"type"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Property represents a JSON Schema property
type Property struct {
	Type        string               `json:"type,omitempty"`
	Description string               `json:"description,omitempty"`
	MinLength   *int                 `json:"minLength,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	OneOf       []*Property          `json:"oneOf,omitempty"`
}

func ExecutionConfigSchema() *JSONSchema {
	minOne := 1

	return &JSONSchema{
		Type:        "object",
		Title:       "Execution config",
		Description: "Output declarations, parameters and working directory of one execution",
		Properties: map[string]*Property{
			"output_files": {
				Type:        "array",
				Description: "Literal paths or {path, type} records",
				Items: &Property{
					OneOf: []*Property{
						{Type: "string"},
						{
							Type: "object",
							Properties: map[string]*Property{
								"path": {Type: "string"},
								"type": {Type: "string"},
							},
							Required: []string{"path"},
						},
					},
				},
			},
			"parameters": {
				Type: "array",
				Items: &Property{
					Type: "object",
					Properties: map[string]*Property{
						"name":   {Type: "string", MinLength: &minOne},
						"secure": {Type: "boolean"},
					},
					Required: []string{"name"},
				},
			},
			"working_directory": {
				Type: "string",
			},
		},
	}
}

// ValidateExecutionConfigDocument checks a raw JSON document against ExecutionConfigSchema.
func ValidateExecutionConfigDocument(raw []byte) error {
	schemaLoader := gojsonschema.NewGoLoader(ExecutionConfigSchema())
	dataLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidExecutionConfig, err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		details = append(details, resultErr.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidExecutionConfig, strings.Join(details, "; "))
}
