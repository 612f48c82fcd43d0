package models

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ExecutionConfig is the part of a script configuration the staging engine reads.
type ExecutionConfig struct {
	OutputFiles      []OutputDeclaration `json:"output_files,omitempty"      yaml:"output_files"      validate:"dive"`
	Parameters       []ParameterConfig   `json:"parameters,omitempty"        yaml:"parameters"        validate:"dive"`
	WorkingDirectory string              `json:"working_directory,omitempty" yaml:"working_directory"`
}

// Declarations returns the declarations of the given kind that carry a path.
func (c *ExecutionConfig) Declarations(kind OutputKind) []OutputDeclaration {
	if c == nil {
		return nil
	}

	result := make([]OutputDeclaration, 0, len(c.OutputFiles))
	for _, declaration := range c.OutputFiles {
		if declaration.Kind != kind {
			continue
		}

		if _, ok := declaration.Template(); !ok {
			continue
		}

		result = append(result, declaration)
	}

	return result
}

func (c *ExecutionConfig) Validate() error {
	return validate.Struct(c)
}

// ParseExecutionConfig decodes and validates a JSON execution config document.
func ParseExecutionConfig(raw []byte) (*ExecutionConfig, error) {
	if err := ValidateExecutionConfigDocument(raw); err != nil {
		return nil, err
	}

	var config ExecutionConfig
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExecutionConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExecutionConfig, err)
	}

	return &config, nil
}

// ParseExecutionConfigYAML decodes a YAML (or JSON) execution config document.
func ParseExecutionConfigYAML(raw []byte) (*ExecutionConfig, error) {
	var config ExecutionConfig
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExecutionConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExecutionConfig, err)
	}

	return &config, nil
}
