// Package models defines the execution configuration consumed by the file staging engine.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputKind tells which flow handles a declaration.
type OutputKind string

const (
	OutputKindGeneric     OutputKind = "generic"      // Staged once the execution finishes
	OutputKindInlineImage OutputKind = "inline-image" // Staged while the execution is running
)

var ErrInvalidDeclaration = errors.New("invalid output declaration")

// OutputDeclaration describes where the output file(s) of an execution can be found.
// It is either a literal path string or a structured {path, type} record; the shape is
// decided once at decode time.
type OutputDeclaration struct {
	Path       string
	Kind       OutputKind `validate:"oneof=generic inline-image"`
	Structured bool
}

func Literal(path string) OutputDeclaration {
	return OutputDeclaration{Path: path, Kind: OutputKindGeneric}
}

func Structured(path string, kind OutputKind) OutputDeclaration {
	if kind != OutputKindInlineImage {
		kind = OutputKindGeneric
	}

	return OutputDeclaration{Path: strings.TrimSpace(path), Kind: kind, Structured: true}
}

// Template returns the raw path template, or false when the declaration carries no path.
func (d OutputDeclaration) Template() (string, bool) {
	if strings.TrimSpace(d.Path) == "" {
		return "", false
	}

	return d.Path, true
}

type structuredDeclaration struct {
	Path string `json:"path"           yaml:"path"`
	Type string `json:"type,omitempty" yaml:"type"`
}

func (d *OutputDeclaration) UnmarshalJSON(data []byte) error {
	var literal string
	if err := json.Unmarshal(data, &literal); err == nil {
		*d = Literal(literal)

		return nil
	}

	var record structuredDeclaration
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDeclaration, string(data))
	}

	*d = Structured(record.Path, OutputKind(record.Type))

	return nil
}

func (d OutputDeclaration) MarshalJSON() ([]byte, error) {
	if !d.Structured {
		return json.Marshal(d.Path)
	}

	return json.Marshal(structuredDeclaration{Path: d.Path, Type: string(d.Kind)})
}

func (d *OutputDeclaration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*d = Literal(value.Value)

		return nil
	case yaml.MappingNode:
		var record structuredDeclaration
		if err := value.Decode(&record); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDeclaration, err)
		}

		*d = Structured(record.Path, OutputKind(record.Type))

		return nil
	default:
		return fmt.Errorf("%w: line %d", ErrInvalidDeclaration, value.Line)
	}
}
