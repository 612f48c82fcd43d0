package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type ParameterConfig struct {
	Name   string `json:"name"             yaml:"name"   validate:"required"`
	Secure bool   `json:"secure,omitempty" yaml:"secure"`
}

// ParameterValues holds the user supplied values of one execution, keyed by parameter name.
type ParameterValues map[string]any

// FillParameterValues replaces every ${name} placeholder of a configured parameter with
// its value. Missing values substitute as an empty string; placeholders of unknown
// parameters are left untouched.
func FillParameterValues(parameters []ParameterConfig, template string, values ParameterValues) string {
	result := template

	for _, parameter := range parameters {
		placeholder := "${" + parameter.Name + "}"
		if !strings.Contains(result, placeholder) {
			continue
		}

		result = strings.ReplaceAll(result, placeholder, FormatParameterValue(values[parameter.Name]))
	}

	return result
}

// FormatParameterValue renders a parameter value the way it is passed to scripts.
// Lists are joined with commas. Numbers never use exponent notation, so JSON decoded
// values such as 1234567 render as written.
func FormatParameterValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case json.Number:
		return v.String()
	case []string:
		return strings.Join(v, ",")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, FormatParameterValue(item))
		}

		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}
