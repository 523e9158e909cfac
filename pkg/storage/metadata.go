package storage

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalYAML serializes a Go value to YAML with 2-space indentation. Field
// names follow the yaml tags of the value, snake_case throughout this module.
//
// Parameters:
//   - v: The value to serialize (can be any Go type)
//
// Returns:
//   - []byte: The YAML-encoded data
//   - error: Any error encountered during marshaling
func MarshalYAML(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalYAML deserializes YAML data into a Go value.
func UnmarshalYAML(data []byte, v interface{}) error {
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal YAML: %w", err)
	}
	return nil
}
