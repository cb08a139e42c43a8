package wire

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/factset/internal/ir"
)

// Parse decodes a JSON wire document.
func Parse(data []byte) (*Document, error) {
	v, err := ir.ParseValue(data)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return FromValue(v)
}

// ParseYAML decodes a YAML wire document. The YAML must describe the same
// structure as the JSON form.
func ParseYAML(data []byte) (*Document, error) {
	v, err := yamlValue(data)
	if err != nil {
		return nil, err
	}
	return FromValue(v)
}

func yamlValue(data []byte) (ir.Value, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	v, err := ir.FromAny(raw)
	if err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return v, nil
}

// IsYAML reports whether path has a YAML extension.
func IsYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// ReadFile reads a wire document, choosing the decoder by file extension.
func ReadFile(path string) (*Document, error) {
	v, err := ReadValue(path)
	if err != nil {
		return nil, err
	}
	return FromValue(v)
}

// ReadValue reads a wire file into an untyped value without decoding sections.
func ReadValue(path string) (ir.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if IsYAML(path) {
		return yamlValue(data)
	}
	v, err := ir.ParseValue(data)
	if err != nil {
		return nil, fmt.Errorf("parse json %s: %w", path, err)
	}
	return v, nil
}
