package sim

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed worldconfig.schema.json
var worldConfigSchemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func worldConfigSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("worldconfig.schema.json", worldConfigSchemaJSON)
	})
	return schema, schemaErr
}

// LoadWorldConfig reads a YAML or JSON world configuration from path.
func LoadWorldConfig(path string) (*WorldConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading world config: %w", err)
	}
	return ParseWorldConfig(data)
}

// ParseWorldConfig decodes and validates a world configuration document.
//
// The document is checked against the embedded JSON schema, then decoded
// strictly (unknown keys are rejected), then passed through Validate for the
// cross-field key-set checks a schema cannot express. Every failure is a
// *ConfigurationError.
func ParseWorldConfig(data []byte) (*WorldConfig, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigurationError{Reason: "malformed document", Err: err}
	}
	normalized, err := toJSONValue(doc)
	if err != nil {
		return nil, &ConfigurationError{Reason: "malformed document", Err: err}
	}
	sch, err := worldConfigSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling world config schema: %w", err)
	}
	if err := sch.Validate(normalized); err != nil {
		return nil, &ConfigurationError{Reason: "schema violation", Err: err}
	}

	var cfg WorldConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, &ConfigurationError{Reason: "decoding", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MarshalWorldConfig renders cfg as YAML.
func MarshalWorldConfig(cfg *WorldConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding world config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding world config: %w", err)
	}
	return buf.Bytes(), nil
}

// toJSONValue converts a YAML-decoded value into the shapes encoding/json
// produces (float64 numbers, map[string]any), which is what the schema
// validator expects.
func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
