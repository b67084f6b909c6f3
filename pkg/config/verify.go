package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/invopop/jsonschema"
)

//go:embed schema.json
var embeddedSchema string

// VerifyAgainstEmbeddedSchema checks the config against the embedded JSON schema.
// Required properties must be present and every present property must match its schema type.
func VerifyAgainstEmbeddedSchema(cfg *Config) error {
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(embeddedSchema), &schema); err != nil {
		return fmt.Errorf("parse embedded schema: %w", err)
	}

	configData, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var configMap map[string]any
	if err := json.Unmarshal(configData, &configMap); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	return verifyObject(&schema, schema.Definitions, configMap, "")
}

// GenerateSchema generates a JSON schema for the Config struct
func GenerateSchema() *jsonschema.Schema {
	return jsonschema.Reflect(&Config{})
}

func verifyObject(s *jsonschema.Schema, defs jsonschema.Definitions, doc map[string]any, path string) error {
	s = resolve(s, defs)
	for _, name := range s.Required {
		if v, ok := doc[name]; !ok || v == nil {
			return fmt.Errorf("%s is required", joinPath(path, name))
		}
	}
	if s.Properties == nil {
		return nil
	}

	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		v, ok := doc[pair.Key]
		if !ok || v == nil {
			continue
		}
		prop := resolve(pair.Value, defs)
		field := joinPath(path, pair.Key)
		if !typeMatches(prop.Type, v) {
			return fmt.Errorf("%s must be %s", field, prop.Type)
		}
		if sub, isObj := v.(map[string]any); isObj {
			if err := verifyObject(prop, defs, sub, field); err != nil {
				return err
			}
		}
	}
	return nil
}

func resolve(s *jsonschema.Schema, defs jsonschema.Definitions) *jsonschema.Schema {
	if s == nil || s.Ref == "" {
		return s
	}
	if def, ok := defs[strings.TrimPrefix(s.Ref, "#/$defs/")]; ok {
		return def
	}
	return s
}

func typeMatches(typ string, v any) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "integer":
		f, ok := v.(float64)
		return ok && f == math.Trunc(f)
	case "number":
		_, ok := v.(float64)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}
