package config

import (
	"encoding/json"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{Generator: GeneratorConfig{Endpoint: "http://localhost:8000/stream"}}
	setDefaults(cfg)
	return cfg
}

func TestVerifyAgainstEmbeddedSchema(t *testing.T) {
	require.NoError(t, VerifyAgainstEmbeddedSchema(validConfig()))
}

func TestEmbeddedSchemaMatchesConfig(t *testing.T) {
	var embedded jsonschema.Schema
	require.NoError(t, json.Unmarshal([]byte(embeddedSchema), &embedded))
	generated := GenerateSchema()

	for name := range generated.Definitions {
		_, ok := embedded.Definitions[name]
		assert.True(t, ok, "definition %s missing in schema.json, run go generate", name)
	}
	for name, def := range embedded.Definitions {
		gen, ok := generated.Definitions[name]
		require.True(t, ok, "stale definition %s in schema.json", name)
		for pair := gen.Properties.Oldest(); pair != nil; pair = pair.Next() {
			_, found := def.Properties.Get(pair.Key)
			assert.True(t, found, "property %s.%s missing in schema.json", name, pair.Key)
		}
	}
}

func TestVerifyObject(t *testing.T) {
	var schema jsonschema.Schema
	require.NoError(t, json.Unmarshal([]byte(embeddedSchema), &schema))

	doc := func() map[string]any {
		data, err := json.Marshal(validConfig())
		require.NoError(t, err)
		var res map[string]any
		require.NoError(t, json.Unmarshal(data, &res))
		return res
	}

	t.Run("missing section", func(t *testing.T) {
		d := doc()
		delete(d, "generator")
		err := verifyObject(&schema, schema.Definitions, d, "")
		require.EqualError(t, err, "generator is required")
	})

	t.Run("missing nested property", func(t *testing.T) {
		d := doc()
		delete(d["llm"].(map[string]any), "model")
		err := verifyObject(&schema, schema.Definitions, d, "")
		require.EqualError(t, err, "llm.model is required")
	})

	t.Run("wrong type", func(t *testing.T) {
		d := doc()
		d["publish"].(map[string]any)["log_burst"] = "five"
		err := verifyObject(&schema, schema.Definitions, d, "")
		require.EqualError(t, err, "publish.log_burst must be integer")
	})

	t.Run("fraction for integer", func(t *testing.T) {
		d := doc()
		d["database"].(map[string]any)["max_open_conns"] = 1.5
		err := verifyObject(&schema, schema.Definitions, d, "")
		require.EqualError(t, err, "database.max_open_conns must be integer")
	})
}

func TestTypeMatches(t *testing.T) {
	assert.True(t, typeMatches("string", "x"))
	assert.False(t, typeMatches("string", 1.0))
	assert.True(t, typeMatches("boolean", false))
	assert.True(t, typeMatches("number", 0.3))
	assert.True(t, typeMatches("integer", 3.0))
	assert.True(t, typeMatches("array", []any{}))
	assert.True(t, typeMatches("", nil), "untyped schema accepts anything")
}
