package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRequired(t *testing.T) {
	s := &Schema{
		Type: "object",
		Properties: map[string]*Property{
			"name": {Type: "string"},
			"age":  {Type: "integer"},
		},
		Required: []string{"name"},
	}

	require.NoError(t, s.Validate(map[string]any{"name": "iris"}))
	require.NoError(t, s.Validate(map[string]any{"name": "iris", "age": 30}))

	err := s.Validate(map[string]any{"age": 30})
	require.Error(t, err)
	require.Contains(t, err.Error(), `missing required property "name"`)
}

func TestValidateTypes(t *testing.T) {
	s := &Schema{
		Type: "object",
		Properties: map[string]*Property{
			"count":   {Type: "integer"},
			"ratio":   {Type: "number"},
			"enabled": {Type: "boolean"},
			"tags":    {Type: "array", Items: &Property{Type: "string"}},
			"meta": {
				Type:       "object",
				Required:   []string{"kind"},
				Properties: map[string]*Property{"kind": {Type: "string"}},
			},
		},
	}

	require.NoError(t, s.Validate(map[string]any{
		"count":   3,
		"ratio":   0.5,
		"enabled": true,
		"tags":    []any{"a", "b"},
		"meta":    map[string]any{"kind": "test"},
	}))

	// JSON numbers decode as float64; whole floats count as integers.
	require.NoError(t, s.Validate(map[string]any{"count": float64(3)}))

	require.Error(t, s.Validate(map[string]any{"count": "three"}))
	require.Error(t, s.Validate(map[string]any{"tags": []any{"a", 1}}))
	require.Error(t, s.Validate(map[string]any{"meta": map[string]any{}}))
}

func TestValidateEnum(t *testing.T) {
	s := &Schema{
		Type: "object",
		Properties: map[string]*Property{
			"color": {Type: "string", Enum: []string{"red", "green"}},
		},
	}
	require.NoError(t, s.Validate(map[string]any{"color": "red"}))
	require.Error(t, s.Validate(map[string]any{"color": "blue"}))
}

func TestValidateAdditionalProperties(t *testing.T) {
	strict := false
	s := &Schema{
		Type:                 "object",
		Properties:           map[string]*Property{"known": {Type: "string"}},
		AdditionalProperties: &strict,
	}
	require.NoError(t, s.Validate(map[string]any{"known": "yes"}))
	require.Error(t, s.Validate(map[string]any{"unknown": "no"}))
}

func TestNilSchemaAcceptsAnything(t *testing.T) {
	var s *Schema
	require.NoError(t, s.Validate(map[string]any{"anything": 1}))
}
