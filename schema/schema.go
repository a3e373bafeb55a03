package schema

import (
	"fmt"
	"strings"
)

// Schema describes the structure of a JSON object.
type Schema struct {
	Type                 string               `json:"type"`
	Properties           map[string]*Property `json:"properties"`
	Required             []string             `json:"required,omitempty"`
	AdditionalProperties *bool                `json:"additionalProperties,omitempty"`
}

// Property of a schema.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

// Validate checks the given value against the schema. The value is expected
// to be a JSON-shaped map. A nil schema accepts anything.
func (s *Schema) Validate(value map[string]any) error {
	if s == nil {
		return nil
	}
	if s.Type != "" && s.Type != "object" {
		return fmt.Errorf("schema root type must be object, got %q", s.Type)
	}
	var problems []string
	for _, name := range s.Required {
		if _, ok := value[name]; !ok {
			problems = append(problems, fmt.Sprintf("missing required property %q", name))
		}
	}
	for name, prop := range s.Properties {
		v, ok := value[name]
		if !ok {
			continue
		}
		if err := prop.validate(name, v); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if s.AdditionalProperties != nil && !*s.AdditionalProperties {
		for name := range value {
			if _, ok := s.Properties[name]; !ok {
				problems = append(problems, fmt.Sprintf("unexpected property %q", name))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("schema validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (p *Property) validate(name string, value any) error {
	if p == nil || p.Type == "" {
		return nil
	}
	switch p.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("property %q: expected string, got %T", name, value)
		}
		if len(p.Enum) > 0 && !contains(p.Enum, s) {
			return fmt.Errorf("property %q: value %q not in enum", name, s)
		}
	case "number":
		if !isNumber(value) {
			return fmt.Errorf("property %q: expected number, got %T", name, value)
		}
	case "integer":
		if !isInteger(value) {
			return fmt.Errorf("property %q: expected integer, got %T", name, value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("property %q: expected boolean, got %T", name, value)
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("property %q: expected array, got %T", name, value)
		}
		if p.Items != nil {
			for i, item := range items {
				if err := p.Items.validate(fmt.Sprintf("%s[%d]", name, i), item); err != nil {
					return err
				}
			}
		}
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("property %q: expected object, got %T", name, value)
		}
		for _, req := range p.Required {
			if _, ok := obj[req]; !ok {
				return fmt.Errorf("property %q: missing required property %q", name, req)
			}
		}
		for childName, child := range p.Properties {
			if v, ok := obj[childName]; ok {
				if err := child.validate(name+"."+childName, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func isNumber(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return v == float64(int64(v))
	case float32:
		return v == float32(int32(v))
	}
	return false
}
