package domain

import (
	"encoding/json"
	"fmt"
)

// Parameter describes one named argument of a remotely declared capability.
type Parameter struct {
	Name        string   `json:"name" yaml:"name" mapstructure:"name"`
	Type        string   `json:"type" yaml:"type" mapstructure:"type"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Required    bool     `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
	Enum        []string `json:"enum,omitempty" yaml:"enum,omitempty" mapstructure:"enum"`
	Minimum     *float64 `json:"minimum,omitempty" yaml:"minimum,omitempty" mapstructure:"minimum"`
	Maximum     *float64 `json:"maximum,omitempty" yaml:"maximum,omitempty" mapstructure:"maximum"`
	Default     any      `json:"default,omitempty" yaml:"default,omitempty" mapstructure:"default"`
}

// Capability is a remotely invokable named operation together with its
// declared parameter schema. The set of capabilities is only known at runtime
// from the remote device's tools/list response.
type Capability struct {
	Name        string      `json:"name" yaml:"name" mapstructure:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Parameters  []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
}

// ValidateArgs checks an argument mapping against the declared schema:
// required parameters present, values of the declared type shape, enum
// membership, and numeric bounds. Unknown argument keys are rejected.
func (c Capability) ValidateArgs(args map[string]any) error {
	byName := make(map[string]Parameter, len(c.Parameters))
	for _, p := range c.Parameters {
		byName[p.Name] = p
	}

	for _, p := range c.Parameters {
		v, ok := args[p.Name]
		if !ok {
			if p.Required {
				return &ValidationError{Field: p.Name, Reason: "required argument missing"}
			}
			continue
		}
		if err := p.check(v); err != nil {
			return err
		}
	}

	for k := range args {
		if _, ok := byName[k]; !ok {
			return &ValidationError{Field: k, Reason: fmt.Sprintf("unknown argument for capability %q", c.Name)}
		}
	}
	return nil
}

func (p Parameter) check(v any) error {
	switch p.Type {
	case "string", "":
		s, ok := v.(string)
		if !ok {
			return &ValidationError{Field: p.Name, Reason: fmt.Sprintf("expected string, got %T", v)}
		}
		if len(p.Enum) > 0 {
			for _, e := range p.Enum {
				if s == e {
					return nil
				}
			}
			return &ValidationError{Field: p.Name, Reason: fmt.Sprintf("%q is not one of %v", s, p.Enum)}
		}
	case "number", "integer":
		f, ok := toFloat(v)
		if !ok {
			return &ValidationError{Field: p.Name, Reason: fmt.Sprintf("expected %s, got %T", p.Type, v)}
		}
		if p.Type == "integer" && f != float64(int64(f)) {
			return &ValidationError{Field: p.Name, Reason: fmt.Sprintf("expected integer, got %v", f)}
		}
		if p.Minimum != nil && f < *p.Minimum {
			return &ValidationError{Field: p.Name, Reason: fmt.Sprintf("%v is below minimum %v", f, *p.Minimum)}
		}
		if p.Maximum != nil && f > *p.Maximum {
			return &ValidationError{Field: p.Name, Reason: fmt.Sprintf("%v is above maximum %v", f, *p.Maximum)}
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return &ValidationError{Field: p.Name, Reason: fmt.Sprintf("expected boolean, got %T", v)}
		}
	default:
		// Unrecognized declared types are accepted as-is; the transport does
		// not enforce them either.
	}
	return nil
}

// toFloat normalizes the numeric shapes a decoded JSON value can take.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
