package formschema

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// FieldList is the legacy flat form definition.
type FieldList struct {
	Fields        []Field  `json:"fields"`
	CitizenFields []string `json:"citizenFields,omitempty"`
}

func (*FieldList) isSchema() {}

// Field is one legacy form field.
type Field struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Label       string   `json:"label,omitempty"`
	Type        string   `json:"type"`
	Required    bool     `json:"required,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Options     []Option `json:"options,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	MinLength   *uint64  `json:"minLength,omitempty"`
	MaxLength   *uint64  `json:"maxLength,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// Key returns the property name of the field.
func (f Field) Key() string {
	if f.ID != "" {
		return f.ID
	}
	return f.Name
}

// Option is a select/radio choice. It decodes from either a plain string or a
// {"value","label"} object.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Option) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		o.Value, o.Label = s, s
		return nil
	}
	type plain Option
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("option must be a string or {value,label}: %w", err)
	}
	*o = Option(p)
	return nil
}

// Custom string formats registered with kin-openapi.
const (
	FormatCPF   = "cpf"
	FormatCEP   = "cep"
	FormatPhone = "phone"
	FormatEmail = "email"
)

// Normalize implements Schema.
func (l *FieldList) Normalize() (*Canonical, error) {
	s := openapi3.NewObjectSchema()
	labels := make(map[string]string, len(l.Fields))
	seen := make(map[string]bool, len(l.Fields))

	for i, f := range l.Fields {
		key := f.Key()
		if key == "" {
			return nil, fmt.Errorf("fields[%d]: id is required", i)
		}
		if seen[key] {
			return nil, fmt.Errorf("fields[%d]: duplicate id %q", i, key)
		}
		seen[key] = true

		prop := fieldSchema(f)
		prop.Title = f.Label
		prop.Description = f.Placeholder
		if f.Default != nil {
			prop.Default = f.Default
		}
		s.WithProperty(key, prop)
		labels[key] = f.Label
		if f.Required {
			s.Required = append(s.Required, key)
		}
	}
	return finish(s, l.CitizenFields, labels), nil
}

func fieldSchema(f Field) *openapi3.Schema {
	var s *openapi3.Schema
	switch f.Type {
	case "number":
		s = openapi3.NewFloat64Schema()
		s.Min, s.Max = f.Min, f.Max
		return s
	case "checkbox":
		return openapi3.NewBoolSchema()
	case "multiselect":
		item := openapi3.NewStringSchema()
		item.Enum = optionValues(f.Options)
		s = openapi3.NewArraySchema()
		s.Items = openapi3.NewSchemaRef("", item)
		return s
	}

	s = openapi3.NewStringSchema()
	switch f.Type {
	case "date":
		s.Format = "date"
	case "datetime":
		s.Format = "date-time"
	case "email":
		s.Format = FormatEmail
	case "cpf":
		s.Format = FormatCPF
	case "cep":
		s.Format = FormatCEP
	case "phone":
		s.Format = FormatPhone
	case "select", "radio":
		if len(f.Options) > 0 {
			s.Enum = optionValues(f.Options)
		}
	}
	if f.MinLength != nil {
		s.MinLength = *f.MinLength
	}
	s.MaxLength = f.MaxLength
	s.Pattern = f.Pattern
	return s
}

func optionValues(opts []Option) []any {
	if len(opts) == 0 {
		return nil
	}
	values := make([]any, len(opts))
	for i, o := range opts {
		values[i] = o.Value
	}
	return values
}
