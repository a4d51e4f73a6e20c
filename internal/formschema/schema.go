// Package formschema validates citizen form submissions. Forms arrive either
// as a legacy flat field list or as a property schema; both are normalized to
// one canonical openapi3.Schema before validation.
package formschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// DefaultCitizenFields are pre-filled from the citizen's profile and therefore
// never required at submission time unless a schema declares its own list.
var DefaultCitizenFields = []string{
	"nome", "cpf", "rg", "dataNascimento", "email", "telefone",
	"telefoneSecundario", "cep", "logradouro", "numero", "complemento",
	"bairro", "cidade", "uf", "nomeMae", "estadoCivil", "profissao", "rendaFamiliar",
}

// Schema is either a FieldList or a PropertySchema.
type Schema interface {
	Normalize() (*Canonical, error)
	isSchema()
}

// Canonical is the single internal form representation.
type Canonical struct {
	Schema        *openapi3.Schema
	CitizenFields map[string]bool
	Labels        map[string]string
}

// Label returns the human label for a field, falling back to its name.
func (c *Canonical) Label(field string) string {
	if l := c.Labels[field]; l != "" {
		return l
	}
	return field
}

// Parse detects the shape of raw and decodes it. An object with "fields" is a
// legacy field list; a bare array is treated the same way; an object with
// "properties" is a property schema.
func Parse(raw []byte) (Schema, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty form schema")
	}
	if raw[0] == '[' {
		var fields []Field
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("decode field list: %w", err)
		}
		return &FieldList{Fields: fields}, nil
	}

	var shape map[string]json.RawMessage
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("decode form schema: %w", err)
	}
	switch {
	case shape["fields"] != nil:
		var fl FieldList
		if err := json.Unmarshal(raw, &fl); err != nil {
			return nil, fmt.Errorf("decode field list: %w", err)
		}
		return &fl, nil
	case shape["properties"] != nil:
		var ps PropertySchema
		if err := json.Unmarshal(raw, &ps); err != nil {
			return nil, fmt.Errorf("decode property schema: %w", err)
		}
		return &ps, nil
	}
	return nil, fmt.Errorf("form schema has neither fields nor properties")
}

// PropertySchema is a JSON-Schema style object schema.
type PropertySchema struct {
	Schema        *openapi3.Schema
	CitizenFields []string
}

func (*PropertySchema) isSchema() {}

// UnmarshalJSON decodes the schema and its optional citizenFields list.
func (p *PropertySchema) UnmarshalJSON(data []byte) error {
	var s openapi3.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	var extra struct {
		CitizenFields []string `json:"citizenFields"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	p.Schema = &s
	p.CitizenFields = extra.CitizenFields
	return nil
}

// MarshalJSON encodes the schema with its citizenFields list.
func (p PropertySchema) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(p.Schema)
	if err != nil {
		return nil, err
	}
	if len(p.CitizenFields) == 0 {
		return raw, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["citizenFields"] = p.CitizenFields
	return json.Marshal(m)
}

// Normalize implements Schema.
func (p *PropertySchema) Normalize() (*Canonical, error) {
	if p.Schema == nil {
		return nil, fmt.Errorf("property schema is empty")
	}
	s := *p.Schema
	if s.Type == nil {
		s.Type = &openapi3.Types{openapi3.TypeObject}
	}
	if !s.Type.Is(openapi3.TypeObject) {
		return nil, fmt.Errorf("property schema must be an object, got %v", *s.Type)
	}

	labels := make(map[string]string, len(s.Properties))
	for name, ref := range s.Properties {
		if ref == nil || ref.Value == nil {
			return nil, fmt.Errorf("property %q has no schema", name)
		}
		labels[name] = ref.Value.Title
	}
	return finish(&s, p.CitizenFields, labels), nil
}

// finish applies the citizen-field exclusion shared by both shapes.
func finish(s *openapi3.Schema, citizen []string, labels map[string]string) *Canonical {
	if len(citizen) == 0 {
		citizen = DefaultCitizenFields
	}
	set := make(map[string]bool, len(citizen))
	for _, f := range citizen {
		set[f] = true
	}
	required := make([]string, 0, len(s.Required))
	for _, f := range s.Required {
		if !set[f] {
			required = append(required, f)
		}
	}
	sort.Strings(required)
	s.Required = required
	return &Canonical{Schema: s, CitizenFields: set, Labels: labels}
}
