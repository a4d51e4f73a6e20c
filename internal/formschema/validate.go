package formschema

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/digiurban/lifecycle/model"
)

// Result is the outcome of validating one submission. Data holds the payload
// after coercion and defaults, and is only meaningful when Valid is true.
type Result struct {
	Valid  bool               `json:"valid"`
	Errors []string           `json:"errors"`
	Fields []model.FieldError `json:"fields,omitempty"`
	Data   map[string]any     `json:"data,omitempty"`
}

// Envelope converts an invalid result into a FORM_VALIDATION_ERROR. It
// returns nil for a valid result.
func (r *Result) Envelope() *model.ErrorEnvelope {
	if r.Valid {
		return nil
	}
	return model.NewFormValidationError(r.Fields)
}

// Validate checks data against schema. A nil schema accepts any payload.
// The input map is never modified.
func Validate(schema Schema, data map[string]any) (*Result, error) {
	payload := prepare(data)
	if schema == nil {
		return &Result{Valid: true, Errors: []string{}, Data: payload}, nil
	}
	canonical, err := schema.Normalize()
	if err != nil {
		return nil, fmt.Errorf("normalize form schema: %w", err)
	}
	return canonical.Validate(payload), nil
}

// ValidateRaw parses raw and validates data against it. Empty raw accepts
// any payload.
func ValidateRaw(raw []byte, data map[string]any) (*Result, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Validate(nil, data)
	}
	schema, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return Validate(schema, data)
}

// Validate runs the canonical schema over an already prepared payload.
func (c *Canonical) Validate(payload map[string]any) *Result {
	coerce(c.Schema, payload)

	err := c.Schema.VisitJSON(payload,
		openapi3.MultiErrors(),
		openapi3.VisitAsRequest(),
		openapi3.DefaultsSet(func() {}),
	)
	res := &Result{Valid: err == nil, Errors: []string{}, Data: payload}
	if err == nil {
		return res
	}

	for _, se := range flatten(err) {
		field := strings.Join(se.JSONPointer(), ".")
		res.Fields = append(res.Fields, model.FieldError{
			Field:   field,
			Code:    strings.ToUpper(se.SchemaField),
			Message: c.message(field, se),
		})
	}
	sort.SliceStable(res.Fields, func(i, j int) bool { return res.Fields[i].Field < res.Fields[j].Field })
	for _, f := range res.Fields {
		res.Errors = append(res.Errors, f.Message)
	}
	return res
}

func (c *Canonical) message(field string, se *openapi3.SchemaError) string {
	label := c.Label(field)
	s := se.Schema
	switch se.SchemaField {
	case "required":
		return fmt.Sprintf("O campo '%s' é obrigatório", label)
	case "type", "nullable":
		return fmt.Sprintf("O campo '%s' deve ser do tipo %s", label, strings.Join(s.Type.Slice(), "|"))
	case "format":
		return fmt.Sprintf("O campo '%s' está em formato inválido (esperado: %s)", label, s.Format)
	case "minLength":
		return fmt.Sprintf("O campo '%s' deve ter no mínimo %d caracteres", label, s.MinLength)
	case "maxLength":
		return fmt.Sprintf("O campo '%s' deve ter no máximo %d caracteres", label, deref(s.MaxLength))
	case "minimum":
		return fmt.Sprintf("O campo '%s' deve ser maior ou igual a %s", label, number(s.Min))
	case "maximum":
		return fmt.Sprintf("O campo '%s' deve ser menor ou igual a %s", label, number(s.Max))
	case "pattern":
		return fmt.Sprintf("O campo '%s' não corresponde ao padrão esperado", label)
	case "enum":
		values := make([]string, len(s.Enum))
		for i, v := range s.Enum {
			values[i] = fmt.Sprint(v)
		}
		return fmt.Sprintf("O campo '%s' deve ser um dos valores: %s", label, strings.Join(values, ", "))
	}
	return fmt.Sprintf("Erro no campo '%s': %s", label, se.Reason)
}

// flatten walks nested MultiErrors and returns every SchemaError leaf.
func flatten(err error) []*openapi3.SchemaError {
	switch e := err.(type) {
	case openapi3.MultiError:
		var out []*openapi3.SchemaError
		for _, inner := range e {
			out = append(out, flatten(inner)...)
		}
		return out
	case *openapi3.SchemaError:
		return []*openapi3.SchemaError{e}
	}
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		return []*openapi3.SchemaError{se}
	}
	return []*openapi3.SchemaError{{Reason: err.Error(), Schema: &openapi3.Schema{}}}
}

// prepare deep-copies data and drops null values, which count as absent.
func prepare(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if v == nil {
			continue
		}
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return prepare(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	}
	return v
}

// coerce converts top-level string values to the number, integer or boolean
// their property declares, when the conversion is lossless.
func coerce(schema *openapi3.Schema, payload map[string]any) {
	for name, ref := range schema.Properties {
		raw, ok := payload[name].(string)
		if !ok || ref == nil || ref.Value == nil {
			continue
		}
		t := ref.Value.Type
		switch {
		case t.Is(openapi3.TypeInteger):
			if n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
				payload[name] = n
			}
		case t.Is(openapi3.TypeNumber):
			if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
				payload[name] = f
			}
		case t.Is(openapi3.TypeBoolean):
			if b, err := strconv.ParseBool(raw); err == nil {
				payload[name] = b
			}
		}
	}
}

func deref(p *uint64) uint64 {
	if p == nil {
		return 0
	}
	return *p
}

func number(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
