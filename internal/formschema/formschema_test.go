package formschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digiurban/lifecycle/model"
)

const legacyForm = `{
  "fields": [
    {"id": "descricao", "type": "textarea", "label": "Descrição", "required": true, "minLength": 10},
    {"id": "area", "type": "number", "label": "Área (ha)", "required": true, "min": 0.5, "max": 500},
    {"id": "cultura", "type": "select", "label": "Cultura", "options": ["milho", "soja", {"value": "cafe", "label": "Café"}]},
    {"id": "dataVisita", "type": "date", "label": "Data da visita"},
    {"id": "contato", "type": "email", "label": "E-mail de contato"},
    {"id": "irrigado", "type": "checkbox", "label": "Irrigado"},
    {"id": "nome", "type": "text", "label": "Nome", "required": true}
  ]
}`

const propertyForm = `{
  "type": "object",
  "properties": {
    "descricao": {"type": "string", "title": "Descrição", "minLength": 10},
    "area": {"type": "number", "title": "Área (ha)", "minimum": 0.5, "maximum": 500},
    "cultura": {"type": "string", "title": "Cultura", "enum": ["milho", "soja", "cafe"]},
    "dataVisita": {"type": "string", "title": "Data da visita", "format": "date"},
    "contato": {"type": "string", "title": "E-mail de contato", "format": "email"},
    "irrigado": {"type": "boolean", "title": "Irrigado"},
    "nome": {"type": "string", "title": "Nome"}
  },
  "required": ["descricao", "area", "nome"]
}`

func TestParse_DetectsShape(t *testing.T) {
	s, err := Parse([]byte(legacyForm))
	require.NoError(t, err)
	assert.IsType(t, &FieldList{}, s)

	s, err = Parse([]byte(propertyForm))
	require.NoError(t, err)
	assert.IsType(t, &PropertySchema{}, s)

	s, err = Parse([]byte(`[{"id":"a","type":"text"}]`))
	require.NoError(t, err)
	assert.IsType(t, &FieldList{}, s)

	_, err = Parse([]byte(`{"title":"nothing"}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`  `))
	assert.Error(t, err)
}

func TestNormalize_LegacyConversion(t *testing.T) {
	s, err := Parse([]byte(legacyForm))
	require.NoError(t, err)
	c, err := s.Normalize()
	require.NoError(t, err)

	props := c.Schema.Properties
	assert.True(t, props["descricao"].Value.Type.Is("string"))
	assert.True(t, props["area"].Value.Type.Is("number"))
	assert.Equal(t, []any{"milho", "soja", "cafe"}, props["cultura"].Value.Enum)
	assert.Equal(t, "date", props["dataVisita"].Value.Format)
	assert.Equal(t, FormatEmail, props["contato"].Value.Format)
	assert.True(t, props["irrigado"].Value.Type.Is("boolean"))
	assert.Equal(t, "Descrição", c.Label("descricao"))

	// nome is a citizen field and never required at submission.
	assert.Equal(t, []string{"area", "descricao"}, c.Schema.Required)
}

func TestNormalize_DuplicateFieldID(t *testing.T) {
	fl := &FieldList{Fields: []Field{{ID: "a", Type: "text"}, {ID: "a", Type: "number"}}}
	_, err := fl.Normalize()
	assert.ErrorContains(t, err, "duplicate")
}

func TestNormalize_DeclaredCitizenFields(t *testing.T) {
	fl := &FieldList{
		Fields: []Field{
			{ID: "nome", Type: "text", Required: true},
			{ID: "inscricao", Type: "text", Required: true},
		},
		CitizenFields: []string{"inscricao"},
	}
	c, err := fl.Normalize()
	require.NoError(t, err)
	assert.Equal(t, []string{"nome"}, c.Schema.Required)
	assert.True(t, c.CitizenFields["inscricao"])
	assert.False(t, c.CitizenFields["cpf"])
}

func TestValidate_ShapesAgree(t *testing.T) {
	payloads := []map[string]any{
		{"descricao": "Plantio de milho safrinha", "area": 12.5, "cultura": "milho"},
		{"descricao": "curta", "area": 0.1},
		{"area": "abc", "cultura": "arroz", "contato": "sem-arroba"},
		{"descricao": "Visita técnica agendada", "area": "42", "irrigado": "true", "dataVisita": "2025-13-40"},
		{},
	}
	legacy, err := Parse([]byte(legacyForm))
	require.NoError(t, err)
	property, err := Parse([]byte(propertyForm))
	require.NoError(t, err)

	for i, p := range payloads {
		a, err := Validate(legacy, p)
		require.NoError(t, err)
		b, err := Validate(property, p)
		require.NoError(t, err)
		assert.Equal(t, a.Valid, b.Valid, "payload %d", i)
		assert.Equal(t, a.Errors, b.Errors, "payload %d", i)
	}
}

func TestValidate_Messages(t *testing.T) {
	s, err := Parse([]byte(legacyForm))
	require.NoError(t, err)

	tests := []struct {
		name string
		data map[string]any
		want []string
	}{
		{
			name: "valid",
			data: map[string]any{"descricao": "Plantio de milho safrinha", "area": 12.5},
			want: []string{},
		},
		{
			name: "required",
			data: map[string]any{"area": 3.0},
			want: []string{"O campo 'Descrição' é obrigatório"},
		},
		{
			name: "null counts as absent",
			data: map[string]any{"descricao": nil, "area": 3.0},
			want: []string{"O campo 'Descrição' é obrigatório"},
		},
		{
			name: "min length",
			data: map[string]any{"descricao": "curta", "area": 3.0},
			want: []string{"O campo 'Descrição' deve ter no mínimo 10 caracteres"},
		},
		{
			name: "range",
			data: map[string]any{"descricao": "Plantio de milho safrinha", "area": 900.0},
			want: []string{"O campo 'Área (ha)' deve ser menor ou igual a 500"},
		},
		{
			name: "minimum",
			data: map[string]any{"descricao": "Plantio de milho safrinha", "area": 0.1},
			want: []string{"O campo 'Área (ha)' deve ser maior ou igual a 0.5"},
		},
		{
			name: "type",
			data: map[string]any{"descricao": "Plantio de milho safrinha", "area": "muito"},
			want: []string{"O campo 'Área (ha)' deve ser do tipo number"},
		},
		{
			name: "enum",
			data: map[string]any{"descricao": "Plantio de milho safrinha", "area": 1.0, "cultura": "arroz"},
			want: []string{"O campo 'Cultura' deve ser um dos valores: milho, soja, cafe"},
		},
		{
			name: "format",
			data: map[string]any{"descricao": "Plantio de milho safrinha", "area": 1.0, "contato": "x"},
			want: []string{"O campo 'E-mail de contato' está em formato inválido (esperado: email)"},
		},
		{
			name: "several",
			data: map[string]any{"descricao": "curta"},
			want: []string{
				"O campo 'Área (ha)' é obrigatório",
				"O campo 'Descrição' deve ter no mínimo 10 caracteres",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Validate(s, tt.data)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want) == 0, res.Valid)
			assert.Equal(t, tt.want, res.Errors)
		})
	}
}

func TestValidate_CoercionAndDefaults(t *testing.T) {
	fl := &FieldList{Fields: []Field{
		{ID: "area", Type: "number", Required: true},
		{ID: "irrigado", Type: "checkbox"},
		{ID: "canal", Type: "select", Options: []Option{{Value: "web"}, {Value: "balcao"}}, Default: "web"},
	}}
	input := map[string]any{"area": "12.5", "irrigado": "true"}

	res, err := Validate(fl, input)
	require.NoError(t, err)
	require.True(t, res.Valid, res.Errors)
	assert.Equal(t, 12.5, res.Data["area"])
	assert.Equal(t, true, res.Data["irrigado"])
	assert.Equal(t, "web", res.Data["canal"])

	assert.Equal(t, "12.5", input["area"], "input must not be modified")
	assert.NotContains(t, input, "canal")
}

func TestValidate_NilSchemaAcceptsAnything(t *testing.T) {
	res, err := Validate(nil, map[string]any{"x": 1})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Nil(t, res.Envelope())

	res, err = ValidateRaw(nil, map[string]any{"x": 1})
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestValidate_Envelope(t *testing.T) {
	res, err := ValidateRaw([]byte(propertyForm), map[string]any{})
	require.NoError(t, err)
	require.False(t, res.Valid)

	env := res.Envelope()
	require.NotNil(t, env)
	assert.Equal(t, model.ErrFormValidationError, env.Code)
	require.Len(t, env.Details, 2)
	assert.Equal(t, "area", env.Details[0].Field)
	assert.Equal(t, "REQUIRED", env.Details[0].Code)
}

func TestValidate_CustomFormats(t *testing.T) {
	fl := &FieldList{
		Fields: []Field{
			{ID: "documento", Type: "cpf"},
			{ID: "codigoPostal", Type: "cep"},
			{ID: "celular", Type: "phone"},
		},
		CitizenFields: []string{"nome"},
	}
	ok, err := Validate(fl, map[string]any{
		"documento":    "529.982.247-25",
		"codigoPostal": "85960-000",
		"celular":      "(45) 99876-5432",
	})
	require.NoError(t, err)
	assert.True(t, ok.Valid, ok.Errors)

	bad, err := Validate(fl, map[string]any{
		"documento":    "111.111.111-11",
		"codigoPostal": "8596",
		"celular":      "12",
	})
	require.NoError(t, err)
	assert.False(t, bad.Valid)
	assert.Len(t, bad.Errors, 3)
}

func TestValidCPF(t *testing.T) {
	assert.NoError(t, ValidCPF("52998224725"))
	assert.NoError(t, ValidCPF("529.982.247-25"))
	assert.Error(t, ValidCPF("529.982.247-24"))
	assert.Error(t, ValidCPF("000.000.000-00"))
	assert.Error(t, ValidCPF("1234"))
}

func TestValidate_NestedPaths(t *testing.T) {
	raw := `{
	  "properties": {
	    "imovel": {
	      "type": "object",
	      "properties": {"matricula": {"type": "string", "pattern": "^[0-9]+$"}},
	      "required": ["matricula"]
	    }
	  }
	}`
	res, err := ValidateRaw([]byte(raw), map[string]any{"imovel": map[string]any{"matricula": "ab"}})
	require.NoError(t, err)
	require.False(t, res.Valid)
	assert.Equal(t, "imovel.matricula", res.Fields[0].Field)
	assert.Equal(t, []string{"O campo 'imovel.matricula' não corresponde ao padrão esperado"}, res.Errors)
}
