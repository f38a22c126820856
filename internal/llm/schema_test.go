package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"prose wrapped", "Here is the result:\n{\"a\":1}\nHope that helps!", `{"a":1}`, false},
		{"code fence", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"no object", "I cannot produce JSON for that.", "", true},
		{"brace order", "} not a real object {", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestSchemaValidate_RequiredAndTypes(t *testing.T) {
	schema := &Schema{Fields: []Field{
		{Name: "name", Kind: KindString, Required: true},
		{Name: "quality", Kind: KindNumber, Required: true, Min: Bound(0), Max: Bound(1)},
		{Name: "rank", Kind: KindInteger},
		{Name: "viable", Kind: KindBool},
	}}

	assert.NoError(t, schema.Validate([]byte(`{"name":"Short North","quality":0.8,"rank":2,"viable":true}`)))

	err := schema.Validate([]byte(`{"quality":0.8}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required field "name"`)

	err = schema.Validate([]byte(`{"name":"x","quality":"high"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected number")

	err = schema.Validate([]byte(`{"name":"x","quality":1.4}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "above maximum")

	err = schema.Validate([]byte(`{"name":"x","quality":0.5,"rank":2.5}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected integer")
}

func TestSchemaValidate_NestedArrayAndObject(t *testing.T) {
	schema := &Schema{Fields: []Field{
		{Name: "candidates", Kind: KindArray, Required: true, Items: &Schema{Fields: []Field{
			{Name: "name", Kind: KindString, Required: true},
			{Name: "lat", Kind: KindNumber, Required: true},
		}}},
		{Name: "market", Kind: KindObject, Object: &Schema{Fields: []Field{
			{Name: "summary", Kind: KindString, Required: true},
		}}},
	}}

	good := `{"candidates":[{"name":"a","lat":39.9},{"name":"b","lat":40.0}],"market":{"summary":"dense"}}`
	assert.NoError(t, schema.Validate([]byte(good)))

	bad := `{"candidates":[{"lat":39.9}]}`
	err := schema.Validate([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required field "candidates.name"`)

	notArr := `{"candidates":{"name":"a"}}`
	assert.Error(t, schema.Validate([]byte(notArr)))
}

func TestSchemaValidate_UnknownFieldsIgnored(t *testing.T) {
	schema := &Schema{Fields: []Field{{Name: "name", Kind: KindString, Required: true}}}
	assert.NoError(t, schema.Validate([]byte(`{"name":"x","extra":"volunteered detail"}`)))
}

func TestSchemaValidate_OptionalNullOK(t *testing.T) {
	schema := &Schema{Fields: []Field{{Name: "notes", Kind: KindString}}}
	assert.NoError(t, schema.Validate([]byte(`{"notes":null}`)))
}

func TestSchemaValidate_TopLevelNotObject(t *testing.T) {
	schema := &Schema{Fields: []Field{{Name: "name", Kind: KindString}}}
	assert.Error(t, schema.Validate([]byte(`[1,2,3]`)))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.3))
	assert.Equal(t, 1.0, Clamp(1.7))
	assert.Equal(t, 0.42, Clamp(0.42))
}
