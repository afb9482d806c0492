package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Doc: {{.current_document}} / {{upper .mood}}", map[string]any{
		"current_document": "<b>story</b>",
		"mood":             "calm",
	})
	require.NoError(t, err)
	assert.Equal(t, "Doc: <b>story</b> / CALM", out, "prompts are not HTML escaped")

	out, err = RenderTemplate("no markers", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers", out)

	_, err = RenderTemplate("{{.missing}}", map[string]any{})
	assert.Error(t, err)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}

func TestRenderTemplate_Default(t *testing.T) {
	out, err := RenderTemplate(`{{default "a robot" .topic}}`, map[string]any{"topic": ""})
	require.NoError(t, err)
	assert.Equal(t, "a robot", out)
}

type exitArgs struct {
	Reason string  `json:"reason,omitempty" jsonschema_description:"Why the loop ends"`
	Score  float64 `json:"score"`
	Count  int     `json:"count,omitempty"`
	Skip   string  `json:"-"`
	hidden string
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(exitArgs{})
	props := schema["properties"].(map[string]any)
	assert.Len(t, props, 3)
	assert.Equal(t, "string", props["reason"].(map[string]any)["type"])
	assert.Equal(t, "Why the loop ends", props["reason"].(map[string]any)["description"])
	assert.Equal(t, "integer", props["count"].(map[string]any)["type"])
	assert.NotContains(t, props, "-")
	assert.Equal(t, []any{"score"}, schema["required"])
	assert.Equal(t, "object", schema["type"])

	ptr := CreateSchema(&exitArgs{})
	assert.Equal(t, schema, ptr)
}

func TestCreateSchema_NonStruct(t *testing.T) {
	var nilArgs *exitArgs
	for name, v := range map[string]any{
		"int":     42,
		"string":  "text",
		"map":     map[string]any{"a": 1},
		"nil":     nil,
		"nil_ptr": nilArgs,
	} {
		t.Run(name, func(t *testing.T) {
			schema := CreateSchema(v)
			assert.Equal(t, "object", schema["type"])
			assert.Empty(t, schema["properties"])
		})
	}
}

func TestCreateSchema_AnonymousStruct(t *testing.T) {
	schema := CreateSchema(struct {
		N    int    `json:"n"`
		Note string `json:"note,omitempty"`
	}{})

	assert.Equal(t, "object", schema["type"])
	props := schema["properties"].(map[string]any)
	assert.Equal(t, "integer", props["n"].(map[string]any)["type"])
	assert.Equal(t, "string", props["note"].(map[string]any)["type"])
	assert.Equal(t, []any{"n"}, schema["required"])
	assert.NotContains(t, schema, "$id")
}

func TestValidateParameters(t *testing.T) {
	schema := CreateSchema(exitArgs{})

	assert.NoError(t, ValidateParameters(map[string]any{"score": 1.0}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "score", vErr.Field)

	err = ValidateParameters(map[string]any{"score": "high"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type number")

	anySchema := map[string]any{"required": []any{"x"}}
	assert.Error(t, ValidateParameters(map[string]any{}, anySchema))
}

func TestMatchesType(t *testing.T) {
	assert.True(t, matchesType(3.0, "integer"))
	assert.False(t, matchesType(3.5, "integer"))
	assert.True(t, matchesType([]any{1}, "array"))
	assert.True(t, matchesType(nil, "string"))
	assert.True(t, matchesType("x", "unknown"))
}
