package validator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oremus-labs/kronos-go/internal/mockserver"
	"github.com/oremus-labs/kronos-go/kronos/stream"
)

func inferred(t *testing.T) map[string]any {
	t.Helper()
	return mockserver.InferSchema([]map[string]any{
		{"@id": "1", "@time": json.Number("10"), "user": "ada", "clicks": json.Number("3"), "tags": []any{"a"}, "mixed": "x"},
		{"@id": "2", "@time": json.Number("11"), "user": "bob", "clicks": json.Number("5"), "tags": []any{}, "mixed": json.Number("2")},
	})
}

func TestValidatePassesMatchingEvent(t *testing.T) {
	v, err := New(inferred(t))
	require.NoError(t, err)

	res := v.Validate(stream.Event{"user": "cy", "clicks": json.Number("9"), "tags": []any{"b"}, "mixed": true})
	assert.True(t, res.Valid, res.Errors)
}

func TestValidateReportsViolations(t *testing.T) {
	v, err := New(inferred(t))
	require.NoError(t, err)

	res := v.Validate(stream.Event{stream.IDField: "x", "user": 4, "tags": []any{"b"}, "mixed": nil})
	assert.False(t, res.Valid)
	assert.Equal(t, "x", res.ID)
	assert.GreaterOrEqual(t, len(res.Errors), 2, "wrong type for user and missing clicks")
}

func TestNewRejectsEmptySchema(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNormalizeDropsAnyAndStampedFields(t *testing.T) {
	out := normalize(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"@time": map[string]any{"type": "integer"},
			"v":     map[string]any{"type": "any"},
			"list":  map[string]any{"type": "array", "items": map[string]any{"type": "any"}},
		},
		"required": []any{"v", "@time", "@id"},
	}, true)

	props := out["properties"].(map[string]any)
	assert.NotContains(t, props["v"], "type")
	assert.NotContains(t, props["list"].(map[string]any)["items"], "type")
	assert.Equal(t, []string{"v"}, out["required"])

	empty := normalize(map[string]any{"type": "object", "required": []string{"@time"}}, true)
	assert.NotContains(t, empty, "required")
}

func TestValidateStream(t *testing.T) {
	v, err := New(inferred(t))
	require.NoError(t, err)

	s := stream.New()
	s.Push(stream.Record{Event: stream.Event{"user": "a", "clicks": json.Number("1"), "tags": []any{}, "mixed": 1}})
	s.Push(stream.Record{Text: "ignored"})
	s.Push(stream.Record{Event: stream.Event{stream.IDField: "bad", "user": "a", "tags": []any{}, "mixed": 1}})
	s.Complete()

	report, err := v.ValidateStream(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Invalid)
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "bad: ")
}

func TestValidateStreamFailure(t *testing.T) {
	v, err := New(inferred(t))
	require.NoError(t, err)
	s := stream.New()
	s.Fail(errors.New("connection reset"))
	_, err = v.ValidateStream(context.Background(), s)
	assert.EqualError(t, err, "connection reset")
}
