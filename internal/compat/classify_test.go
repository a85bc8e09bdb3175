package compat_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bistrohq/bistroctl/internal/compat"
)

// decode parses a JSON literal the way the pipeline would, so classification
// tests see the same dynamic types (map[string]any, []any, float64) as
// production code.
func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

const canonicalJSON = `{
	"success": true,
	"statusCode": 200,
	"data": {"id": "1"},
	"error": null,
	"meta": {"requestId": "req-1", "timestamp": "2026-08-01T10:00:00Z"}
}`

func TestClassifyTags(t *testing.T) {
	cases := []struct {
		name string
		body any
		want compat.FormatTag
	}{
		{"canonical", decode(t, canonicalJSON), compat.TagCanonical},
		{"canonical failure", decode(t, `{
			"success": false, "statusCode": 403, "data": null,
			"error": {"code": "FORBIDDEN", "message": "no"},
			"meta": {"requestId": "req-2", "timestamp": "2026-08-01T10:00:00Z"}
		}`), compat.TagCanonical},
		{"wrapped data", decode(t, `{"data": {"id": "1"}}`), compat.TagWrappedData},
		{"wrapped data array", decode(t, `{"data": [1, 2, 3]}`), compat.TagWrappedData},
		{"wrapped result", decode(t, `{"result": {"updated": true}}`), compat.TagWrappedResult},
		{"legacy pagination", decode(t, `{"items": [], "total": 0}`), compat.TagLegacyPagination},
		{"direct array", decode(t, `[{"id": "1"}]`), compat.TagDirectArray},
		{"direct object", decode(t, `{"id": "1", "name": "Margherita"}`), compat.TagDirectObject},
		{"string primitive", "ok", compat.TagPrimitive},
		{"number primitive", float64(42), compat.TagPrimitive},
		{"bool primitive", true, compat.TagPrimitive},
		{"binary", []byte{0x25, 0x50, 0x44, 0x46}, compat.TagBinary},
		{"nil", nil, compat.TagUnrecognized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := compat.Classify(tc.body)
			assert.Equal(t, tc.want, got.Tag)
		})
	}
}

func TestClassifyFlags(t *testing.T) {
	assert.True(t, compat.Classify(decode(t, canonicalJSON)).Canonical)
	assert.True(t, compat.Classify([]byte("x")).Binary)
	assert.True(t, compat.Classify(decode(t, `{"data": 1}`)).Legacy)
	assert.False(t, compat.Classify(decode(t, canonicalJSON)).Legacy)
	assert.False(t, compat.Classify(nil).Legacy)
}

// Precedence: a body carrying both data and result keys is wrapped_data;
// items+total only wins when neither wrapper key claims the body first.
func TestClassifyPrecedence(t *testing.T) {
	assert.Equal(t, compat.TagWrappedData,
		compat.Classify(decode(t, `{"data": 1, "result": 2}`)).Tag)
	assert.Equal(t, compat.TagWrappedResult,
		compat.Classify(decode(t, `{"result": 2, "items": [], "total": 0}`)).Tag)
	assert.Equal(t, compat.TagLegacyPagination,
		compat.Classify(decode(t, `{"items": [], "total": 0, "extra": true}`)).Tag)
}

// A map with both data and success keys is not wrapped_data: the success key
// signals an attempted envelope, and an incomplete one falls through to
// direct_object rather than being mistaken for a data wrapper.
func TestClassifyIncompleteEnvelope(t *testing.T) {
	got := compat.Classify(decode(t, `{"success": true, "data": {"id": "1"}}`))
	assert.Equal(t, compat.TagDirectObject, got.Tag)
}

// Canonical detection requires every structural field: drop any one and the
// body is no longer canonical.
func TestClassifyCanonicalRequiresAllFields(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing meta", `{"success": true, "statusCode": 200, "data": 1, "error": null}`},
		{"missing statusCode", `{"success": true, "data": 1, "error": null,
			"meta": {"requestId": "r", "timestamp": "t"}}`},
		{"missing error key", `{"success": true, "statusCode": 200, "data": 1,
			"meta": {"requestId": "r", "timestamp": "t"}}`},
		{"empty requestId", `{"success": true, "statusCode": 200, "data": 1, "error": null,
			"meta": {"requestId": "", "timestamp": "t"}}`},
		{"non-bool success", `{"success": "yes", "statusCode": 200, "data": 1, "error": null,
			"meta": {"requestId": "r", "timestamp": "t"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := compat.Classify(decode(t, tc.raw))
			assert.NotEqual(t, compat.TagCanonical, got.Tag)
		})
	}
}

// Classification is pure: the same body always yields the same result.
func TestClassifyIdempotent(t *testing.T) {
	bodies := []any{
		decode(t, canonicalJSON),
		decode(t, `{"data": 1}`),
		decode(t, `[1, 2]`),
		"text",
		nil,
	}
	for _, body := range bodies {
		first := compat.Classify(body)
		second := compat.Classify(body)
		assert.Equal(t, first, second)
	}
}
