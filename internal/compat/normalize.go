package compat

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"reflect"
	"time"

	"github.com/bistrohq/bistroctl/internal/envelope"
)

// Normalize converts any classified legacy shape into a canonical envelope.
// It never returns nil and never panics: unrecognized input and conversion
// failures degrade to an error envelope carrying the original body for
// diagnostics.
func Normalize(body any, sourceURL string) *envelope.Envelope {
	cls := Classify(body)

	if cls.Tag == TagUnrecognized {
		return errorEnvelope(envelope.CodeUnknownFormat,
			"response format could not be recognized", body, sourceURL)
	}

	// Structural validation before extraction: a cyclic or non-serializable
	// body must fail the conversion rather than produce corrupted output.
	if err := validateStructure(body); err != nil {
		return errorEnvelope(envelope.CodeNormalization,
			fmt.Sprintf("response structure is not convertible: %v", err), nil, sourceURL)
	}

	var data any
	switch cls.Tag {
	case TagWrappedData:
		data = body.(map[string]any)["data"]
	case TagWrappedResult:
		data = body.(map[string]any)["result"]
	case TagLegacyPagination:
		data = reshapePagination(body.(map[string]any))
	case TagDirectArray, TagDirectObject, TagPrimitive:
		data = body
	case TagCanonical:
		// Already canonical; rebuild the typed envelope without touching it.
		return envelopeFromMap(body.(map[string]any))
	case TagBinary:
		return BinaryEnvelope(body)
	}

	env := &envelope.Envelope{
		Success:    true,
		StatusCode: 200,
		Data:       data,
		Meta:       envelope.NewMeta(legacyRequestID()),
	}
	if err := env.Validate(); err != nil {
		return errorEnvelope(envelope.CodeNormalization,
			fmt.Sprintf("normalized envelope failed validation: %v", err), nil, sourceURL)
	}
	return env
}

// BinaryEnvelope wraps an opaque blob in a success envelope without any
// parsing or inspection.
func BinaryEnvelope(blob any) *envelope.Envelope {
	return &envelope.Envelope{
		Success:    true,
		StatusCode: 200,
		Data:       blob,
		Meta:       envelope.NewMeta(fmt.Sprintf("blob-%d", time.Now().UnixMilli())),
	}
}

// reshapePagination converts {items, total, page?, limit?} into
// {items, pagination} with derived totalPages.
func reshapePagination(m map[string]any) map[string]any {
	items, _ := m["items"].([]any)
	if items == nil {
		items = []any{}
	}
	total := intFrom(m["total"], 0)
	page := intFrom(m["page"], 1)
	limit := intFrom(m["limit"], len(items))

	return map[string]any{
		"items":      items,
		"pagination": envelope.NewPagination(page, limit, total),
	}
}

// intFrom coerces a decoded JSON number into an int, falling back to def.
func intFrom(v any, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return def
}

// validateStructure rejects bodies that cannot survive serialization:
// circular references (caught by attempting to marshal) and non-serializable
// members such as functions or channels at the top level or one level down.
func validateStructure(body any) error {
	if err := checkSerializable(body); err != nil {
		return err
	}
	switch v := body.(type) {
	case map[string]any:
		for key, member := range v {
			if err := checkSerializable(member); err != nil {
				return fmt.Errorf("member %q: %w", key, err)
			}
		}
	case []any:
		for i, member := range v {
			if err := checkSerializable(member); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	}
	return nil
}

// checkSerializable rejects values encoding/json cannot represent. Marshal
// also detects reference cycles, which reflection alone would miss.
func checkSerializable(v any) error {
	if v == nil {
		return nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Func:
		return fmt.Errorf("contains a function value")
	case reflect.Chan:
		return fmt.Errorf("contains a channel value")
	}
	if _, err := json.Marshal(v); err != nil {
		return fmt.Errorf("not serializable: %w", err)
	}
	return nil
}

// envelopeFromMap rebuilds a typed Envelope from an already-canonical map
// without re-validating its contents.
func envelopeFromMap(m map[string]any) *envelope.Envelope {
	env := &envelope.Envelope{
		Success:    m["success"].(bool),
		StatusCode: intFrom(m["statusCode"], 0),
		Data:       m["data"],
	}
	if errMap, ok := m["error"].(map[string]any); ok {
		body := &envelope.ErrorBody{}
		body.Code, _ = errMap["code"].(string)
		body.Message, _ = errMap["message"].(string)
		body.Details = errMap["details"]
		env.Error = body
	}
	if meta, ok := m["meta"].(map[string]any); ok {
		env.Meta.RequestID, _ = meta["requestId"].(string)
		env.Meta.Timestamp, _ = meta["timestamp"].(string)
		env.Meta.TenantID, _ = meta["tenantId"].(string)
		if p, ok := meta["pagination"].(map[string]any); ok {
			env.Meta.Pagination = &envelope.PaginationMeta{
				Page:       intFrom(p["page"], 0),
				Limit:      intFrom(p["limit"], 0),
				TotalItems: intFrom(p["totalItems"], 0),
				TotalPages: intFrom(p["totalPages"], 0),
			}
		}
	}
	return env
}

// errorEnvelope builds a failed envelope, preserving the original body and
// source URL in the error details for diagnostics.
func errorEnvelope(code, message string, original any, sourceURL string) *envelope.Envelope {
	details := map[string]any{}
	if sourceURL != "" {
		details["sourceUrl"] = sourceURL
	}
	if original != nil {
		// Only attach the original body when it is safely representable.
		if checkSerializable(original) == nil {
			details["originalBody"] = original
		}
	}
	return &envelope.Envelope{
		Success:    false,
		StatusCode: 500,
		Error: &envelope.ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: envelope.NewMeta(fmt.Sprintf("error-%d", time.Now().UnixMilli())),
	}
}

// legacyRequestID synthesises a correlation id for a response converted from
// a legacy format: "legacy-<epoch>-<random>".
func legacyRequestID() string {
	return fmt.Sprintf("legacy-%d-%06x", time.Now().UnixMilli(), rand.Intn(1<<24))
}
