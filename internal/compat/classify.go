// Package compat unifies heterogeneous backend response shapes into the
// canonical envelope. It holds the format classifier, the legacy-format
// normalizer, and the Manager that orchestrates both per request while
// tracking conversion statistics.
package compat

import "encoding/json"

// FormatTag is the closed enumeration of recognised response shapes.
type FormatTag string

const (
	TagCanonical        FormatTag = "canonical"
	TagWrappedData      FormatTag = "wrapped_data"
	TagWrappedResult    FormatTag = "wrapped_result"
	TagLegacyPagination FormatTag = "legacy_pagination"
	TagDirectArray      FormatTag = "direct_array"
	TagDirectObject     FormatTag = "direct_object"
	TagPrimitive        FormatTag = "primitive"
	TagBinary           FormatTag = "binary"
	TagUnrecognized     FormatTag = "unrecognized"
)

// Classification is the result of inspecting one response body.
type Classification struct {
	Tag       FormatTag
	Canonical bool
	Legacy    bool
	Binary    bool
}

// Classify inspects an arbitrary decoded response body and assigns it a
// format tag. It is a pure function: the same input always yields the same
// classification.
//
// Precedence is fixed: binary > canonical > wrapped_data > wrapped_result >
// legacy_pagination > direct_array > direct_object > primitive. The
// items+total pagination heuristic can in principle claim a business object
// that happens to carry both keys; that trade-off is accepted and the
// precedence must not be reordered without product input.
//
// A nil body is deliberately unrecognized, not primitive: downstream raises
// UNKNOWN_RESPONSE_FORMAT rather than silently wrapping null.
func Classify(body any) Classification {
	switch v := body.(type) {
	case nil:
		return Classification{Tag: TagUnrecognized}
	case []byte:
		// Opaque byte blobs are never inspected further.
		return Classification{Tag: TagBinary, Binary: true}
	case map[string]any:
		if isCanonicalShape(v) {
			return Classification{Tag: TagCanonical, Canonical: true}
		}
		if _, hasData := v["data"]; hasData {
			if _, hasSuccess := v["success"]; !hasSuccess {
				return Classification{Tag: TagWrappedData, Legacy: true}
			}
		}
		if _, ok := v["result"]; ok {
			return Classification{Tag: TagWrappedResult, Legacy: true}
		}
		_, hasItems := v["items"]
		_, hasTotal := v["total"]
		if hasItems && hasTotal {
			return Classification{Tag: TagLegacyPagination, Legacy: true}
		}
		return Classification{Tag: TagDirectObject, Legacy: true}
	case []any:
		return Classification{Tag: TagDirectArray, Legacy: true}
	default:
		// string, bool, float64, int — JSON primitives or test scalars.
		return Classification{Tag: TagPrimitive, Legacy: true}
	}
}

// isCanonicalShape checks for the canonical envelope: a boolean success, a
// numeric statusCode, both data and error keys present (values may be null),
// and a meta object carrying a string requestId and timestamp.
func isCanonicalShape(m map[string]any) bool {
	if _, ok := m["success"].(bool); !ok {
		return false
	}
	if !isNumber(m["statusCode"]) {
		return false
	}
	if _, ok := m["data"]; !ok {
		return false
	}
	if _, ok := m["error"]; !ok {
		return false
	}
	meta, ok := m["meta"].(map[string]any)
	if !ok {
		return false
	}
	if s, ok := meta["requestId"].(string); !ok || s == "" {
		return false
	}
	if _, ok := meta["timestamp"].(string); !ok {
		return false
	}
	return true
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	}
	return false
}
