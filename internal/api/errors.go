package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bistrohq/bistroctl/internal/envelope"
)

// errorFromEnvelope converts a failed normalized envelope into the typed
// error surfaced to callers.
func errorFromEnvelope(method string, status int, env *envelope.Envelope) *envelope.APIError {
	code := ""
	message := "request failed"
	var details any
	if env.Error != nil {
		code = env.Error.Code
		if env.Error.Message != "" {
			message = env.Error.Message
		}
		details = env.Error.Details
	}
	if code == "" {
		code = defaultCode(method, status)
	}
	apiErr := envelope.NewAPIError(code, message, status, env.Meta.RequestID)
	apiErr.Details = details
	apiErr.Fields = fieldErrors(details)
	return apiErr
}

// errorFromBody builds a typed error from a raw non-2xx body. The backend's
// error shapes vary; the extraction is tolerant and falls back to the status
// taxonomy when the body carries nothing usable.
func errorFromBody(method string, status int, raw []byte, requestID string) *envelope.APIError {
	code := ""
	message := strings.TrimSpace(string(raw))
	var details any

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err == nil {
		if errMap, ok := m["error"].(map[string]any); ok {
			code, _ = errMap["code"].(string)
			if s, ok := errMap["message"].(string); ok {
				message = s
			}
			details = errMap["details"]
		} else if s, ok := m["error"].(string); ok {
			message = s
		} else if s, ok := m["message"].(string); ok {
			message = s
		}
		if code == "" {
			if s, ok := m["code"].(string); ok {
				code = s
			}
		}
		if meta, ok := m["meta"].(map[string]any); ok {
			if id, ok := meta["requestId"].(string); ok && id != "" {
				requestID = id
			}
		}
	}

	if message == "" {
		message = http.StatusText(status)
	}
	if code == "" {
		code = defaultCode(method, status)
	}
	apiErr := envelope.NewAPIError(code, message, status, requestID)
	apiErr.Details = details
	apiErr.Fields = fieldErrors(details)
	return apiErr
}

// defaultCode maps an HTTP status onto the stable taxonomy, falling back to
// the generic per-method operation code.
func defaultCode(method string, status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return envelope.CodeValidation
	case http.StatusUnauthorized:
		return envelope.CodeUnauthorized
	case http.StatusForbidden:
		return envelope.CodeForbidden
	case http.StatusRequestEntityTooLarge:
		return envelope.CodeFileTooLarge
	default:
		return envelope.OperationCode(method)
	}
}

// fieldErrors extracts field-level detail for form-binding consumers.
// Accepts both the []FieldError array shape and the {field: message} map.
func fieldErrors(details any) []envelope.FieldError {
	switch d := details.(type) {
	case []any:
		out := make([]envelope.FieldError, 0, len(d))
		for _, entry := range d {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			fe := envelope.FieldError{Value: m["value"]}
			fe.Field, _ = m["field"].(string)
			fe.Message, _ = m["message"].(string)
			if fe.Field != "" {
				out = append(out, fe)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case map[string]any:
		out := make([]envelope.FieldError, 0, len(d))
		for field, v := range d {
			if msg, ok := v.(string); ok {
				out = append(out, envelope.FieldError{Field: field, Message: msg})
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []envelope.FieldError:
		return d
	}
	return nil
}

// IsFeatureGated reports whether err is a plan-gating error.
func IsFeatureGated(err error) bool {
	apiErr, ok := envelope.AsAPIError(err)
	return ok && apiErr.PlanGated()
}
