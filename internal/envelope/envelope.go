// Package envelope defines the canonical API response envelope — the single
// normalized shape every caller consumes — along with pagination metadata,
// field-level validation errors, and the stable error-code taxonomy.
//
// The JSON field names here are the system's only durable wire contract and
// must not change.
package envelope

import (
	"fmt"
	"time"
)

// Envelope is the canonical response shape. Exactly one of Data and Error is
// populated on a well-formed envelope, unless both are legitimately absent
// (an empty success, e.g. a 204).
type Envelope struct {
	Success    bool       `json:"success"`
	StatusCode int        `json:"statusCode"`
	Data       any        `json:"data"`
	Error      *ErrorBody `json:"error"`
	Meta       Meta       `json:"meta"`
}

// ErrorBody is the error half of an envelope. Details holds either a
// []FieldError slice or a map of field name to message, depending on what
// the backend produced.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta carries per-request correlation data. RequestID is always non-empty;
// synthetic IDs are prefixed "legacy-", "error-", or "blob-" when the
// response did not originate from a canonical backend.
type Meta struct {
	RequestID  string          `json:"requestId"`
	Timestamp  string          `json:"timestamp"`
	Pagination *PaginationMeta `json:"pagination,omitempty"`
	TenantID   string          `json:"tenantId,omitempty"`
}

// PaginationMeta describes one page of a paginated collection.
type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// FieldError is a single field-level validation failure. Field uses dot or
// bracket path notation and may address nested or array members
// ("items.0.price").
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// NewPagination builds a PaginationMeta with the totalPages derived from
// totalItems and limit: ceil(totalItems/limit) when limit > 0, otherwise 1.
func NewPagination(page, limit, totalItems int) PaginationMeta {
	totalPages := 1
	if limit > 0 {
		totalPages = (totalItems + limit - 1) / limit
	}
	return PaginationMeta{
		Page:       page,
		Limit:      limit,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}

// NewMeta builds a Meta stamped with the current time.
func NewMeta(requestID string) Meta {
	return Meta{
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Validate checks the envelope invariants: a non-empty requestId, a
// non-empty timestamp, and mutual exclusion of Data and Error.
func (e *Envelope) Validate() error {
	if e.Meta.RequestID == "" {
		return fmt.Errorf("envelope meta.requestId is empty")
	}
	if e.Meta.Timestamp == "" {
		return fmt.Errorf("envelope meta.timestamp is empty")
	}
	if e.Data != nil && e.Error != nil {
		return fmt.Errorf("envelope has both data and error populated")
	}
	if !e.Success && e.Error == nil {
		return fmt.Errorf("failed envelope is missing its error body")
	}
	if e.Success && e.Error != nil {
		return fmt.Errorf("successful envelope carries an error body")
	}
	return nil
}
