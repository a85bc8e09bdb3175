package api

import "time"

// RequestOptions tunes one pipeline request. The zero value is the default
// behavior: unwrap the envelope, surface errors through the notifier, and
// use the client's default timeout.
type RequestOptions struct {
	// SkipErrorHandling suppresses the error notification; the typed error
	// is still returned to the caller.
	SkipErrorHandling bool

	// SuccessMessage, when non-empty, is sent to the notifier after a
	// successful request.
	SuccessMessage string

	// Report marks a report-generation request: the extended report timeout
	// applies, and a deadline is surfaced as REPORT_GENERATION_TIMEOUT.
	Report bool

	// Timeout overrides the client default (and the report timeout) when
	// non-zero.
	Timeout time.Duration

	// OnProgress receives integer download percentages. Only invoked when
	// the response declares a total length; progress is never fabricated.
	OnProgress func(pct int)

	// Filename overrides Content-Disposition-derived naming for downloads.
	Filename string
}

func (o *RequestOptions) orDefault() *RequestOptions {
	if o == nil {
		return &RequestOptions{}
	}
	return o
}
