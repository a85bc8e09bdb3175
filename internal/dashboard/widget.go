// Package dashboard implements the widget-store pattern: every dashboard
// widget loads independently, fails independently, and falls back to a safe
// structurally-valid default. One widget's failure never corrupts a
// sibling's state or blocks the rest of the dashboard.
package dashboard

import (
	"sync"
	"time"

	"github.com/bistrohq/bistroctl/internal/envelope"
)

// Widget is one independently loaded, independently failable unit of
// dashboard state. Data is always a safe default shape, never nil/absent.
// The cell is owned exclusively by one store and mutated only by its own
// load action.
type Widget[T any] struct {
	mu          sync.Mutex
	defaultData func() T
	data        T
	err         *envelope.APIError
	loading     bool
	lastUpdated time.Time
}

// NewWidget builds a widget initialised to its safe default.
func NewWidget[T any](defaultData func() T) *Widget[T] {
	return &Widget[T]{
		defaultData: defaultData,
		data:        defaultData(),
	}
}

// Data returns the widget's current payload (never nil for slice/struct
// defaults).
func (w *Widget[T]) Data() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.data
}

// Err returns the widget's recorded error, or nil.
func (w *Widget[T]) Err() *envelope.APIError {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Loading reports whether a load is in progress.
func (w *Widget[T]) Loading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loading
}

// LastUpdated returns the time of the last successful load (zero when the
// widget has never loaded).
func (w *Widget[T]) LastUpdated() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUpdated
}

// FeatureUnavailable reports whether the widget degraded on a plan gate.
func (w *Widget[T]) FeatureUnavailable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err != nil && w.err.PlanGated()
}

// begin marks the widget loading.
func (w *Widget[T]) begin() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loading = true
}

// succeed commits the extracted business payload, clears the error, and
// stamps lastUpdated.
func (w *Widget[T]) succeed(data T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = data
	w.err = nil
	w.lastUpdated = time.Now()
	w.loading = false
}

// fail records the structured error and resets data to the safe default.
// Plan-gating failures degrade the same way; the caller distinguishes them
// via FeatureUnavailable. Loading is always cleared, whatever the outcome.
func (w *Widget[T]) fail(err error) {
	apiErr, ok := envelope.AsAPIError(err)
	if !ok {
		apiErr = envelope.WrapAPIError(envelope.CodeNetwork, err.Error(), 0, "", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = apiErr
	w.data = w.defaultData()
	w.loading = false
}

// Reset restores the widget to its initial state.
func (w *Widget[T]) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = w.defaultData()
	w.err = nil
	w.loading = false
	w.lastUpdated = time.Time{}
}

// Load wraps one load attempt with the begin/succeed/fail lifecycle.
// load returns the extracted business payload, never the envelope.
func (w *Widget[T]) Load(load func() (T, error)) error {
	w.begin()
	data, err := load()
	if err != nil {
		w.fail(err)
		return err
	}
	w.succeed(data)
	return nil
}
