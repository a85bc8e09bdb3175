// Package notify is the user-notification collaborator. On the CLI the
// toast semantics of the web client map to leveled stderr lines: hard
// errors always carry the correlation id for support traceability.
package notify

import (
	"fmt"
	"io"
	"sync"
)

// Level is the notification severity.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
)

// Handle identifies a delivered notification for later dismissal.
type Handle int

// Notifier delivers user-visible notifications.
type Notifier interface {
	Notify(level Level, message string, correlationID string) Handle
	Dismiss(Handle)
}

// Writer is a Notifier that prints leveled lines to an io.Writer,
// typically stderr. Dismiss is a no-op: printed lines cannot be recalled.
type Writer struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool
	next  Handle
}

// NewWriter builds a Writer notifier. When quiet is set, only error and
// warning levels are printed.
func NewWriter(out io.Writer, quiet bool) *Writer {
	return &Writer{out: out, quiet: quiet}
}

// Notify prints one notification line.
func (w *Writer) Notify(level Level, message string, correlationID string) Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next++
	if w.quiet && level != LevelError && level != LevelWarning {
		return w.next
	}
	if correlationID != "" && level == LevelError {
		fmt.Fprintf(w.out, "[%s] %s (request %s)\n", level, message, correlationID)
	} else {
		fmt.Fprintf(w.out, "[%s] %s\n", level, message)
	}
	return w.next
}

// Dismiss is a no-op for printed notifications.
func (w *Writer) Dismiss(Handle) {}

// Silent is a Notifier that discards everything. Used in tests and by
// callers that opted out of error handling.
type Silent struct{}

func (Silent) Notify(Level, string, string) Handle { return 0 }
func (Silent) Dismiss(Handle)                      {}
