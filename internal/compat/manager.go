package compat

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bistrohq/bistroctl/internal/envelope"
)

const (
	// errorRingCapacity bounds the recent-error buffer.
	errorRingCapacity = 100
	// cleanupStatsThreshold and cleanupErrorsThreshold drive NeedsCleanup.
	cleanupStatsThreshold  = 1000
	cleanupErrorsThreshold = 50
	// recommendThreshold is the per-format conversion count above which the
	// report flags an endpoint for migration.
	recommendThreshold = 10
)

// Options configures a Manager.
type Options struct {
	EnableLogging    bool
	EnableStats      bool
	StrictValidation bool
}

// Manager orchestrates classification and normalization per request and
// tracks conversion statistics for observability. It is an explicitly
// constructed, injected instance (not a package global); tests create a
// fresh Manager per run via NewManager.
//
// Processing never lets an internal failure escape: every code path returns
// a structured envelope.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	stats  map[string]int
	errors []ConversionError
}

// ConversionError records one failed conversion for the recent-error buffer.
type ConversionError struct {
	Time      time.Time `json:"time"`
	SourceURL string    `json:"sourceUrl,omitempty"`
	Message   string    `json:"message"`
}

// Report aggregates conversion activity with heuristic recommendations.
type Report struct {
	Generated        time.Time         `json:"generated"`
	TotalConversions int               `json:"totalConversions"`
	ByFormat         map[FormatTag]int `json:"byFormat"`
	ByEndpoint       map[string]int    `json:"byEndpoint"`
	RecentErrorCount int               `json:"recentErrorCount"`
	Recommendations  []string          `json:"recommendations"`
}

// NewManager builds a Manager. logger may be nil, in which case the default
// slog logger is used.
func NewManager(opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts:   opts,
		logger: logger,
		stats:  make(map[string]int),
	}
}

// Process classifies body and returns a canonical envelope. Canonical input
// passes through without re-validation; binary input is wrapped without any
// parsing; legacy input is normalized. Any internal failure is caught,
// recorded, and returned as a COMPATIBILITY_PROCESSING_ERROR envelope.
func (m *Manager) Process(body any, sourceURL string) (env *envelope.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("compatibility processing panicked: %v", r)
			m.recordError(sourceURL, msg)
			env = errorEnvelope(envelope.CodeCompatProcessing, msg, nil, sourceURL)
		}
	}()

	cls := Classify(body)

	if cls.Binary {
		return BinaryEnvelope(body)
	}

	if cls.Canonical {
		return envelopeFromMap(body.(map[string]any))
	}

	// Legacy or unrecognized from here on.
	m.countConversion(cls.Tag, sourceURL)

	if m.opts.StrictValidation && cls.Legacy {
		if err := validateStructure(body); err != nil {
			msg := fmt.Sprintf("strict validation rejected response: %v", err)
			m.recordError(sourceURL, msg)
			return errorEnvelope(envelope.CodeNormalization, msg, nil, sourceURL)
		}
	}

	env = Normalize(body, sourceURL)
	if !env.Success {
		m.recordError(sourceURL, env.Error.Message)
	}
	if m.opts.EnableLogging {
		m.logger.Debug("normalized legacy response",
			"format", string(cls.Tag),
			"url", sourceURL,
			"requestId", env.Meta.RequestID,
			"success", env.Success)
	}
	return env
}

// countConversion increments the (formatTag, sourceURL) counter when stats
// are enabled.
func (m *Manager) countConversion(tag FormatTag, sourceURL string) {
	if !m.opts.EnableStats {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[statKey(tag, sourceURL)]++
}

func statKey(tag FormatTag, sourceURL string) string {
	return string(tag) + ":" + sourceURL
}

// recordError appends to the bounded recent-error ring buffer.
func (m *Manager) recordError(sourceURL, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, ConversionError{
		Time:      time.Now().UTC(),
		SourceURL: sourceURL,
		Message:   message,
	})
	if len(m.errors) > errorRingCapacity {
		m.errors = m.errors[len(m.errors)-errorRingCapacity:]
	}
	if m.opts.EnableLogging {
		m.logger.Warn("conversion error", "url", sourceURL, "message", message)
	}
}

// ConversionStats returns a copy of the per-(format, endpoint) counters.
func (m *Manager) ConversionStats() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.stats))
	for k, v := range m.stats {
		out[k] = v
	}
	return out
}

// RecentErrors returns up to limit of the most recent conversion errors,
// newest last. limit <= 0 returns all buffered errors.
func (m *Manager) RecentErrors(limit int) []ConversionError {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.errors)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]ConversionError, n)
	copy(out, m.errors[len(m.errors)-n:])
	return out
}

// GenerateReport aggregates the counters and flags legacy formats whose
// conversion counts exceed the recommendation threshold.
func (m *Manager) GenerateReport() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	rep := Report{
		Generated:        time.Now().UTC(),
		ByFormat:         make(map[FormatTag]int),
		ByEndpoint:       make(map[string]int),
		RecentErrorCount: len(m.errors),
	}
	for key, count := range m.stats {
		tag, url := splitStatKey(key)
		rep.TotalConversions += count
		rep.ByFormat[tag] += count
		if url != "" {
			rep.ByEndpoint[url] += count
		}
	}

	tags := make([]FormatTag, 0, len(rep.ByFormat))
	for tag := range rep.ByFormat {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	for _, tag := range tags {
		if rep.ByFormat[tag] > recommendThreshold {
			rep.Recommendations = append(rep.Recommendations, fmt.Sprintf(
				"%d responses converted from %q; migrate those endpoints to the canonical envelope",
				rep.ByFormat[tag], tag))
		}
	}
	if rep.RecentErrorCount > cleanupErrorsThreshold {
		rep.Recommendations = append(rep.Recommendations,
			"conversion error volume is high; inspect recent errors and clear logs")
	}
	return rep
}

// splitStatKey undoes statKey. The url part may itself contain colons, so
// only the first separator is significant.
func splitStatKey(key string) (FormatTag, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return FormatTag(key[:i]), key[i+1:]
		}
	}
	return FormatTag(key), ""
}

// ClearLogs drops all counters and buffered errors.
func (m *Manager) ClearLogs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = make(map[string]int)
	m.errors = nil
}

// NeedsCleanup reports whether the tracked state has grown past its
// thresholds and should be cleared.
func (m *Manager) NeedsCleanup() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stats) > cleanupStatsThreshold || len(m.errors) > cleanupErrorsThreshold
}
