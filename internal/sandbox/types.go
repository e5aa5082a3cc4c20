package sandbox

import (
	"time"
)

// DefaultDeadline bounds a single execution's wall-clock time.
const DefaultDeadline = 5 * time.Second

// DefaultCacheCapacity bounds the compilation cache.
const DefaultCacheCapacity = 100

// Config defines sandbox configuration.
type Config struct {
	Deadline       time.Duration // Per-execution wall-clock limit
	CacheCapacity  int           // Compiled program cache size
	MaxSourceBytes int           // Reject sources larger than this (0 = no limit)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Deadline:       DefaultDeadline,
		CacheCapacity:  DefaultCacheCapacity,
		MaxSourceBytes: 64 * 1024,
	}
}

// ExecutionContext carries the named inputs a script may read. It is owned
// by the caller for the duration of one execution and never retained.
type ExecutionContext struct {
	// Values maps keys to numeric or string context values.
	Values map[string]any `json:"values"`
	// Objects maps keys to object-valued entries, consulted by getValue
	// after Values.
	Objects map[string]map[string]any `json:"objects,omitempty"`
	// Extensions are author-defined functions compiled at surface build
	// time and bound so their `this` resolves to the context accessor.
	Extensions []Extension `json:"extensions,omitempty"`
}

// Extension is an author-defined function definition.
type Extension struct {
	Name          string `json:"name"`
	Body          string `json:"body"`
	AuthorDefined bool   `json:"authorDefined,omitempty"`
}

// ExecutionResult is the outcome of one execution. ExecutionTimeMs is set on
// every path, success or failure.
type ExecutionResult struct {
	Value           any       `json:"value,omitempty"`
	ErrorKind       ErrorKind `json:"errorKind,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	StackSummary    string    `json:"stackSummary,omitempty"`
	Line            int       `json:"line,omitempty"`
	Column          int       `json:"column,omitempty"`
	ExecutionTimeMs float64   `json:"executionTimeMs"`
	State           ExecState `json:"state"`
}

// OK reports whether the execution succeeded.
func (r *ExecutionResult) OK() bool {
	return r.ErrorKind == ""
}

// NewFailureResult builds a failure result from a script error.
func NewFailureResult(err *ScriptError, state ExecState, elapsed time.Duration) *ExecutionResult {
	return &ExecutionResult{
		ErrorKind:       err.Kind,
		ErrorMessage:    err.Message,
		StackSummary:    err.Stack,
		Line:            err.Line,
		Column:          err.Column,
		ExecutionTimeMs: DurationMs(elapsed),
		State:           state,
	}
}

// DurationMs converts a duration to fractional milliseconds.
func DurationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
