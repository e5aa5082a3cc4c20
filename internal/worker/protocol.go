package worker

import (
	"github.com/kpessa/dynamic-text-sub006/internal/sandbox"
)

// Kind identifies a request type. Unknown kinds are protocol errors.
type Kind string

const (
	KindInitialize   Kind = "INITIALIZE"
	KindExecute      Kind = "EXECUTE"
	KindBatchExecute Kind = "BATCH_EXECUTE"
	KindValidate     Kind = "VALIDATE"
	KindGetMetrics   Kind = "GET_METRICS"
	KindClearCache   Kind = "CLEAR_CACHE"
)

// Request is one message to a worker. Exactly one payload field matching
// Kind is set.
type Request struct {
	ID       string           `json:"id"`
	Kind     Kind             `json:"kind"`
	Execute  *ExecutePayload  `json:"execute,omitempty"`
	Batch    *BatchPayload    `json:"batch,omitempty"`
	Validate *ValidatePayload `json:"validate,omitempty"`
}

// ExecutePayload carries a single script and its context.
type ExecutePayload struct {
	Source  string                   `json:"source"`
	Context sandbox.ExecutionContext `json:"context"`
}

// BatchItem is one entry of a batch request.
type BatchItem struct {
	ID      string                   `json:"id"`
	Source  string                   `json:"source"`
	Context sandbox.ExecutionContext `json:"context"`
}

// BatchPayload carries independent script+context pairs.
type BatchPayload struct {
	Items []BatchItem `json:"items"`
}

// ValidatePayload carries a script to compile without executing.
type ValidatePayload struct {
	Source string `json:"source"`
}

// Response answers one request. Success reflects the script outcome for
// EXECUTE and the protocol outcome otherwise; every request id receives
// exactly one response.
type Response struct {
	ID        string                    `json:"id"`
	Success   bool                      `json:"success"`
	Execution *sandbox.ExecutionResult  `json:"result,omitempty"`
	Batch     *BatchResult              `json:"batchResult,omitempty"`
	Valid     *ValidationResult         `json:"validation,omitempty"`
	Metrics   *sandbox.MetricsSnapshot  `json:"metrics,omitempty"`
	Console   []string                  `json:"console,omitempty"`
	ErrorKind sandbox.ErrorKind         `json:"errorKind,omitempty"`
	Error     string                    `json:"error,omitempty"`
	Stack     string                    `json:"stack,omitempty"`
}

// ItemResult tags an execution result with the batch item that produced it.
type ItemResult struct {
	ItemID string `json:"itemId"`
	sandbox.ExecutionResult
}

// BatchResult aggregates per-item results in submission order.
type BatchResult struct {
	Results              []ItemResult `json:"results"`
	SuccessCount         int          `json:"successCount"`
	ErrorCount           int          `json:"errorCount"`
	TotalExecutionTimeMs float64      `json:"totalExecutionTimeMs"`
}

// ValidationError reports one syntax error with a source position when
// available.
type ValidationError struct {
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationResult is the outcome of a compile-only check.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors"`
}

// NotificationType identifies an out-of-band message from a worker.
type NotificationType string

// NotificationConsoleLog carries console output captured during a run.
const NotificationConsoleLog NotificationType = "CONSOLE_LOG"

// Notification is an out-of-band message, never a response to a request.
type Notification struct {
	Type      NotificationType `json:"type"`
	RequestID string           `json:"requestId"`
	ItemID    string           `json:"itemId,omitempty"`
	Lines     []string         `json:"lines"`
}
