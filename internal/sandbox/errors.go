package sandbox

import (
	"fmt"
	"regexp"
	"strconv"
)

// ErrorKind classifies script-related failures. All kinds are returned as
// data, never as faults that terminate the worker.
type ErrorKind string

const (
	ErrKindCompile         ErrorKind = "compile_error"
	ErrKindCapabilityBuild ErrorKind = "capability_build_error"
	ErrKindRuntime         ErrorKind = "runtime_error"
	ErrKindTimeout         ErrorKind = "timeout_error"
	ErrKindProtocol        ErrorKind = "protocol_error"
)

// ScriptError is a structured script failure with an optional source
// location (compile errors) and stack summary (runtime errors).
type ScriptError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Line    int       `json:"line,omitempty"`
	Column  int       `json:"column,omitempty"`
	Stack   string    `json:"stack,omitempty"`
}

func (e *ScriptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at %d:%d: %s", e.Kind, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// goja syntax errors embed the position as "Line N:M" in the message.
var positionPattern = regexp.MustCompile(`Line (\d+):(\d+)`)

// newCompileError wraps a goja compilation failure, extracting the source
// position when present.
func newCompileError(err error) *ScriptError {
	se := &ScriptError{
		Kind:    ErrKindCompile,
		Message: err.Error(),
	}
	if m := positionPattern.FindStringSubmatch(se.Message); m != nil {
		se.Line, _ = strconv.Atoi(m[1])
		se.Column, _ = strconv.Atoi(m[2])
	}
	return se
}
