package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/kpessa/dynamic-text-sub006/internal/logging"
)

// Interrupt values distinguish the two reasons an in-flight script is
// positively terminated.
const (
	timeoutInterrupt = "deadline exceeded"
	cancelInterrupt  = "execution cancelled"
)

// Host runs compiled programs against freshly built capability surfaces.
// Every run gets its own runtime; nothing survives between executions
// except the compiled program itself.
type Host struct {
	log      *logging.Logger
	builder  *SurfaceBuilder
	metrics  *Metrics
	deadline time.Duration
}

// NewHost creates a host enforcing cfg.Deadline per execution. metrics may
// be nil.
func NewHost(cfg Config, log *logging.Logger, metrics *Metrics) *Host {
	if log == nil {
		log = logging.NewNop()
	}
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Host{
		log:      log,
		builder:  NewSurfaceBuilder(log),
		metrics:  metrics,
		deadline: deadline,
	}
}

// Deadline returns the per-execution wall-clock limit.
func (h *Host) Deadline() time.Duration {
	return h.deadline
}

// Run executes prog against a fresh capability surface built from execCtx.
// Console output is returned separately from the result and is delivered
// even on failure paths. A throwing or timed-out script is a normal
// outcome: the only way Run reports it is through the result's error
// fields. tracker must be in the compiled state.
func (h *Host) Run(ctx context.Context, prog *goja.Program, execCtx *ExecutionContext, tracker *ExecTracker) (res *ExecutionResult, console []string) {
	start := time.Now()

	defer func() {
		// A panic here means a host bug or resource exhaustion inside the
		// interpreter; the worker must survive it.
		if r := recover(); r != nil {
			h.log.Error("execution host panic", zap.Any("panic", r))
			if !tracker.State().Terminal() {
				tracker.To(StateFailed)
			}
			res = NewFailureResult(&ScriptError{
				Kind:    ErrKindRuntime,
				Message: fmt.Sprintf("internal execution failure: %v", r),
			}, StateFailed, time.Since(start))
		}
	}()

	vm := goja.New()
	vm.SetMaxCallStackSize(1024)

	surface := h.builder.Build(vm, execCtx)
	if h.metrics != nil && surface.OmittedExtensions > 0 {
		h.metrics.AddOmittedExtensions(surface.OmittedExtensions)
	}

	tracker.To(StateRunning)

	timer := time.AfterFunc(h.deadline, func() {
		vm.Interrupt(timeoutInterrupt)
	})
	defer timer.Stop()

	watchDone := make(chan struct{})
	defer close(watchDone)
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				vm.Interrupt(cancelInterrupt)
			case <-watchDone:
			}
		}()
	}

	fnVal, err := vm.RunProgram(prog)
	var ret goja.Value
	if err == nil {
		fn, ok := goja.AssertFunction(fnVal)
		if !ok {
			err = errors.New("script body did not lower to a callable")
		} else {
			ret, err = fn(goja.Undefined())
		}
	}

	elapsed := time.Since(start)
	console = surface.Console.Lines()

	if err != nil {
		return h.classify(err, tracker, elapsed), console
	}

	tracker.To(StateSucceeded)
	return &ExecutionResult{
		Value:           exportValue(ret),
		ExecutionTimeMs: DurationMs(elapsed),
		State:           StateSucceeded,
	}, console
}

// classify converts an interpreter error into a structured result,
// distinguishing timeouts from ordinary runtime failures.
func (h *Host) classify(err error, tracker *ExecTracker, elapsed time.Duration) *ExecutionResult {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if fmt.Sprint(interrupted.Value()) == timeoutInterrupt {
			tracker.To(StateTimedOut)
			return NewFailureResult(&ScriptError{
				Kind:    ErrKindTimeout,
				Message: fmt.Sprintf("execution exceeded deadline of %s", h.deadline),
			}, StateTimedOut, elapsed)
		}
		tracker.To(StateFailed)
		return NewFailureResult(&ScriptError{
			Kind:    ErrKindRuntime,
			Message: cancelInterrupt,
		}, StateFailed, elapsed)
	}

	tracker.To(StateFailed)

	var exc *goja.Exception
	if errors.As(err, &exc) {
		full := exc.String()
		message := full
		if idx := strings.IndexByte(full, '\n'); idx >= 0 {
			message = full[:idx]
		}
		return NewFailureResult(&ScriptError{
			Kind:    ErrKindRuntime,
			Message: message,
			Stack:   stackSummary(full),
		}, StateFailed, elapsed)
	}

	return NewFailureResult(&ScriptError{
		Kind:    ErrKindRuntime,
		Message: err.Error(),
	}, StateFailed, elapsed)
}

// stackSummary keeps the first few frames of an exception trace.
func stackSummary(full string) string {
	lines := strings.Split(full, "\n")
	if len(lines) > 6 {
		lines = lines[:6]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
