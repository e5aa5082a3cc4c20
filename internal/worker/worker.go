package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kpessa/dynamic-text-sub006/internal/logging"
	"github.com/kpessa/dynamic-text-sub006/internal/sandbox"
)

// envelope pairs a request with its caller-side plumbing.
type envelope struct {
	ctx   context.Context
	req   Request
	reply chan Response
}

// Worker owns one execution loop plus its cache and metrics. All state is
// confined to the loop goroutine; callers interact only through Do.
type Worker struct {
	id      string
	log     *logging.Logger
	cfg     sandbox.Config
	cache   *sandbox.Cache
	metrics *sandbox.Metrics
	host    *sandbox.Host

	requests      chan envelope
	notifications chan Notification
	quit          chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
}

// New creates and starts a worker.
func New(id string, cfg sandbox.Config, log *logging.Logger) *Worker {
	if log == nil {
		log = logging.NewNop()
	}
	wlog := &logging.Logger{Logger: log.Logger.Named("worker").With(zap.String("worker_id", id))}

	metrics := sandbox.NewMetrics()
	w := &Worker{
		id:            id,
		log:           wlog,
		cfg:           cfg,
		cache:         sandbox.NewCache(cfg.CacheCapacity),
		metrics:       metrics,
		host:          sandbox.NewHost(cfg, wlog, metrics),
		requests:      make(chan envelope, 16),
		notifications: make(chan Notification, 64),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	go w.run()
	return w
}

// ID returns the worker's identifier.
func (w *Worker) ID() string { return w.id }

// Notifications returns the out-of-band message stream. Delivery is
// best-effort: messages are dropped rather than blocking the loop.
func (w *Worker) Notifications() <-chan Notification { return w.notifications }

// Done is closed when the worker loop has exited, whether by Close or by a
// crash. The pool uses this to respawn.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Close stops the worker. In-flight work completes; queued requests are
// answered with a shutdown error.
func (w *Worker) Close() {
	w.closeOnce.Do(func() { close(w.quit) })
}

// Do submits a request and waits for its response. If ctx is cancelled
// while the request is in flight, the result is discarded and the
// execution is interrupted best-effort (the host watches the same ctx).
func (w *Worker) Do(ctx context.Context, req Request) Response {
	if ctx == nil {
		ctx = context.Background()
	}
	reply := make(chan Response, 1)

	select {
	case w.requests <- envelope{ctx: ctx, req: req, reply: reply}:
	case <-w.done:
		return Response{ID: req.ID, Success: false, Error: "worker stopped"}
	case <-ctx.Done():
		return Response{ID: req.ID, Success: false, Error: ctx.Err().Error()}
	}

	select {
	case resp := <-reply:
		return resp
	case <-ctx.Done():
		return Response{ID: req.ID, Success: false, Error: ctx.Err().Error()}
	case <-w.done:
		return Response{ID: req.ID, Success: false, Error: "worker stopped"}
	}
}

func (w *Worker) run() {
	defer close(w.done)
	defer func() {
		// Script failures never reach here; this is a true crash scenario.
		// The pool treats a closed done channel as a respawn condition.
		if r := recover(); r != nil {
			w.log.Error("worker loop crashed", zap.Any("panic", r))
		}
	}()

	w.log.Debug("worker started",
		zap.Duration("deadline", w.host.Deadline()),
		zap.Int("cache_capacity", w.cache.Stats().Capacity),
	)

	for {
		select {
		case <-w.quit:
			w.drain()
			return
		case env := <-w.requests:
			env.reply <- w.handle(env.ctx, env.req)
		}
	}
}

// drain answers queued requests after Close so no caller hangs.
func (w *Worker) drain() {
	for {
		select {
		case env := <-w.requests:
			env.reply <- Response{ID: env.req.ID, Success: false, Error: "worker stopped"}
		default:
			return
		}
	}
}

// handle dispatches one request. A panic in a handler is converted into an
// error response so the loop survives.
func (w *Worker) handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("request handler panic", zap.String("request_id", req.ID), zap.Any("panic", r))
			resp = Response{
				ID:        req.ID,
				Success:   false,
				ErrorKind: sandbox.ErrKindRuntime,
				Error:     fmt.Sprintf("internal worker failure: %v", r),
			}
		}
	}()

	switch req.Kind {
	case KindInitialize:
		return Response{ID: req.ID, Success: true}
	case KindExecute:
		if req.Execute == nil {
			return w.protocolError(req, "EXECUTE request missing payload")
		}
		return w.handleExecute(ctx, req.ID, req.Execute)
	case KindBatchExecute:
		if req.Batch == nil {
			return w.protocolError(req, "BATCH_EXECUTE request missing payload")
		}
		return w.handleBatch(ctx, req.ID, req.Batch)
	case KindValidate:
		if req.Validate == nil {
			return w.protocolError(req, "VALIDATE request missing payload")
		}
		return w.handleValidate(req.ID, req.Validate)
	case KindGetMetrics:
		snap := w.metrics.Snapshot(w.cache.Stats())
		return Response{ID: req.ID, Success: true, Metrics: &snap}
	case KindClearCache:
		w.cache.Clear()
		return Response{ID: req.ID, Success: true}
	default:
		return w.protocolError(req, fmt.Sprintf("unknown request kind: %q", req.Kind))
	}
}

func (w *Worker) protocolError(req Request, msg string) Response {
	w.log.Warn("protocol error", zap.String("request_id", req.ID), zap.String("reason", msg))
	return Response{
		ID:        req.ID,
		Success:   false,
		ErrorKind: sandbox.ErrKindProtocol,
		Error:     msg,
	}
}

// runOne takes a script through the full lifecycle: compile (through the
// cache), build surface, run under deadline.
func (w *Worker) runOne(ctx context.Context, source string, execCtx *sandbox.ExecutionContext) (*sandbox.ExecutionResult, []string) {
	tracker := sandbox.NewExecTracker()
	start := time.Now()

	tracker.To(sandbox.StateCompiling)

	if w.cfg.MaxSourceBytes > 0 && len(source) > w.cfg.MaxSourceBytes {
		tracker.To(sandbox.StateCompileFailed)
		res := sandbox.NewFailureResult(&sandbox.ScriptError{
			Kind:    sandbox.ErrKindCompile,
			Message: fmt.Sprintf("script exceeds maximum size of %d bytes", w.cfg.MaxSourceBytes),
		}, sandbox.StateCompileFailed, time.Since(start))
		w.metrics.RecordExecution(res)
		return res, nil
	}

	prog, serr := w.cache.GetOrCompile(source)
	if serr != nil {
		tracker.To(sandbox.StateCompileFailed)
		res := sandbox.NewFailureResult(serr, sandbox.StateCompileFailed, time.Since(start))
		w.metrics.RecordExecution(res)
		return res, nil
	}
	tracker.To(sandbox.StateCompiled)

	res, console := w.host.Run(ctx, prog, execCtx, tracker)
	w.metrics.RecordExecution(res)
	return res, console
}

func (w *Worker) handleExecute(ctx context.Context, id string, p *ExecutePayload) Response {
	res, console := w.runOne(ctx, p.Source, &p.Context)

	if len(console) > 0 {
		w.notify(Notification{
			Type:      NotificationConsoleLog,
			RequestID: id,
			Lines:     console,
		})
	}

	return Response{
		ID:        id,
		Success:   res.OK(),
		Execution: res,
		Console:   console,
		ErrorKind: res.ErrorKind,
		Error:     res.ErrorMessage,
		Stack:     res.StackSummary,
	}
}

// handleBatch runs entries independently: one entry's failure never
// prevents the others from running. Results keep submission order.
func (w *Worker) handleBatch(ctx context.Context, id string, p *BatchPayload) Response {
	start := time.Now()
	batch := &BatchResult{Results: make([]ItemResult, 0, len(p.Items))}

	for _, item := range p.Items {
		execCtx := item.Context
		res, console := w.runOne(ctx, item.Source, &execCtx)

		if len(console) > 0 {
			w.notify(Notification{
				Type:      NotificationConsoleLog,
				RequestID: id,
				ItemID:    item.ID,
				Lines:     console,
			})
		}

		if res.OK() {
			batch.SuccessCount++
		} else {
			batch.ErrorCount++
		}
		batch.Results = append(batch.Results, ItemResult{ItemID: item.ID, ExecutionResult: *res})
	}

	batch.TotalExecutionTimeMs = sandbox.DurationMs(time.Since(start))
	return Response{ID: id, Success: true, Batch: batch}
}

func (w *Worker) handleValidate(id string, p *ValidatePayload) Response {
	result := &ValidationResult{Valid: true, Errors: []ValidationError{}}
	if serr := sandbox.Validate(p.Source); serr != nil {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Message: serr.Message,
			Line:    serr.Line,
			Column:  serr.Column,
		})
	}
	return Response{ID: id, Success: true, Valid: result}
}

// notify delivers an out-of-band message without ever blocking the loop.
func (w *Worker) notify(n Notification) {
	select {
	case w.notifications <- n:
	default:
		w.log.Debug("notification dropped", zap.String("request_id", n.RequestID))
	}
}

// MetricsSnapshot returns this worker's counters and cache stats.
func (w *Worker) MetricsSnapshot() sandbox.MetricsSnapshot {
	return w.metrics.Snapshot(w.cache.Stats())
}
