// Package orchestrator fronts the worker pool for the transport layers.
// It assigns request ids, routes work, folds worker-transport failures into
// execution results, and fans out worker notifications to subscribers.
package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kpessa/dynamic-text-sub006/internal/logging"
	"github.com/kpessa/dynamic-text-sub006/internal/monitoring"
	"github.com/kpessa/dynamic-text-sub006/internal/sandbox"
	"github.com/kpessa/dynamic-text-sub006/internal/worker"
)

// ErrClosed is returned for calls after Close.
var ErrClosed = errors.New("orchestrator is closed")

// Outcome is one execution's result together with its captured console
// output and the id assigned to the request.
type Outcome struct {
	RequestID string                   `json:"requestId"`
	Result    *sandbox.ExecutionResult `json:"result"`
	Console   []string                 `json:"console,omitempty"`
}

// Orchestrator owns the worker pool and the notification fan-out.
type Orchestrator struct {
	log     *logging.Logger
	pool    *worker.Pool
	metrics *monitoring.Metrics

	mu     sync.Mutex
	subs   map[chan worker.Notification]struct{}
	closed bool
	quit   chan struct{}
}

// New creates an orchestrator with a started pool. metrics may be nil.
func New(cfg sandbox.Config, poolSize int, log *logging.Logger, metrics *monitoring.Metrics) *Orchestrator {
	if log == nil {
		log = logging.NewNop()
	}
	o := &Orchestrator{
		log:     log.Named("orchestrator"),
		pool:    worker.NewPool(cfg, poolSize, log),
		metrics: metrics,
		subs:    make(map[chan worker.Notification]struct{}),
		quit:    make(chan struct{}),
	}
	go o.fanout()
	return o
}

// fanout copies pool notifications to every subscriber, dropping messages
// for slow ones.
func (o *Orchestrator) fanout() {
	for {
		select {
		case n := <-o.pool.Notifications():
			o.mu.Lock()
			for ch := range o.subs {
				select {
				case ch <- n:
				default:
				}
			}
			o.mu.Unlock()
		case <-o.quit:
			return
		}
	}
}

// Subscribe returns a channel of worker notifications and a cancel func.
// The channel is closed on cancel or orchestrator shutdown.
func (o *Orchestrator) Subscribe() (<-chan worker.Notification, func()) {
	ch := make(chan worker.Notification, 32)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	o.subs[ch] = struct{}{}
	o.mu.Unlock()

	cancel := func() {
		o.mu.Lock()
		if _, ok := o.subs[ch]; ok {
			delete(o.subs, ch)
			close(ch)
		}
		o.mu.Unlock()
	}
	return ch, cancel
}

// Execute runs one script against its context and returns the outcome.
// Worker transport failures surface as an error; script failures are data
// in the result.
func (o *Orchestrator) Execute(ctx context.Context, source string, execCtx sandbox.ExecutionContext) (*Outcome, error) {
	return o.ExecuteAs(ctx, uuid.NewString(), source, execCtx)
}

// ExecuteAs is Execute with a caller-chosen request id, so streaming
// transports can correlate notifications before the result arrives.
func (o *Orchestrator) ExecuteAs(ctx context.Context, id, source string, execCtx sandbox.ExecutionContext) (*Outcome, error) {
	if id == "" {
		id = uuid.NewString()
	}
	resp := o.pool.Do(ctx, worker.Request{
		ID:   id,
		Kind: worker.KindExecute,
		Execute: &worker.ExecutePayload{
			Source:  source,
			Context: execCtx,
		},
	})
	if resp.Execution == nil {
		o.log.Error("execute transport failure",
			zap.String("request_id", id),
			zap.String("error", resp.Error),
		)
		return nil, errors.New(resp.Error)
	}

	if o.metrics != nil {
		o.metrics.RecordExecution(resp.Execution)
	}
	return &Outcome{RequestID: id, Result: resp.Execution, Console: resp.Console}, nil
}

// BatchExecute runs the items independently and returns per-item results in
// submission order.
func (o *Orchestrator) BatchExecute(ctx context.Context, items []worker.BatchItem) (*worker.BatchResult, error) {
	id := uuid.NewString()
	resp := o.pool.Do(ctx, worker.Request{
		ID:    id,
		Kind:  worker.KindBatchExecute,
		Batch: &worker.BatchPayload{Items: items},
	})
	if resp.Batch == nil {
		o.log.Error("batch transport failure",
			zap.String("request_id", id),
			zap.String("error", resp.Error),
		)
		return nil, errors.New(resp.Error)
	}

	if o.metrics != nil {
		o.metrics.RecordBatch(len(items))
		for i := range resp.Batch.Results {
			o.metrics.RecordExecution(&resp.Batch.Results[i].ExecutionResult)
		}
	}
	return resp.Batch, nil
}

// Validate compiles source without executing it.
func (o *Orchestrator) Validate(ctx context.Context, source string) (*worker.ValidationResult, error) {
	resp := o.pool.Do(ctx, worker.Request{
		ID:       uuid.NewString(),
		Kind:     worker.KindValidate,
		Validate: &worker.ValidatePayload{Source: source},
	})
	if resp.Valid == nil {
		return nil, errors.New(resp.Error)
	}
	if o.metrics != nil {
		o.metrics.RecordValidation(resp.Valid.Valid)
	}
	return resp.Valid, nil
}

// Metrics returns the merged pool snapshot and refreshes the exported
// cache gauges.
func (o *Orchestrator) Metrics(ctx context.Context) sandbox.MetricsSnapshot {
	snap := o.pool.Metrics(ctx)
	if o.metrics != nil {
		o.metrics.UpdateFromSnapshot(snap)
	}
	return snap
}

// ClearCache clears every worker's compilation cache.
func (o *Orchestrator) ClearCache(ctx context.Context) {
	o.pool.ClearCache(ctx)
	o.log.Info("compilation caches cleared")
}

// PoolSize returns the number of workers.
func (o *Orchestrator) PoolSize() int {
	return o.pool.Size()
}

// Close stops the pool and closes all subscriber channels.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	for ch := range o.subs {
		delete(o.subs, ch)
		close(ch)
	}
	o.mu.Unlock()

	close(o.quit)
	o.pool.Close()
}
