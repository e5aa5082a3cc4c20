package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kpessa/dynamic-text-sub006/internal/logging"
	"github.com/kpessa/dynamic-text-sub006/internal/sandbox"
)

// DefaultPoolSize is the worker count when none is configured.
const DefaultPoolSize = 4

// ErrPoolClosed is returned for requests submitted after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

// Pool routes requests across a fixed number of workers. Each worker owns
// an independent cache/metrics pair; the pool merges metrics on
// introspection and respawns workers whose loops die.
type Pool struct {
	cfg  sandbox.Config
	log  *logging.Logger
	size int

	mu      sync.RWMutex
	workers []*Worker
	closed  bool

	next          atomic.Uint64
	notifications chan Notification
	quit          chan struct{}
	spawned       atomic.Uint64
}

// NewPool creates a pool of size workers and starts them.
func NewPool(cfg sandbox.Config, size int, log *logging.Logger) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if log == nil {
		log = logging.NewNop()
	}

	p := &Pool{
		cfg:           cfg,
		log:           log,
		size:          size,
		workers:       make([]*Worker, size),
		notifications: make(chan Notification, 128),
		quit:          make(chan struct{}),
	}

	for i := 0; i < size; i++ {
		p.workers[i] = p.spawn()
		go p.supervise(i, p.workers[i])
	}
	return p
}

func (p *Pool) spawn() *Worker {
	n := p.spawned.Add(1)
	return New(fmt.Sprintf("w%d", n), p.cfg, p.log)
}

// supervise forwards a worker's notifications and replaces the worker if
// its loop exits outside of pool shutdown. A dead worker is a respawn
// condition, never an error surfaced to callers as data loss.
func (p *Pool) supervise(slot int, w *Worker) {
	for {
		select {
		case n := <-w.Notifications():
			select {
			case p.notifications <- n:
			default:
			}
		case <-w.Done():
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				return
			}
			p.log.Warn("worker died, respawning",
				zap.String("worker_id", w.ID()),
				zap.Int("slot", slot),
			)
			replacement := p.spawn()
			p.workers[slot] = replacement
			p.mu.Unlock()

			w = replacement
		case <-p.quit:
			return
		}
	}
}

// Do routes a request to the next worker round-robin.
func (p *Pool) Do(ctx context.Context, req Request) Response {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return Response{ID: req.ID, Success: false, Error: ErrPoolClosed.Error()}
	}
	w := p.workers[p.next.Add(1)%uint64(p.size)]
	p.mu.RUnlock()

	return w.Do(ctx, req)
}

// Notifications returns the merged out-of-band stream from all workers.
func (p *Pool) Notifications() <-chan Notification { return p.notifications }

// Size returns the worker count.
func (p *Pool) Size() int { return p.size }

// Metrics gathers and merges every worker's snapshot.
func (p *Pool) Metrics(ctx context.Context) sandbox.MetricsSnapshot {
	p.mu.RLock()
	workers := append([]*Worker{}, p.workers...)
	p.mu.RUnlock()

	snaps := make([]sandbox.MetricsSnapshot, 0, len(workers))
	for _, w := range workers {
		resp := w.Do(ctx, Request{ID: uuid.NewString(), Kind: KindGetMetrics})
		if resp.Success && resp.Metrics != nil {
			snaps = append(snaps, *resp.Metrics)
		}
	}
	return sandbox.MergeSnapshots(snaps...)
}

// ClearCache clears every worker's compilation cache.
func (p *Pool) ClearCache(ctx context.Context) {
	p.mu.RLock()
	workers := append([]*Worker{}, p.workers...)
	p.mu.RUnlock()

	for _, w := range workers {
		w.Do(ctx, Request{ID: uuid.NewString(), Kind: KindClearCache})
	}
}

// Close stops all workers. Safe to call once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	workers := append([]*Worker{}, p.workers...)
	p.mu.Unlock()

	close(p.quit)
	for _, w := range workers {
		w.Close()
	}
}
