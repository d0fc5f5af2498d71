package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/k4lantar4/remnabot/pkg/composables"
)

var (
	// ErrQueueFull means the bounded-time put timed out; safe to retry with backoff.
	ErrQueueFull = errors.New("dispatch: queue full")
	// ErrNotRunning means the tenant's processor is not accepting work.
	ErrNotRunning = errors.New("dispatch: processor not running")
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// Entry is one accepted update, owned by a single tenant's queue.
type Entry struct {
	Update     *Update
	EnqueuedAt time.Time
}

type QueueOptions struct {
	TenantID       uuid.UUID
	Size           int
	Workers        int
	EnqueueTimeout time.Duration
	DrainTimeout   time.Duration
	JoinTimeout    time.Duration
	Dispatcher     Dispatcher
	Logger         *logrus.Entry
}

// Queue is a bounded FIFO queue paired with a fixed-size worker pool, one
// instance per tenant. Workers invoke the tenant dispatcher; a failing update
// never stops the worker or leaks into the next item.
type Queue struct {
	tenantID       uuid.UUID
	size           int
	workers        int
	enqueueTimeout time.Duration
	drainTimeout   time.Duration
	joinTimeout    time.Duration
	dispatcher     Dispatcher
	log            *logrus.Entry

	mu      sync.Mutex
	state   State
	entries chan *Entry
	wg      sync.WaitGroup

	pending atomic.Int64 // accepted but not yet fully processed, for drain accounting
}

func NewQueue(opts QueueOptions) *Queue {
	if opts.Size <= 0 {
		opts.Size = 128
	}
	if opts.Workers < 0 {
		opts.Workers = 0
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = 500 * time.Millisecond
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Queue{
		tenantID:       opts.TenantID,
		size:           opts.Size,
		workers:        opts.Workers,
		enqueueTimeout: opts.EnqueueTimeout,
		drainTimeout:   opts.DrainTimeout,
		joinTimeout:    opts.JoinTimeout,
		dispatcher:     opts.Dispatcher,
		log:            log.WithField("tenant", opts.TenantID.String()),
	}
}

// Start allocates a fresh queue and spawns the worker pool. Starting an
// already-running queue is a no-op. Workers==0 is a legal degraded mode: the
// queue accepts entries but never drains them.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != StateStopped {
		return
	}
	q.state = StateStarting
	q.entries = make(chan *Entry, q.size)
	// Workers outlive the call that started them. Keep the caller's values
	// (pool, config) but never its cancellation: a queue registered from a
	// request must not die with that request.
	workerCtx := context.WithoutCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(workerCtx, i, q.entries)
	}
	q.state = StateRunning
	q.log.WithFields(logrus.Fields{
		"workers": q.workers,
		"size":    q.size,
	}).Info("update queue started")
}

// Enqueue attempts a bounded-time put. It never blocks the caller beyond the
// configured enqueue timeout.
func (q *Queue) Enqueue(upd *Update) error {
	q.mu.Lock()
	if q.state != StateRunning {
		q.mu.Unlock()
		return ErrNotRunning
	}
	ch := q.entries
	q.mu.Unlock()

	entry := &Entry{Update: upd, EnqueuedAt: time.Now()}
	q.pending.Add(1)

	timer := time.NewTimer(q.enqueueTimeout)
	defer timer.Stop()
	select {
	case ch <- entry:
		queueDepth.WithLabelValues(q.tenantID.String()).Set(float64(len(ch)))
		return nil
	case <-timer.C:
		q.pending.Add(-1)
		droppedTotal.WithLabelValues(q.tenantID.String()).Inc()
		return ErrQueueFull
	}
}

// Len reports the number of buffered entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.entries == nil {
		return 0
	}
	return len(q.entries)
}

func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Pending reports entries accepted but not yet fully processed.
func (q *Queue) Pending() int64 {
	return q.pending.Load()
}

// Stop flips the queue to stopping so Enqueue starts rejecting, waits for the
// backlog to drain within the drain timeout, then signals and joins the
// workers. Drain and join expiries are logged, never escalated: a partial
// drain is an accepted degraded outcome. Stopping twice is a no-op.
func (q *Queue) Stop(ctx context.Context) {
	q.mu.Lock()
	if q.state != StateRunning {
		q.mu.Unlock()
		return
	}
	q.state = StateStopping
	ch := q.entries
	q.mu.Unlock()

	if !q.awaitDrain(ctx) {
		q.log.WithFields(logrus.Fields{
			"pending": q.pending.Load(),
			"depth":   len(ch),
		}).Warn("queue drain timed out, proceeding with shutdown")
	}

	// One shutdown sentinel per worker; a worker exits on the first one it sees.
	for i := 0; i < q.workers; i++ {
		timer := time.NewTimer(q.enqueueTimeout)
		select {
		case ch <- nil:
		case <-timer.C:
			q.log.Warn("queue full, worker shutdown sentinel dropped")
		}
		timer.Stop()
	}

	if !q.awaitWorkers() {
		q.log.Warn("workers did not exit before join timeout")
	}

	q.mu.Lock()
	q.state = StateStopped
	q.mu.Unlock()
	queueDepth.DeleteLabelValues(q.tenantID.String())
	q.log.Info("update queue stopped")
}

func (q *Queue) awaitDrain(ctx context.Context) bool {
	deadline := time.Now().Add(q.drainTimeout)
	for q.pending.Load() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return q.pending.Load() == 0
		case <-time.After(10 * time.Millisecond):
		}
	}
	return true
}

func (q *Queue) awaitWorkers() bool {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(q.joinTimeout):
		return false
	}
}

func (q *Queue) worker(ctx context.Context, id int, ch chan *Entry) {
	defer q.wg.Done()
	log := q.log.WithField("worker", id)
	for entry := range ch {
		if entry == nil {
			return
		}
		q.process(ctx, log, entry)
		queueDepth.WithLabelValues(q.tenantID.String()).Set(float64(len(ch)))
	}
}

func (q *Queue) process(ctx context.Context, log *logrus.Entry, entry *Entry) {
	// Drain accounting must hold whether dispatch succeeded, failed or panicked.
	defer q.pending.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"update_id": entry.Update.UpdateID,
				"panic":     r,
			}).Error("dispatcher panicked")
			processedTotal.WithLabelValues(q.tenantID.String(), "panic").Inc()
		}
	}()

	// Each entry runs under a fresh context carrying its own tenant id, never
	// the context of the HTTP call that enqueued it.
	dctx := composables.WithTenantID(ctx, q.tenantID)
	dctx = composables.WithLogger(dctx, log)

	if err := q.dispatcher.Dispatch(dctx, entry.Update); err != nil {
		log.WithFields(logrus.Fields{
			"update_id": entry.Update.UpdateID,
			"waited":    time.Since(entry.EnqueuedAt),
		}).WithError(err).Warn("update dispatch failed")
		processedTotal.WithLabelValues(q.tenantID.String(), "error").Inc()
		return
	}
	processedTotal.WithLabelValues(q.tenantID.String(), "ok").Inc()
}
