package watcher

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ErrQueueClosed is returned by FlushNow once the queue has been closed.
var ErrQueueClosed = errors.New("change queue closed")

type pendingEvent struct {
	event Event
	seq   uint64
}

type flushRequest struct {
	done chan error
}

// ChangeQueue coalesces raw events per path, waits for a quiet period and
// hands the surviving events to a single handler as one ordered batch. At most
// one flush runs at a time; a timer firing during a flush is served after it.
type ChangeQueue struct {
	config  QueueConfig
	handler FlushHandler
	logger  zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingEvent
	seq     uint64
	timer   *time.Timer
	closed  bool

	kick     chan struct{}
	requests chan flushRequest
	inFlight atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewChangeQueue creates a queue and starts its flush worker.
func NewChangeQueue(config QueueConfig, handler FlushHandler, logger zerolog.Logger) *ChangeQueue {
	if config.DebounceDelay <= 0 {
		config.DebounceDelay = DefaultQueueConfig().DebounceDelay
	}
	if config.RenameWindow < 0 {
		config.RenameWindow = DefaultRenameWindow
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &ChangeQueue{
		config:   config,
		handler:  handler,
		logger:   logger.With().Str("component", "change-queue").Logger(),
		pending:  make(map[string]*pendingEvent),
		kick:     make(chan struct{}, 1),
		requests: make(chan flushRequest),
		ctx:      ctx,
		cancel:   cancel,
	}

	q.wg.Add(1)
	go q.run()

	return q
}

// Push records an event and restarts the debounce timer.
func (q *ChangeQueue) Push(event Event) {
	event.Path = facts.NormalizePath(event.Path)
	event.FromPath = facts.NormalizePath(event.FromPath)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Debug().Str("path", event.Path).Msg("Dropping event pushed after close")
		return
	}

	q.seq++
	if existing, ok := q.pending[event.Path]; ok {
		existing.event = mergeEvents(existing.event, event)
		existing.seq = q.seq
	} else {
		q.pending[event.Path] = &pendingEvent{event: event, seq: q.seq}
	}

	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(q.config.DebounceDelay, q.signal)
}

// FlushNow drains and delivers pending events immediately, waiting for any
// flush already in flight to finish first. It returns the handler's error.
func (q *ChangeQueue) FlushNow(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.mu.Unlock()

	req := flushRequest{done: make(chan error, 1)}
	select {
	case q.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-q.ctx.Done():
		return ErrQueueClosed
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PendingCount is the number of paths waiting for the next flush.
func (q *ChangeQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InFlight reports whether the handler is running.
func (q *ChangeQueue) InFlight() bool {
	return q.inFlight.Load()
}

// Close stops the timer and the worker. Pending events are discarded; an
// in-flight handler sees its context cancelled and is waited for.
func (q *ChangeQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	dropped := len(q.pending)
	q.pending = make(map[string]*pendingEvent)
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()

	if dropped > 0 {
		q.logger.Debug().Int("dropped", dropped).Msg("Change queue closed with pending events")
	}
}

func (q *ChangeQueue) signal() {
	select {
	case q.kick <- struct{}{}:
	default:
	}
}

func (q *ChangeQueue) run() {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.kick:
			if err := q.flush(); err != nil {
				q.logger.Error().Err(err).Msg("Change batch handler failed")
			}
		case req := <-q.requests:
			req.done <- q.flush()
		}
	}
}

func (q *ChangeQueue) flush() error {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return nil
	}
	drained := make([]*pendingEvent, 0, len(q.pending))
	for _, p := range q.pending {
		drained = append(drained, p)
	}
	q.pending = make(map[string]*pendingEvent)
	q.mu.Unlock()

	sort.Slice(drained, func(i, j int) bool {
		a, b := drained[i], drained[j]
		if !a.event.Timestamp.Equal(b.event.Timestamp) {
			return a.event.Timestamp.Before(b.event.Timestamp)
		}
		return a.seq < b.seq
	})

	events := make([]Event, len(drained))
	for i, p := range drained {
		events[i] = p.event
	}

	batch := EventBatch{
		Events:    DetectRenames(events, q.config.RenameWindow),
		FlushedAt: time.Now(),
	}

	q.inFlight.Store(true)
	defer q.inFlight.Store(false)

	q.logger.Debug().Int("events", len(batch.Events)).Msg("Flushing change batch")
	return q.handler(q.ctx, batch)
}

// mergeEvents folds a newer event for a path into the pending one.
func mergeEvents(existing, incoming Event) Event {
	switch {
	case incoming.Kind == EventRemove:
		return incoming
	case existing.Kind == EventCreate && incoming.Kind == EventModify:
		merged := existing
		merged.Timestamp = incoming.Timestamp
		return merged
	default:
		// remove followed by create resurrects the path; everything else
		// keeps the newest event.
		return incoming
	}
}
