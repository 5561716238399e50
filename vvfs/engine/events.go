package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventIngestStarted  EventType = "ingest_started"
	EventIngestBatch    EventType = "ingest_batch"
	EventIngestDone     EventType = "ingest_done"
	EventFSBatchApplied EventType = "fs_batch_applied"
	EventQuerySlow      EventType = "query_slow"
	EventError          EventType = "error"
)

// ErrorCode classifies error events.
type ErrorCode string

const (
	CodeScanFailed         ErrorCode = "SCAN_FAILED"
	CodeBatchApplyFailed   ErrorCode = "BATCH_APPLY_FAILED"
	CodeIdentitySaveFailed ErrorCode = "IDENTITY_SAVE_FAILED"
	CodeWatchFailed        ErrorCode = "WATCH_FAILED"
)

// Event is one lifecycle notification. Only the fields of its Type are set.
type Event struct {
	Type EventType `json:"type"`

	RootPath   string `json:"rootPath,omitempty"`
	Processed  int    `json:"processed,omitempty"`
	Total      int    `json:"total,omitempty"`
	TotalFiles int    `json:"totalFiles,omitempty"`
	EventCount int    `json:"eventCount,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Query      string `json:"query,omitempty"`

	Code    ErrorCode      `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

type subscriber struct {
	id uint64
	fn func(Event)
}

// observers fans events out to subscribers, synchronously and in
// registration order.
type observers struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber
	logger zerolog.Logger
}

// Subscribe registers fn for every event the engine emits and returns a
// function that removes it. fn runs on the emitting goroutine, sometimes with
// the engine's writer lock held, so it must not call back into mutating
// engine methods.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	o := &e.obs
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, subscriber{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, s := range o.subs {
				if s.id == id {
					o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (o *observers) emit(ev Event) {
	o.mu.RLock()
	subs := make([]subscriber, len(o.subs))
	copy(subs, o.subs)
	o.mu.RUnlock()

	for _, s := range subs {
		var pc panics.Catcher
		pc.Try(func() { s.fn(ev) })
		if r := pc.Recovered(); r != nil {
			o.logger.Error().
				Err(r.AsError()).
				Str("event", string(ev.Type)).
				Uint64("subscriber", s.id).
				Msg("Subscriber panicked")
		}
	}
}

func (e *Engine) emit(ev Event) {
	e.obs.emit(ev)
}

func (e *Engine) emitError(code ErrorCode, err error, ctx map[string]any) {
	e.logger.Error().Err(err).Str("code", string(code)).Fields(ctx).Msg("Engine error")
	e.emit(Event{
		Type:    EventError,
		Code:    code,
		Message: err.Error(),
		Context: ctx,
	})
}

func millis(d time.Duration) int64 {
	return d.Milliseconds()
}
