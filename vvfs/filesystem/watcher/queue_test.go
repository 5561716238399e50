package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches []EventBatch
}

func (r *recorder) handle(_ context.Context, b EventBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *recorder) last() EventBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[len(r.batches)-1]
}

func newTestQueue(t *testing.T, delay time.Duration, handler FlushHandler) *ChangeQueue {
	t.Helper()
	q := NewChangeQueue(QueueConfig{DebounceDelay: delay, RenameWindow: DefaultRenameWindow}, handler, zerolog.Nop())
	t.Cleanup(q.Close)
	return q
}

func TestMergeEvents(t *testing.T) {
	t0 := time.Unix(1000, 0)
	t1 := t0.Add(time.Second)

	tests := []struct {
		name     string
		existing EventKind
		incoming EventKind
		want     EventKind
		wantTime time.Time
	}{
		{"create then modify stays create", EventCreate, EventModify, EventCreate, t1},
		{"create then remove", EventCreate, EventRemove, EventRemove, t1},
		{"modify then remove", EventModify, EventRemove, EventRemove, t1},
		{"remove then create resurrects", EventRemove, EventCreate, EventCreate, t1},
		{"modify then modify", EventModify, EventModify, EventModify, t1},
		{"remove then modify", EventRemove, EventModify, EventModify, t1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeEvents(
				Event{Kind: tt.existing, Path: "/p", Timestamp: t0},
				Event{Kind: tt.incoming, Path: "/p", Timestamp: t1},
			)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.wantTime, got.Timestamp)
		})
	}
}

func TestChangeQueue_DeleteDominates(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, time.Hour, rec.handle)

	now := time.Now()
	q.Push(Event{Kind: EventCreate, Path: "/r/x", Timestamp: now})
	q.Push(Event{Kind: EventModify, Path: "/r/x", Timestamp: now.Add(time.Millisecond)})
	q.Push(Event{Kind: EventRemove, Path: "/r/x", Timestamp: now.Add(2 * time.Millisecond)})
	assert.Equal(t, 1, q.PendingCount())

	require.NoError(t, q.FlushNow(context.Background()))

	require.Equal(t, 1, rec.count())
	events := rec.last().Events
	require.Len(t, events, 1)
	assert.Equal(t, EventRemove, events[0].Kind)
	assert.Equal(t, 0, q.PendingCount())
}

func TestChangeQueue_RenameDetection(t *testing.T) {
	tests := []struct {
		name  string
		gap   time.Duration
		kinds []EventKind
	}{
		{"within window", 50 * time.Millisecond, []EventKind{EventRename}},
		{"outside window", 200 * time.Millisecond, []EventKind{EventRemove, EventCreate}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			q := newTestQueue(t, time.Hour, rec.handle)

			t0 := time.Now()
			q.Push(Event{Kind: EventRemove, Path: "/r/a.txt", Timestamp: t0})
			q.Push(Event{Kind: EventCreate, Path: "/r/b.txt", Timestamp: t0.Add(tt.gap)})
			require.NoError(t, q.FlushNow(context.Background()))

			events := rec.last().Events
			kinds := make([]EventKind, len(events))
			for i, ev := range events {
				kinds[i] = ev.Kind
			}
			assert.Equal(t, tt.kinds, kinds)

			if tt.kinds[0] == EventRename {
				assert.Equal(t, "/r/b.txt", events[0].Path)
				assert.Equal(t, "/r/a.txt", events[0].FromPath)
				assert.Equal(t, t0.Add(tt.gap), events[0].Timestamp)
			}
		})
	}
}

func TestChangeQueue_OrdersByTimestamp(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, time.Hour, rec.handle)

	t0 := time.Now()
	q.Push(Event{Kind: EventModify, Path: "/r/late", Timestamp: t0.Add(time.Second)})
	q.Push(Event{Kind: EventModify, Path: "/r/early", Timestamp: t0})
	q.Push(Event{Kind: EventModify, Path: "/r/tie", Timestamp: t0})
	require.NoError(t, q.FlushNow(context.Background()))

	events := rec.last().Events
	require.Len(t, events, 3)
	assert.Equal(t, "/r/early", events[0].Path)
	assert.Equal(t, "/r/tie", events[1].Path, "ties keep arrival order")
	assert.Equal(t, "/r/late", events[2].Path)
}

func TestChangeQueue_DebouncesIntoOneFlush(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, 50*time.Millisecond, rec.handle)

	for i := 0; i < 5; i++ {
		q.Push(Event{Kind: EventModify, Path: "/r/file", Timestamp: time.Now()})
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "repeated pushes inside the delay flush once")
	assert.Len(t, rec.last().Events, 1)
}

func TestChangeQueue_NeverOverlapsFlushes(t *testing.T) {
	var active, maxActive atomic.Int32
	release := make(chan struct{})
	var calls atomic.Int32

	handler := func(_ context.Context, _ EventBatch) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		if calls.Add(1) == 1 {
			<-release
		}
		active.Add(-1)
		return nil
	}

	q := newTestQueue(t, 20*time.Millisecond, handler)

	q.Push(Event{Kind: EventCreate, Path: "/r/one", Timestamp: time.Now()})
	require.Eventually(t, q.InFlight, 2*time.Second, 5*time.Millisecond)

	q.Push(Event{Kind: EventCreate, Path: "/r/two", Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "second flush waits for the first")
	assert.Equal(t, 1, q.PendingCount())

	close(release)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestChangeQueue_EmptyFlushDeliversNothing(t *testing.T) {
	rec := &recorder{}
	q := newTestQueue(t, time.Hour, rec.handle)

	require.NoError(t, q.FlushNow(context.Background()))
	assert.Equal(t, 0, rec.count())
}

func TestChangeQueue_FlushNowReturnsHandlerError(t *testing.T) {
	q := newTestQueue(t, time.Hour, func(context.Context, EventBatch) error { return assert.AnError })

	q.Push(Event{Kind: EventModify, Path: "/r/x"})
	assert.ErrorIs(t, q.FlushNow(context.Background()), assert.AnError)
}

func TestChangeQueue_Close(t *testing.T) {
	rec := &recorder{}
	q := NewChangeQueue(QueueConfig{DebounceDelay: time.Hour}, rec.handle, zerolog.Nop())

	q.Push(Event{Kind: EventModify, Path: "/r/x"})
	q.Close()
	q.Close()

	assert.ErrorIs(t, q.FlushNow(context.Background()), ErrQueueClosed)
	q.Push(Event{Kind: EventModify, Path: "/r/y"})
	assert.Equal(t, 0, q.PendingCount())
	assert.Equal(t, 0, rec.count())
}

func TestDetectRenames_EarliestCreateWins(t *testing.T) {
	t0 := time.Unix(5000, 0)
	events := []Event{
		{Kind: EventRemove, Path: "/a", Timestamp: t0},
		{Kind: EventCreate, Path: "/b", Timestamp: t0.Add(10 * time.Millisecond)},
		{Kind: EventCreate, Path: "/c", Timestamp: t0.Add(20 * time.Millisecond)},
		{Kind: EventModify, Path: "/d", Timestamp: t0.Add(30 * time.Millisecond)},
	}

	out := DetectRenames(events, DefaultRenameWindow)

	require.Len(t, out, 3)
	assert.Equal(t, Event{Kind: EventRename, Path: "/b", FromPath: "/a", Timestamp: t0.Add(10 * time.Millisecond)}, out[0])
	assert.Equal(t, EventCreate, out[1].Kind)
	assert.Equal(t, "/c", out[1].Path)
	assert.Equal(t, EventModify, out[2].Kind)
}

func TestDetectRenames_SamePathIsNotARename(t *testing.T) {
	t0 := time.Unix(5000, 0)
	events := []Event{
		{Kind: EventRemove, Path: "/a", Timestamp: t0},
		{Kind: EventCreate, Path: "/a", Timestamp: t0.Add(time.Millisecond)},
	}

	out := DetectRenames(events, DefaultRenameWindow)
	require.Len(t, out, 2)
	assert.Equal(t, EventRemove, out[0].Kind)
	assert.Equal(t, EventCreate, out[1].Kind)
}
