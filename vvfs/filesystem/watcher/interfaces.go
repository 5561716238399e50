package watcher

import (
	"context"
	"time"
)

// EventKind represents the type of file system event
type EventKind int

const (
	// EventUnknown is a notification that could not be classified
	EventUnknown EventKind = iota
	// EventCreate represents file/directory creation
	EventCreate
	// EventModify represents content or metadata changes
	EventModify
	// EventRemove represents file/directory removal
	EventRemove
	// EventRename represents a move from FromPath to Path
	EventRename
)

// String returns the wire name of the kind.
func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event represents a normalized file system event
type Event struct {
	Kind      EventKind
	Path      string
	FromPath  string // For rename events
	Timestamp time.Time
}

// EventBatch is one debounced, coalesced, ordered delivery.
type EventBatch struct {
	Events    []Event
	FlushedAt time.Time
}

// Watcher defines the interface for native file system watching
type Watcher interface {
	// Start begins watching the specified paths
	Start(ctx context.Context, paths []string) error

	// Events returns a channel of normalized raw events
	Events() <-chan Event

	// Errors returns a channel of errors encountered during watching
	Errors() <-chan error

	// Close stops watching and cleans up resources
	Close() error

	// Add adds paths to watch
	Add(paths ...string) error

	// Remove removes paths from watching
	Remove(paths ...string) error
}

// WatcherConfig holds configuration for the native watcher
type WatcherConfig struct {
	// QueueCapacity is the capacity of the raw event channel
	QueueCapacity int

	// Skip reports paths that must not be watched or reported
	Skip func(path string) bool
}

// QueueConfig holds the change queue timings
type QueueConfig struct {
	// DebounceDelay is the quiet period before pending events are flushed
	DebounceDelay time.Duration

	// RenameWindow is the maximum distance between a remove and a create
	// for them to be paired into a rename
	RenameWindow time.Duration
}

// FlushHandler consumes one batch. The queue never calls it concurrently.
type FlushHandler func(ctx context.Context, batch EventBatch) error

// DefaultQueueConfig returns the default change queue timings
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		DebounceDelay: 300 * time.Millisecond,
		RenameWindow:  DefaultRenameWindow,
	}
}

// DefaultWatcherConfig returns a default watcher configuration
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{QueueCapacity: 1000}
}
