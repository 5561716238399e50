// Package engine keeps a fact graph in step with a directory tree: it runs the
// initial bulk scan, applies live change batches from the watcher, and owns the
// identity registry both paths share.
package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/config"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/db"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/filesystem/listing"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/filesystem/watcher"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/identity"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrNotInitialized is returned by every ingesting call made before Initialize.
	ErrNotInitialized = errors.New("engine not initialized")
	// ErrEmptyPath is returned when a mutation is given no path.
	ErrEmptyPath = errors.New("empty path")
)

// WatcherFactory builds the native watcher used by Watch.
type WatcherFactory func(cfg watcher.WatcherConfig, logger zerolog.Logger) (watcher.Watcher, error)

// Options wires an Engine. Store and Lister are required; the rest default.
type Options struct {
	Store      db.FactStore
	Lister     listing.Lister
	Registry   *identity.Registry
	Config     *config.Config
	Logger     zerolog.Logger
	NewWatcher WatcherFactory
}

// Engine is the synchronization runtime. One writer at a time touches the
// registry and the store: the whole initial scan, each live batch and each
// public mutation hold writeMu.
type Engine struct {
	store      db.FactStore
	lister     listing.Lister
	config     *config.Config
	logger     zerolog.Logger
	newWatcher WatcherFactory

	writeMu sync.Mutex

	regMu    sync.RWMutex
	registry *identity.Registry

	initialized atomic.Bool
	storageDir  string

	stage staging
	obs   observers
	queue *watcher.ChangeQueue

	scanState  atomic.Int32
	watchState atomic.Int32

	matchMu  sync.RWMutex
	matchers []*listing.Matcher
}

// New creates an engine. Its change queue is running on return; call Close
// when done.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine requires a fact store")
	}
	if opts.Lister == nil {
		return nil, errors.New("engine requires a directory lister")
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid engine configuration")
	}

	logger := opts.Logger.With().Str("component", "engine").Logger()

	registry := opts.Registry
	if registry == nil {
		registry = identity.NewRegistry(identity.WithLogger(opts.Logger))
	}

	newWatcher := opts.NewWatcher
	if newWatcher == nil {
		newWatcher = watcher.NewWatcher
	}

	e := &Engine{
		store:      opts.Store,
		lister:     opts.Lister,
		config:     cfg,
		logger:     logger,
		newWatcher: newWatcher,
		registry:   registry,
	}
	e.obs.logger = logger

	e.queue = watcher.NewChangeQueue(watcher.QueueConfig{
		DebounceDelay: cfg.Queue.DebounceDelay,
		RenameWindow:  cfg.Queue.RenameWindow,
	}, e.applyBatch, opts.Logger)

	return e, nil
}

// Initialize loads the identity registry from storageDir, or from the
// configured storage directory when storageDir is empty. A missing or
// unusable identity file starts the registry empty.
func (e *Engine) Initialize(_ context.Context, storageDir string) error {
	if storageDir == "" {
		storageDir = e.config.Storage.Dir
	}
	if storageDir == "" {
		return errors.New("no storage directory configured")
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.regMu.Lock()
	e.registry.Load(storageDir)
	tracked := e.registry.Len()
	e.regMu.Unlock()

	e.storageDir = storageDir
	e.initialized.Store(true)

	e.logger.Info().Str("storageDir", storageDir).Int("tracked", tracked).Msg("Engine initialized")
	return nil
}

// PushFSEvent hands a raw change notification to the change queue.
func (e *Engine) PushFSEvent(event watcher.Event) {
	e.queue.Push(event)
}

// Flush applies whatever the change queue holds right now and waits for it.
func (e *Engine) Flush(ctx context.Context) error {
	return e.queue.FlushNow(ctx)
}

// PendingEvents is the number of paths waiting in the change queue.
func (e *Engine) PendingEvents() int {
	return e.queue.PendingCount()
}

// IDForPath returns the entity tracked at path.
func (e *Engine) IDForPath(path string) (facts.EntityID, bool) {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	return e.registry.GetID(path)
}

// PathForID returns the path currently bound to id.
func (e *Engine) PathForID(id facts.EntityID) (string, bool) {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	return e.registry.GetPath(id)
}

// Tracked returns how many paths the registry knows.
func (e *Engine) Tracked() int {
	e.regMu.RLock()
	defer e.regMu.RUnlock()
	return e.registry.Len()
}

// Close stops the change queue. Pending events are dropped; Flush first to
// keep them.
func (e *Engine) Close() error {
	e.queue.Close()
	return nil
}

// saveRegistry persists the registry and reports failures as
// IDENTITY_SAVE_FAILED. Callers hold writeMu.
func (e *Engine) saveRegistry(phase string) error {
	e.regMu.Lock()
	err := e.registry.Save(e.storageDir)
	e.regMu.Unlock()

	if err != nil {
		e.emitError(CodeIdentitySaveFailed, err, map[string]any{"phase": phase, "storageDir": e.storageDir})
		return errors.Wrap(err, "failed to save identity map")
	}
	return nil
}

func (e *Engine) requireInitialized() error {
	if !e.initialized.Load() {
		return ErrNotInitialized
	}
	return nil
}
