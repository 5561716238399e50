package engine

import (
	"context"
	"time"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/filesystem/listing"

	"github.com/cockroachdb/errors"
)

// throughputWindow is how many batch rates the ETA is smoothed over.
const throughputWindow = 10

// ScanState is the bulk scan lifecycle.
type ScanState int32

const (
	ScanIdle ScanState = iota
	ScanScanning
	ScanError
)

func (s ScanState) String() string {
	switch s {
	case ScanScanning:
		return "scanning"
	case ScanError:
		return "error"
	default:
		return "idle"
	}
}

// ScanPhase says what a progress report is about.
type ScanPhase string

const (
	PhaseListing   ScanPhase = "listing"
	PhaseIngesting ScanPhase = "ingesting"
	PhaseDone      ScanPhase = "done"
)

// ScanProgress is sent after the listing and after every batch.
type ScanProgress struct {
	Phase     ScanPhase
	Processed int
	Total     int
	// CurrentPath is the last path of the batch just committed.
	CurrentPath    string
	FilesPerSecond float64
	ETA            time.Duration
	Elapsed        time.Duration
}

// ScanResult summarizes a finished scan.
type ScanResult struct {
	Root     string
	Total    int
	Created  int
	Batches  int
	Duration time.Duration
}

// ScanState reports where the bulk scan lifecycle is.
func (e *Engine) ScanState() ScanState {
	return ScanState(e.scanState.Load())
}

// InitialScan lists everything below root depth-first, skipping hidden
// entries and those matched by the root's ignore file, and ingests the result
// in fixed-size batches, each committed as one unit. root itself is not
// ingested. Progress goes to progress (which may be nil and is never closed);
// a slow reader slows the scan. The registry is saved once, at the end.
//
// Failing to list root, a failed commit or cancellation of ctx aborts the
// scan with a SCAN_FAILED event. Unreadable subfolders are logged and skipped.
func (e *Engine) InitialScan(ctx context.Context, root string, progress chan<- ScanProgress) (ScanResult, error) {
	if err := e.requireInitialized(); err != nil {
		return ScanResult{}, err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	root = facts.NormalizePath(root)
	result := ScanResult{Root: root}
	start := time.Now()

	e.scanState.Store(int32(ScanScanning))
	e.emit(Event{Type: EventIngestStarted, RootPath: root})
	e.logger.Info().Str("root", root).Msg("Initial scan started")

	fail := func(err error) (ScanResult, error) {
		e.scanState.Store(int32(ScanError))
		e.emitError(CodeScanFailed, err, map[string]any{
			"rootPath":  root,
			"processed": result.Total,
		})
		return result, err
	}

	matcher, err := listing.LoadMatcher(root, e.config.Scan.IgnoreFile)
	if err != nil {
		return fail(errors.Wrapf(err, "failed to load ignore rules for %s", root))
	}

	entries, err := e.collect(ctx, root, matcher)
	if err != nil {
		return fail(err)
	}
	total := len(entries)

	if err := sendProgress(ctx, progress, ScanProgress{Phase: PhaseListing, Total: total, Elapsed: time.Since(start)}); err != nil {
		return fail(err)
	}

	batchSize := e.config.Scan.BatchSize
	rates := make([]float64, 0, throughputWindow)
	processed := 0

	for offset := 0; offset < total; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return fail(errors.Wrap(err, "scan cancelled"))
		}

		batch := entries[offset:min(offset+batchSize, total)]
		batchStart := time.Now()

		e.BeginBatch()
		for _, entry := range batch {
			_, created, err := e.ingestFile(ctx, entry.Path, entry.Stats())
			if err != nil {
				e.logger.Warn().Err(err).Str("path", entry.Path).Msg("Failed to ingest entry")
				continue
			}
			if created {
				result.Created++
			}
		}
		if err := e.CommitBatch(ctx); err != nil {
			return fail(errors.Wrapf(err, "failed to commit batch at %d", offset))
		}

		processed += len(batch)
		result.Total = processed
		result.Batches++

		if elapsed := time.Since(batchStart).Seconds(); elapsed > 0 {
			if len(rates) == throughputWindow {
				rates = rates[1:]
			}
			rates = append(rates, float64(len(batch))/elapsed)
		}
		rate := average(rates)

		var eta time.Duration
		if rate > 0 {
			eta = time.Duration(float64(total-processed) / rate * float64(time.Second))
		}

		e.emit(Event{Type: EventIngestBatch, Processed: processed, Total: total})
		if err := sendProgress(ctx, progress, ScanProgress{
			Phase:          PhaseIngesting,
			Processed:      processed,
			Total:          total,
			CurrentPath:    batch[len(batch)-1].Path,
			FilesPerSecond: rate,
			ETA:            eta,
			Elapsed:        time.Since(start),
		}); err != nil {
			return fail(err)
		}
	}

	if err := e.saveRegistry("scan"); err != nil {
		e.scanState.Store(int32(ScanError))
		return result, err
	}

	e.addMatcher(matcher)

	result.Duration = time.Since(start)
	e.emit(Event{Type: EventIngestDone, RootPath: root, TotalFiles: total, DurationMs: millis(result.Duration)})
	if err := sendProgress(ctx, progress, ScanProgress{Phase: PhaseDone, Processed: total, Total: total, Elapsed: result.Duration}); err != nil {
		return fail(err)
	}

	e.scanState.Store(int32(ScanIdle))
	e.logger.Info().
		Str("root", root).
		Int("entries", total).
		Int("created", result.Created).
		Dur("duration", result.Duration).
		Msg("Initial scan finished")
	return result, nil
}

// collect lists dir recursively, depth-first, each folder directly followed by
// its contents. Only a failure to list dir itself is returned.
func (e *Engine) collect(ctx context.Context, dir string, matcher *listing.Matcher) ([]listing.Entry, error) {
	children, err := e.lister.List(ctx, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", dir)
	}

	var out []listing.Entry
	for _, child := range children {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "listing cancelled")
		}
		if matcher.SkipEntry(child) {
			continue
		}

		out = append(out, child)
		if !child.IsDir() {
			continue
		}

		nested, err := e.collect(ctx, child.Path, matcher)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			e.logger.Warn().Err(err).Str("path", child.Path).Msg("Skipping unreadable folder")
			continue
		}
		out = append(out, nested...)
	}
	return out, nil
}

func sendProgress(ctx context.Context, progress chan<- ScanProgress, p ScanProgress) error {
	if progress == nil {
		return nil
	}
	select {
	case progress <- p:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "scan cancelled")
	}
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
