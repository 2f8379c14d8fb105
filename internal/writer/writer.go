// Package writer implements the batched, idempotent document writer shared
// by the importers and the index builder.
//
// Callers enqueue merge-upserts one at a time; the writer cuts batches at a
// ceiling tuned below the store's per-commit operation limit and commits
// them asynchronously. Backpressure comes from a weighted semaphore: once
// the configured number of batches is in flight, Enqueue blocks until a
// commit drains. Transient commit failures retry with exponential backoff;
// everything else fails the run immediately.
//
// Because every document id is deterministic and every write is a merge
// upsert, a crashed run can simply be re-run: the second pass converges to
// the same end state.
package writer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ryanbass99/et-office-portal/internal/docstore"
)

const (
	// DefaultBatchSize keeps 100 ops of headroom under the store's
	// 500-op commit ceiling.
	DefaultBatchSize = 400

	// DefaultMaxAttempts bounds transient-failure retries per batch.
	DefaultMaxAttempts = 6

	// DefaultMaxInFlight caps concurrent batch commits.
	DefaultMaxInFlight = 4

	baseBackoff = 250 * time.Millisecond
	maxBackoff  = 30 * time.Second
)

// Config tunes a Writer. Zero values fall back to the defaults above.
type Config struct {
	BatchSize   int
	MaxAttempts int
	MaxInFlight int
}

// Stats are cumulative writer counters. Read them after Flush returns.
type Stats struct {
	Enqueued  int64
	Committed int64
	Batches   int64
	Retries   int64
}

// Writer accumulates document writes and commits them in bounded batches.
// Enqueue and Flush may be called from multiple goroutines.
type Writer struct {
	store docstore.Store
	cfg   Config
	sem   *semaphore.Weighted

	mu       sync.Mutex
	pending  []docstore.Write
	inflight sync.WaitGroup
	stats    Stats
	err      error // first commit failure; sticky
}

// New returns a Writer over store with cfg applied.
func New(store docstore.Store, cfg Config) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > docstore.MaxBatchOps {
		cfg.BatchSize = docstore.MaxBatchOps
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultMaxInFlight
	}
	return &Writer{
		store: store,
		cfg:   cfg,
		sem:   semaphore.NewWeighted(int64(cfg.MaxInFlight)),
	}
}

// Enqueue buffers one merge-upsert and commits the current batch when it
// reaches the ceiling. It returns the first error any earlier commit hit, so
// a failing run stops filling the queue instead of importing into the void.
func (w *Writer) Enqueue(ctx context.Context, path string, doc docstore.Document, merge bool) error {
	w.mu.Lock()
	if w.err != nil {
		err := w.err
		w.mu.Unlock()
		return err
	}
	w.pending = append(w.pending, docstore.Write{Path: path, Doc: doc, Merge: merge})
	w.stats.Enqueued++
	var batch []docstore.Write
	if len(w.pending) >= w.cfg.BatchSize {
		batch = w.pending
		w.pending = nil
	}
	w.mu.Unlock()

	if batch == nil {
		return nil
	}
	return w.commitAsync(ctx, batch)
}

// Flush commits any partial batch and waits for all in-flight commits.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(batch) > 0 {
		if err := w.commitAsync(ctx, batch); err != nil {
			w.inflight.Wait()
			return err
		}
	}
	w.inflight.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Stats returns a snapshot of the cumulative counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// commitAsync ships one batch in the background, blocking only while the
// in-flight ceiling is reached.
func (w *Writer) commitAsync(ctx context.Context, batch []docstore.Write) error {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		defer w.sem.Release(1)
		if err := w.commit(ctx, batch); err != nil {
			w.recordErr(err)
		}
	}()
	return nil
}

// commit writes one batch, retrying transient failures with exponential
// backoff. Attempt n sleeps roughly baseBackoff·n².
func (w *Writer) commit(ctx context.Context, batch []docstore.Write) error {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		err := w.store.BatchWrite(ctx, batch)
		if err == nil {
			w.mu.Lock()
			w.stats.Batches++
			w.stats.Committed += int64(len(batch))
			n := w.stats.Batches
			total := w.stats.Committed
			w.mu.Unlock()
			log.Printf("writer: batch #%d committed ops=%d total=%d", n, len(batch), total)
			return nil
		}
		if !docstore.IsTransient(err) {
			return fmt.Errorf("commit batch of %d (attempt %d): %w", len(batch), attempt, err)
		}
		lastErr = err
		if attempt == w.cfg.MaxAttempts {
			break
		}

		w.mu.Lock()
		w.stats.Retries++
		w.mu.Unlock()

		delay := backoff(attempt)
		log.Printf("writer: transient commit failure (attempt %d/%d), retrying in %s: %v",
			attempt, w.cfg.MaxAttempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("commit batch of %d: gave up after %d attempts: %w",
		len(batch), w.cfg.MaxAttempts, lastErr)
}

func (w *Writer) recordErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}

func backoff(attempt int) time.Duration {
	d := baseBackoff * time.Duration(attempt*attempt)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
