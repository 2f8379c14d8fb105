// Package pipeline wires the full import run together: header pass, detail
// pass, aggregate finalizer, and inverted-index build, in that order,
// sharing one batched writer.
//
// Pass boundaries are strict. The detail pass only starts once the header
// pass has returned its in-window set, and the finalizer and index flush
// only start once the detail pass has returned its totals. Within that
// ordering the finalizer and index flush are independent — they touch
// disjoint documents — so they run concurrently under an errgroup.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ryanbass99/et-office-portal/internal/config"
	"github.com/ryanbass99/et-office-portal/internal/docstore"
	"github.com/ryanbass99/et-office-portal/internal/importer"
	"github.com/ryanbass99/et-office-portal/internal/index"
	"github.com/ryanbass99/et-office-portal/internal/metrics"
	pcsv "github.com/ryanbass99/et-office-portal/internal/parser/csv"
	"github.com/ryanbass99/et-office-portal/internal/writer"
)

// Summary aggregates the run's counters for logs, metrics, and callers.
type Summary struct {
	Headers   importer.HeaderCounts
	Details   importer.DetailCounts
	Finalized int
	IndexKeys int
	Writer    writer.Stats
	Elapsed   time.Duration
}

// Run executes one full import described by cfg against store.
//
// Both input files are opened before any row is processed so a missing file
// fails the run with zero writes. The returned Summary is valid even when
// err is non-nil, reflecting whatever progress was made.
func Run(ctx context.Context, cfg config.Run, store docstore.Store) (*Summary, error) {
	start := time.Now()
	sum := &Summary{}

	// Fail on config-level problems before the first write.
	headerFile, err := os.Open(cfg.Headers.Path)
	if err != nil {
		return sum, fmt.Errorf("open header export: %w", err)
	}
	defer headerFile.Close()
	detailFile, err := os.Open(cfg.Details.Path)
	if err != nil {
		return sum, fmt.Errorf("open detail export: %w", err)
	}
	defer detailFile.Close()

	w := writer.New(store, writer.Config{
		BatchSize:   cfg.Writer.BatchSize,
		MaxAttempts: cfg.Writer.MaxAttempts,
		MaxInFlight: cfg.Writer.MaxInFlight,
	})
	cutoff := time.Now().AddDate(-cfg.Window.YearsBack, 0, 0)
	log.Printf("run: job=%s window_cutoff=%s", cfg.Job, cutoff.Format("2006-01-02"))

	// Pass 1: headers.
	stepStart := time.Now()
	hr, err := pcsv.NewReader(headerFile, readerOptions(cfg.Headers, cfg.Job)...)
	if err != nil {
		return sum, fmt.Errorf("header export: %w", err)
	}
	headers, err := importer.ImportHeaders(ctx, hr, cutoff, w)
	metrics.RecordStep(cfg.Job, "headers", err, time.Since(stepStart))
	if err != nil {
		return sum, err
	}
	sum.Headers = headers.Counts
	recordHeaderRows(cfg.Job, headers.Counts)

	// Pass 2: details, with the index builder observing the join.
	stepStart = time.Now()
	dr, err := pcsv.NewReader(detailFile, readerOptions(cfg.Details, cfg.Job)...)
	if err != nil {
		return sum, fmt.Errorf("detail export: %w", err)
	}
	var builder *index.Builder
	var obs importer.LineObserver
	if !cfg.SkipIndex {
		builder = index.NewBuilder()
		obs = builder
	}
	details, err := importer.ImportDetails(ctx, dr, headers, w, obs)
	metrics.RecordStep(cfg.Job, "details", err, time.Since(stepStart))
	if err != nil {
		return sum, err
	}
	sum.Details = details.Counts
	recordDetailRows(cfg.Job, details.Counts)

	// All detail writes must be committed before aggregates overwrite
	// header documents computed from them.
	if err := w.Flush(ctx); err != nil {
		sum.Writer = w.Stats()
		return sum, fmt.Errorf("flush after detail pass: %w", err)
	}

	// Pass 3: finalize aggregates and flush the index. Disjoint document
	// sets, so they may interleave on the shared writer.
	stepStart = time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := importer.Finalize(gctx, headers, details, w)
		sum.Finalized = n
		return err
	})
	if builder != nil {
		g.Go(func() error {
			n, err := builder.Flush(gctx, w)
			sum.IndexKeys = n
			return err
		})
	}
	err = g.Wait()
	metrics.RecordStep(cfg.Job, "finalize", err, time.Since(stepStart))
	if err != nil {
		sum.Writer = w.Stats()
		return sum, err
	}

	if err := w.Flush(ctx); err != nil {
		sum.Writer = w.Stats()
		return sum, fmt.Errorf("final flush: %w", err)
	}

	sum.Writer = w.Stats()
	sum.Elapsed = time.Since(start)
	metrics.RecordRows(cfg.Job, "docs_committed", sum.Writer.Committed)
	metrics.RecordBatches(cfg.Job, sum.Writer.Batches)
	metrics.RecordRetries(cfg.Job, sum.Writer.Retries)

	log.Printf("run: job=%s done headers=%d details=%d finalized=%d index_keys=%d docs=%d batches=%d elapsed=%s",
		cfg.Job, sum.Headers.Written, sum.Details.Written, sum.Finalized, sum.IndexKeys,
		sum.Writer.Committed, sum.Writer.Batches, sum.Elapsed.Truncate(time.Millisecond))
	return sum, nil
}

func readerOptions(fs config.FileSpec, job string) []pcsv.Option {
	opts := []pcsv.Option{
		pcsv.WithComma(fs.Options.Rune("comma", ',')),
		pcsv.WithSkipFunc(func(line int, err error) {
			log.Printf("reader: job=%s line=%d dropped: %v", job, line, err)
		}),
	}
	return opts
}

func recordHeaderRows(job string, c importer.HeaderCounts) {
	metrics.RecordRows(job, "headers_read", int64(c.RowsRead))
	metrics.RecordRows(job, "headers_written", int64(c.Written))
	metrics.RecordRows(job, "skipped_no_key", int64(c.SkippedNoKey))
	metrics.RecordRows(job, "skipped_out_of_window", int64(c.SkippedOutOfWindow))
}

func recordDetailRows(job string, c importer.DetailCounts) {
	metrics.RecordRows(job, "details_read", int64(c.RowsRead))
	metrics.RecordRows(job, "details_written", int64(c.Written))
	metrics.RecordRows(job, "skipped_not_in_range", int64(c.SkippedNotInWindow))
	metrics.RecordRows(job, "skipped_noise", int64(c.SkippedNoise))
}
