// Package csv streams delimited export files row by row. The export files we
// receive from the accounting system are multi-million-row CSVs, so the
// reader never materializes the file: each call to Next returns one row and
// reuses the underlying record buffer.
//
// Robustness rules, matching what the exports actually contain:
//
//   - a UTF-8 BOM on the first header cell is stripped
//   - rows whose column count differs from the header are dropped and
//     counted, never fatal
//   - embedded quotes are tolerated (LazyQuotes)
//
// A missing or unreadable file is the caller's problem to surface before
// any write happens; the reader only sees an open handle.
package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strings"
)

const utf8BOM = "\uFEFF"

const logEveryN = 50_000

// Row is one parsed data row. Values is only valid until the next call to
// Next; copy what you keep.
type Row struct {
	Line   int
	Values []string
}

// Stats counts reader activity for the run summary.
type Stats struct {
	RowsRead    int // data rows returned to the caller
	RowsSkipped int // malformed or ragged rows dropped
}

// Reader streams rows from one delimited file.
type Reader struct {
	cr     *csv.Reader
	header []string
	line   int
	stats  Stats
	onSkip func(line int, err error)
}

// Option tunes a Reader.
type Option func(*Reader)

// WithComma sets the field delimiter (default ',').
func WithComma(c rune) Option {
	return func(r *Reader) { r.cr.Comma = c }
}

// WithSkipFunc installs a callback invoked for every dropped row.
func WithSkipFunc(fn func(line int, err error)) Option {
	return func(r *Reader) { r.onSkip = fn }
}

// NewReader wraps src and reads the header row eagerly so column resolution
// can happen before the first data row.
func NewReader(src io.Reader, opts ...Option) (*Reader, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1 // ragged rows are detected and counted by us
	cr.ReuseRecord = true
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	r := &Reader{cr: cr}
	for _, opt := range opts {
		opt(r)
	}

	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	r.line = 1
	r.header = make([]string, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		r.header[i] = h
	}
	return r, nil
}

// Header returns the trimmed header row.
func (r *Reader) Header() []string { return r.header }

// Stats returns the counters accumulated so far.
func (r *Reader) Stats() Stats { return r.stats }

// Next returns the next well-formed data row, skipping and counting rows
// that fail to parse or whose width differs from the header. io.EOF ends
// the stream.
func (r *Reader) Next() (Row, error) {
	for {
		rec, err := r.cr.Read()
		r.line++
		if err == io.EOF {
			return Row{}, io.EOF
		}
		if err != nil {
			r.skip(r.line, fmt.Errorf("csv read: %w", err))
			continue
		}
		if len(rec) != len(r.header) {
			r.skip(r.line, fmt.Errorf("row has %d columns, header has %d", len(rec), len(r.header)))
			continue
		}
		r.stats.RowsRead++
		if r.stats.RowsRead%logEveryN == 0 {
			log.Printf("reader: line=%d emitted=%d skipped=%d", r.line, r.stats.RowsRead, r.stats.RowsSkipped)
		}
		return Row{Line: r.line, Values: rec}, nil
	}
}

func (r *Reader) skip(line int, err error) {
	r.stats.RowsSkipped++
	if r.onSkip != nil {
		r.onSkip(line, err)
	}
}
