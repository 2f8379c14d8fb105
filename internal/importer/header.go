package importer

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ryanbass99/et-office-portal/internal/docstore"
	"github.com/ryanbass99/et-office-portal/internal/fields"
	pcsv "github.com/ryanbass99/et-office-portal/internal/parser/csv"
	"github.com/ryanbass99/et-office-portal/internal/writer"
)

// ImportHeaders runs the rolling-window header pass: every invoice header
// row with a natural key and a timestamp at or after cutoff is normalized
// and enqueued as a merge-upsert, and its key is marked in-window for the
// detail pass. Duplicate keys in one file resolve last-write-wins in file
// order, matching the writer's upsert semantics.
//
// Retries are the writer's problem; this pass is linear and makes none.
func ImportHeaders(ctx context.Context, r *pcsv.Reader, cutoff time.Time, w *writer.Writer) (*HeaderResult, error) {
	cols := fields.Bind(r.Header(), HeaderAliases)
	if err := requireCols(cols, "invoice_no", "invoice_date"); err != nil {
		return nil, fmt.Errorf("header file: %w", err)
	}

	res := &HeaderResult{
		Cutoff:   cutoff,
		InWindow: make(map[string]HeaderMeta),
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Next()
		if err != nil {
			break // io.EOF; malformed rows were already skip-counted by the reader
		}
		res.Counts.RowsRead++

		key := cols.Get(row.Values, "invoice_no")
		if key == "" {
			res.Counts.SkippedNoKey++
			continue
		}
		ts, ok := fields.ParseFixedDate(cols.Get(row.Values, "invoice_date"))
		if !ok || ts.Before(cutoff) {
			res.Counts.SkippedOutOfWindow++
			continue
		}

		meta := HeaderMeta{
			AccountID: cols.Get(row.Values, "account_id"),
			RepCode:   fields.PadIdentifier(cols.Get(row.Values, "rep_code"), RepCodeWidth),
			Freight:   fields.ParseAmount(cols.Get(row.Values, "freight")),
			Discount:  fields.ParseAmount(cols.Get(row.Values, "discount")),
		}
		res.InWindow[key] = meta

		doc := docstore.Document{
			"invoice_no":   key,
			"invoice_date": ts.Format(time.RFC3339),
			"account_id":   meta.AccountID,
			"rep_code":     meta.RepCode,
			"freight":      meta.Freight,
			"discount":     meta.Discount,
		}
		if err := w.Enqueue(ctx, InvoicePath(key), doc, true); err != nil {
			return nil, fmt.Errorf("header pass: %w", err)
		}
		res.Counts.Written++
	}

	log.Printf("headers: read=%d written=%d no_key=%d out_of_window=%d in_window=%d",
		res.Counts.RowsRead, res.Counts.Written, res.Counts.SkippedNoKey,
		res.Counts.SkippedOutOfWindow, len(res.InWindow))
	return res, nil
}

// requireCols fails fast when a column the pass cannot run without did not
// resolve against the file header.
func requireCols(cols fields.Cols, names ...string) error {
	var missing []string
	for _, n := range names {
		if ix, ok := cols[n]; !ok || ix < 0 {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required columns not found: %s", strings.Join(missing, ", "))
	}
	return nil
}
