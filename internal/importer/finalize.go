package importer

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/ryanbass99/et-office-portal/internal/docstore"
	"github.com/ryanbass99/et-office-portal/internal/writer"
)

// Finalize is the third pass: once every line of the run has been seen, it
// writes each touched invoice's aggregates back onto the header document.
// merchandise_total is the straight sum of the run's extension amounts;
// computed_total adds the freight and discount captured during the header
// pass, so no header is re-read from the store.
//
// The aggregate is a full overwrite per run, never an incremental patch.
func Finalize(ctx context.Context, hdr *HeaderResult, det *DetailResult, w *writer.Writer) (int, error) {
	keys := make([]string, 0, len(det.Totals))
	for k := range det.Totals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		meta := hdr.InWindow[key]
		merch := det.Totals[key]
		doc := docstore.Document{
			"merchandise_total": merch,
			"computed_total":    merch + meta.Freight - meta.Discount,
		}
		if err := w.Enqueue(ctx, InvoicePath(key), doc, true); err != nil {
			return 0, fmt.Errorf("finalize: %w", err)
		}
	}

	log.Printf("finalize: invoices=%d", len(keys))
	return len(keys), nil
}
