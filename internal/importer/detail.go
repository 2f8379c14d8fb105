package importer

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/zeebo/xxh3"

	"github.com/ryanbass99/et-office-portal/internal/docstore"
	"github.com/ryanbass99/et-office-portal/internal/fields"
	pcsv "github.com/ryanbass99/et-office-portal/internal/parser/csv"
	"github.com/ryanbass99/et-office-portal/internal/writer"
)

// ImportDetails runs the window-joined detail pass. It requires the fully
// materialized HeaderResult from ImportHeaders; lines whose parent key was
// not admitted by the window filter are skipped, everything else is written
// as a child of its invoice with a deterministic id so re-imports overwrite
// instead of duplicating.
//
// Amount semantics: the extension amount accumulates into Totals via
// ParseAmount, so an unparsable amount contributes zero but the line is
// still written as long as it carries an item code or description. Lines
// with neither are noise and are dropped.
func ImportDetails(ctx context.Context, r *pcsv.Reader, hdr *HeaderResult, w *writer.Writer, obs LineObserver) (*DetailResult, error) {
	cols := fields.Bind(r.Header(), DetailAliases)
	if err := requireCols(cols, "invoice_no", "item_code"); err != nil {
		return nil, fmt.Errorf("detail file: %w", err)
	}

	res := &DetailResult{Totals: make(map[string]float64)}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Next()
		if err != nil {
			break
		}
		res.Counts.RowsRead++

		parent := cols.Get(row.Values, "invoice_no")
		meta, inWindow := hdr.InWindow[parent]
		if parent == "" || !inWindow {
			res.Counts.SkippedNotInWindow++
			continue
		}

		item := cols.Get(row.Values, "item_code")
		desc := cols.Get(row.Values, "description")
		if item == "" && desc == "" {
			res.Counts.SkippedNoise++
			continue
		}

		ext := fields.ParseAmount(cols.Get(row.Values, "extension_amt"))
		res.Totals[parent] += ext

		doc := docstore.Document{
			"invoice_no":    parent,
			"item_code":     item,
			"description":   desc,
			"qty":           fields.ParseAmount(cols.Get(row.Values, "qty")),
			"unit_price":    fields.ParseAmount(cols.Get(row.Values, "unit_price")),
			"extension_amt": ext,
		}
		lineID := lineDocID(parent, cols.Get(row.Values, "line_no"), row.Line)
		if err := w.Enqueue(ctx, LinePath(parent, lineID), doc, true); err != nil {
			return nil, fmt.Errorf("detail pass: %w", err)
		}
		res.Counts.Written++

		if obs != nil && item != "" {
			obs.ObserveLine(parent, meta, item)
		}
	}

	log.Printf("details: read=%d written=%d not_in_range=%d noise=%d parents=%d",
		res.Counts.RowsRead, res.Counts.Written, res.Counts.SkippedNotInWindow,
		res.Counts.SkippedNoise, len(res.Totals))
	return res, nil
}

// lineDocID derives a deterministic child id. With a line number the id is
// readable ("INV1-3"); without one the physical row position discriminates,
// so byte-identical duplicate rows keep distinct documents while re-imports
// of the same file land on the same ids.
func lineDocID(parent, lineNo string, rowLine int) string {
	if lineNo != "" {
		return fields.SanitizeKey(parent) + "-" + fields.SanitizeKey(lineNo)
	}
	h := xxh3.HashString(parent + "\x00" + strconv.Itoa(rowLine))
	return fields.SanitizeKey(parent) + "-" + fmt.Sprintf("%016x", h)
}
