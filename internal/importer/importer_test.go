package importer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ryanbass99/et-office-portal/internal/docstore"
	"github.com/ryanbass99/et-office-portal/internal/docstore/memstore"
	pcsv "github.com/ryanbass99/et-office-portal/internal/parser/csv"
	"github.com/ryanbass99/et-office-portal/internal/writer"
)

var cutoff = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const headerCSV = `Invoice No,Invoice Date,Customer No,Salesperson,Freight,Discount
INV1,03/15/2024,ACCT1,7,5.00,2.50
INV2,01/01/2020,ACCT2,8,0,0
,03/20/2024,ACCT3,9,0,0
INV4,garbage,ACCT4,9,0,0
`

const detailCSV = `Invoice No,Line No,Item Code,Item Description,Qty Shipped,Unit Price,Extension
INV1,1,WID-1,Widget,1,10.50,10.50
INV1,2,BOLT,Bolt box,100,25.00,"$25,00"
INV2,1,WID-1,Widget,1,10.50,10.50
INV1,3,,,0,0,0
`

func newReader(t *testing.T, src string) *pcsv.Reader {
	t.Helper()
	r, err := pcsv.NewReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	return r
}

func runImport(t *testing.T, store *memstore.Store) (*HeaderResult, *DetailResult) {
	t.Helper()
	ctx := context.Background()
	w := writer.New(store, writer.Config{BatchSize: 2, MaxInFlight: 1})

	hdr, err := ImportHeaders(ctx, newReader(t, headerCSV), cutoff, w)
	if err != nil {
		t.Fatalf("ImportHeaders: %v", err)
	}
	det, err := ImportDetails(ctx, newReader(t, detailCSV), hdr, w, nil)
	if err != nil {
		t.Fatalf("ImportDetails: %v", err)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush before finalize: %v", err)
	}
	if _, err := Finalize(ctx, hdr, det, w); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("final flush: %v", err)
	}
	return hdr, det
}

func TestHeaderWindowFilter(t *testing.T) {
	store := memstore.New()
	hdr, _ := runImport(t, store)

	c := hdr.Counts
	if c.RowsRead != 4 || c.Written != 1 {
		t.Fatalf("header counts = %+v; want 4 read, 1 written", c)
	}
	if c.SkippedNoKey != 1 {
		t.Fatalf("SkippedNoKey = %d; want 1", c.SkippedNoKey)
	}
	// Pre-cutoff and unparsable dates both count as out-of-window.
	if c.SkippedOutOfWindow != 2 {
		t.Fatalf("SkippedOutOfWindow = %d; want 2", c.SkippedOutOfWindow)
	}

	if _, ok := hdr.InWindow["INV1"]; !ok {
		t.Fatalf("INV1 missing from in-window set")
	}
	if _, ok := hdr.InWindow["INV2"]; ok {
		t.Fatalf("pre-cutoff INV2 admitted to the window")
	}

	doc, err := store.Get(context.Background(), InvoicePath("INV1"))
	if err != nil {
		t.Fatalf("Get INV1: %v", err)
	}
	if doc["rep_code"] != "0007" {
		t.Fatalf("rep_code = %v; want zero-padded 0007", doc["rep_code"])
	}
	if doc["account_id"] != "ACCT1" {
		t.Fatalf("account_id = %v", doc["account_id"])
	}
}

func TestDetailWindowJoinAndTotals(t *testing.T) {
	store := memstore.New()
	_, det := runImport(t, store)

	c := det.Counts
	if c.RowsRead != 4 || c.Written != 2 {
		t.Fatalf("detail counts = %+v; want 4 read, 2 written", c)
	}
	if c.SkippedNotInWindow != 1 {
		t.Fatalf("SkippedNotInWindow = %d; want 1 (INV2 line)", c.SkippedNotInWindow)
	}
	if c.SkippedNoise != 1 {
		t.Fatalf("SkippedNoise = %d; want 1 (blank item and description)", c.SkippedNoise)
	}

	// 10.50 plus "$25,00" parsed as 2500.
	if got := det.Totals["INV1"]; got != 2510.50 {
		t.Fatalf("Totals[INV1] = %v; want 2510.50", got)
	}

	line, err := store.Get(context.Background(), LinePath("INV1", "INV1-2"))
	if err != nil {
		t.Fatalf("Get line: %v", err)
	}
	if line["extension_amt"] != 2500.0 {
		t.Fatalf("extension_amt = %v; want 2500", line["extension_amt"])
	}

	// Aggregates land back on the header with freight and discount applied.
	inv, err := store.Get(context.Background(), InvoicePath("INV1"))
	if err != nil {
		t.Fatalf("Get INV1: %v", err)
	}
	if inv["merchandise_total"] != 2510.50 {
		t.Fatalf("merchandise_total = %v", inv["merchandise_total"])
	}
	if inv["computed_total"] != 2510.50+5.00-2.50 {
		t.Fatalf("computed_total = %v", inv["computed_total"])
	}
}

func TestImportIsIdempotent(t *testing.T) {
	store := memstore.New()
	runImport(t, store)
	paths := store.Paths()
	inv1, _ := store.Get(context.Background(), InvoicePath("INV1"))

	runImport(t, store)
	paths2 := store.Paths()
	inv2, _ := store.Get(context.Background(), InvoicePath("INV1"))

	if len(paths) != len(paths2) {
		t.Fatalf("re-import changed doc count: %d vs %d", len(paths), len(paths2))
	}
	if inv1["computed_total"] != inv2["computed_total"] {
		t.Fatalf("re-import changed totals: %v vs %v", inv1["computed_total"], inv2["computed_total"])
	}
}

func TestDuplicateHeaderKeysLastWriteWins(t *testing.T) {
	src := `Invoice No,Invoice Date,Customer No,Salesperson,Freight,Discount
INV1,03/15/2024,ACCT1,7,1.00,0
INV1,03/16/2024,ACCT9,8,9.00,0
`
	store := memstore.New()
	ctx := context.Background()
	w := writer.New(store, writer.Config{MaxInFlight: 1})

	hdr, err := ImportHeaders(ctx, newReader(t, src), cutoff, w)
	if err != nil {
		t.Fatalf("ImportHeaders: %v", err)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if hdr.InWindow["INV1"].AccountID != "ACCT9" {
		t.Fatalf("in-window meta = %+v; want last row's", hdr.InWindow["INV1"])
	}
	doc, _ := store.Get(ctx, InvoicePath("INV1"))
	if doc["account_id"] != "ACCT9" || doc["freight"] != 9.0 {
		t.Fatalf("stored header = %v; want last row's values", doc)
	}
}

func TestMissingRequiredColumnsFailFast(t *testing.T) {
	src := "Some Col,Other Col\nx,y\n"
	w := writer.New(memstore.New(), writer.Config{})
	if _, err := ImportHeaders(context.Background(), newReader(t, src), cutoff, w); err == nil {
		t.Fatalf("expected ImportHeaders to fail without key columns")
	}
	hdr := &HeaderResult{InWindow: map[string]HeaderMeta{}}
	if _, err := ImportDetails(context.Background(), newReader(t, src), hdr, w, nil); err == nil {
		t.Fatalf("expected ImportDetails to fail without key columns")
	}
}

func TestLineDocIDDeterminism(t *testing.T) {
	a := lineDocID("INV1", "", 7)
	b := lineDocID("INV1", "", 7)
	if a != b {
		t.Fatalf("hashed line ids diverged: %q vs %q", a, b)
	}
	if lineDocID("INV1", "3", 7) != "INV1-3" {
		t.Fatalf("line-number id = %q; want INV1-3", lineDocID("INV1", "3", 7))
	}
	if a == lineDocID("INV2", "", 7) {
		t.Fatalf("different parents produced the same hashed id")
	}
	if a == lineDocID("INV1", "", 8) {
		t.Fatalf("different rows produced the same hashed id")
	}
}

// Two byte-identical rows with no line number are two sales, not one: each
// must persist as its own document so the stored lines sum to the invoice
// aggregate.
func TestDuplicateLinesWithoutLineNumbersStayDistinct(t *testing.T) {
	headerSrc := `Invoice No,Invoice Date,Customer No,Salesperson,Freight,Discount
INV1,03/15/2024,ACCT1,7,0,0
`
	detailSrc := `Invoice No,Item Code,Extension
INV1,WID-1,10.50
INV1,WID-1,10.50
`
	store := memstore.New()
	ctx := context.Background()
	w := writer.New(store, writer.Config{MaxInFlight: 1})

	hdr, err := ImportHeaders(ctx, newReader(t, headerSrc), cutoff, w)
	if err != nil {
		t.Fatalf("ImportHeaders: %v", err)
	}
	det, err := ImportDetails(ctx, newReader(t, detailSrc), hdr, w, nil)
	if err != nil {
		t.Fatalf("ImportDetails: %v", err)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if det.Counts.Written != 2 {
		t.Fatalf("written = %d; want 2", det.Counts.Written)
	}
	if det.Totals["INV1"] != 21.0 {
		t.Fatalf("Totals[INV1] = %v; want 21", det.Totals["INV1"])
	}

	var stored float64
	lines := 0
	for _, p := range store.Paths() {
		if docstore.Collection(p) != LineCollection {
			continue
		}
		lines++
		doc, err := store.Get(ctx, p)
		if err != nil {
			t.Fatalf("Get %s: %v", p, err)
		}
		stored += doc["extension_amt"].(float64)
	}
	if lines != 2 {
		t.Fatalf("persisted %d line docs; want 2 (paths %v)", lines, store.Paths())
	}
	if stored != det.Totals["INV1"] {
		t.Fatalf("stored lines sum to %v but the accumulated total is %v", stored, det.Totals["INV1"])
	}
}
