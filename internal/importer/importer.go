// Package importer implements the two-pass import of accounting flat-file
// exports: a rolling-window pass over invoice headers, a window-joined pass
// over invoice lines, and a finalizer that writes per-invoice aggregates.
//
// Pass ordering is a hard dependency, not a parallelism opportunity: the
// header pass must fully materialize its in-window key set before the
// detail pass starts, and the detail pass must finish before totals are
// final. State flows between passes by ownership — the HeaderResult returned
// by the header pass is consumed, read-only, by the detail pass.
package importer

import (
	"time"

	"github.com/ryanbass99/et-office-portal/internal/fields"
)

// Collection names in the document store.
const (
	InvoiceCollection = "invoices"
	LineCollection    = "lines"
	AccountCollection = "accounts"
)

// RepCodeWidth is the fixed width rep/salesperson codes are zero-padded to,
// so "7" and "0007" address the same owner everywhere downstream.
const RepCodeWidth = 4

// Column alias lists for the two export shapes. Field mappings are fixed
// per file shape; resolution is case-insensitive and happens once per file.
var (
	HeaderAliases = map[string][]string{
		"invoice_no":   {"Invoice No", "InvoiceNo", "Invoice Number", "Inv No"},
		"invoice_date": {"Invoice Date", "InvoiceDate", "Inv Date"},
		"account_id":   {"Customer No", "CustomerNo", "Cust No", "Account No"},
		"rep_code":     {"Salesperson", "Slsperson No", "SalespersonNo", "Rep No"},
		"freight":      {"Freight", "Freight Amt", "FreightAmt"},
		"discount":     {"Discount", "Discount Amt", "Trade Discount"},
	}

	DetailAliases = map[string][]string{
		"invoice_no":    {"Invoice No", "InvoiceNo", "Invoice Number", "Inv No"},
		"line_no":       {"Line No", "LineNo", "Line", "Seq No"},
		"item_code":     {"Item Code", "ItemCode", "Item No", "Item"},
		"description":   {"Item Description", "ItemDescription", "Description", "Desc"},
		"qty":           {"Qty Shipped", "QtyShipped", "Quantity", "Qty"},
		"unit_price":    {"Unit Price", "UnitPrice", "Price"},
		"extension_amt": {"Extension", "Ext Amt", "ExtensionAmt", "Extended Amt"},
	}
)

// HeaderMeta is what later passes need to know about an in-window invoice,
// captured during the header pass so the finalizer and index builder never
// re-read headers from the store.
type HeaderMeta struct {
	AccountID string
	RepCode   string // normalized, zero-padded
	Freight   float64
	Discount  float64
}

// HeaderResult is the header pass output, consumed by the detail pass and
// the finalizer. InWindow is keyed by raw natural key (invoice number).
// Single-writer during the pass, read-only afterwards.
type HeaderResult struct {
	Counts   HeaderCounts
	Cutoff   time.Time
	InWindow map[string]HeaderMeta
}

// HeaderCounts are the header pass row counters.
type HeaderCounts struct {
	RowsRead           int
	Written            int
	SkippedNoKey       int
	SkippedOutOfWindow int // missing or pre-cutoff timestamp
}

// DetailCounts are the detail pass row counters.
type DetailCounts struct {
	RowsRead           int
	Written            int
	SkippedNotInWindow int // parent key absent from the in-window set
	SkippedNoise       int // neither item code nor description
}

// DetailResult is the detail pass output. Totals maps invoice natural key →
// accumulated extension amount, finalized into aggregates by Finalize.
type DetailResult struct {
	Counts DetailCounts
	Totals map[string]float64
}

// LineObserver receives every written line during the detail pass. The
// inverted index builder implements this to share the window join without a
// second pass over the file.
type LineObserver interface {
	ObserveLine(parentKey string, meta HeaderMeta, itemCode string)
}

// InvoicePath returns the header document path for a natural key.
func InvoicePath(invoiceNo string) string {
	return InvoiceCollection + "/" + fields.SanitizeKey(invoiceNo)
}

// LinePath returns the child document path for a line id under its invoice.
func LinePath(invoiceNo, lineID string) string {
	return InvoicePath(invoiceNo) + "/" + LineCollection + "/" + lineID
}
