// Package docstore defines the contract between the import/lookup pipeline
// and the hosted document database it writes to and reads from.
//
// The pipeline never talks to a concrete database directly; it depends only
// on the Store interface here, mirroring the storage abstraction pattern used
// across the project (narrow interface, concrete backends in subpackages:
// memstore, pgstore, litestore).
//
// Semantics the pipeline relies on:
//
//   - Documents are addressed by slash-separated paths with alternating
//     collection and document segments, e.g. "invoices/INV1" or
//     "invoices/INV1/lines/INV1-3".
//   - BatchWrite applies up to MaxBatchOps writes atomically per call. A
//     write with Merge=true upserts: absent documents are created, present
//     documents have only the supplied fields replaced.
//   - Query supports equality/range/prefix filters on top-level fields, an
//     optional sort, a result cap, and cursor-based continuation. Group
//     queries match a collection name at any nesting depth (used to find
//     line documents across all invoices).
package docstore

import "context"

// MaxBatchOps is the hard per-call operation ceiling for BatchWrite.
// Callers must keep batches at or below this; the batched writer stays
// below it with headroom.
const MaxBatchOps = 500

// Document is a flat field → value mapping. Values are restricted to JSON
// scalar types, []string and nested maps so every backend can round-trip
// them without schema knowledge.
type Document map[string]any

// Write is a single document mutation inside a batch.
type Write struct {
	Path  string
	Doc   Document
	Merge bool // true: merge-upsert fields; false: full replace
}

// Op is a filter comparison operator.
type Op string

const (
	OpEq     Op = "=="
	OpGt     Op = ">"
	OpGte    Op = ">="
	OpLt     Op = "<"
	OpLte    Op = "<="
	OpPrefix Op = "prefix" // string fields only
)

// Filter constrains a query to documents whose Field compares to Value
// under Op.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// OrderBy names the sort field for a query. Paths break ties so pagination
// is stable.
type OrderBy struct {
	Field string
	Desc  bool
}

// Query describes a paginated collection read.
type Query struct {
	// Collection is the collection name. With Group=false it must be a full
	// collection path ("invoices", "invoices/INV1/lines"); with Group=true it
	// is a bare name matched at any depth ("lines").
	Collection string
	Group      bool

	Filters []Filter
	OrderBy *OrderBy

	// Limit caps the page size. Backends may clamp it further; zero means
	// backend default.
	Limit int

	// Cursor continues a previous page. Opaque; pass Page.NextCursor back
	// unchanged.
	Cursor string
}

// Snapshot is one document returned by a query, with the path it lives at.
type Snapshot struct {
	Path string
	Doc  Document
}

// Page is one page of query results. NextCursor is empty on the last page.
type Page struct {
	Docs       []Snapshot
	NextCursor string
}

// Store is the document-database collaborator.
//
// Get returns a NotFound-classed error for absent documents. All methods
// classify failures via Error so callers can switch on ClassOf.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Query(ctx context.Context, q Query) (*Page, error)
	BatchWrite(ctx context.Context, writes []Write) error
	Count(ctx context.Context, collection string, filters []Filter) (int64, error)
}

// ParentKey extracts the parent document id from a child path, e.g.
// "invoices/INV1/lines/INV1-3" → "INV1". Returns "" when the path has no
// parent document segment.
func ParentKey(path string) string {
	segs := splitPath(path)
	if len(segs) < 4 {
		return ""
	}
	return segs[len(segs)-3]
}

// Collection returns the collection segment a document path belongs to,
// e.g. "invoices/INV1/lines/INV1-3" → "lines".
func Collection(path string) string {
	segs := splitPath(path)
	if len(segs) < 2 {
		return ""
	}
	return segs[len(segs)-2]
}

func splitPath(path string) []string {
	var segs []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				segs = append(segs, path[start:i])
			}
			start = i + 1
		}
	}
	return segs
}
