package memstore

import (
	"context"
	"testing"

	"github.com/ryanbass99/et-office-portal/internal/docstore"
)

func mustWrite(t *testing.T, s *Store, writes ...docstore.Write) {
	t.Helper()
	if err := s.BatchWrite(context.Background(), writes); err != nil {
		t.Fatalf("BatchWrite: %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "invoices/NOPE")
	if !docstore.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestMergeUpsert(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustWrite(t, s, docstore.Write{
		Path: "invoices/INV1", Merge: true,
		Doc: docstore.Document{"invoice_no": "INV1", "freight": 5.0},
	})
	mustWrite(t, s, docstore.Write{
		Path: "invoices/INV1", Merge: true,
		Doc: docstore.Document{"merchandise_total": 100.0},
	})

	doc, err := s.Get(ctx, "invoices/INV1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc["invoice_no"] != "INV1" || doc["freight"] != 5.0 || doc["merchandise_total"] != 100.0 {
		t.Fatalf("merge lost fields: %v", doc)
	}

	// Full replace drops fields the new doc does not carry.
	mustWrite(t, s, docstore.Write{
		Path: "invoices/INV1",
		Doc:  docstore.Document{"invoice_no": "INV1"},
	})
	doc, _ = s.Get(ctx, "invoices/INV1")
	if _, ok := doc["freight"]; ok {
		t.Fatalf("replace kept stale field: %v", doc)
	}
}

func TestRejectsMalformedPaths(t *testing.T) {
	s := New()
	for _, p := range []string{"", "invoices", "invoices/INV1/lines", "/invoices/INV1", "invoices//x"} {
		err := s.BatchWrite(context.Background(), []docstore.Write{{Path: p, Doc: docstore.Document{}}})
		if docstore.ClassOf(err) != docstore.ClassInvalidArgument {
			t.Fatalf("path %q: expected InvalidArgument, got %v", p, err)
		}
	}
}

func TestRejectsOversizedBatch(t *testing.T) {
	s := New()
	writes := make([]docstore.Write, docstore.MaxBatchOps+1)
	for i := range writes {
		writes[i] = docstore.Write{Path: "c/d", Doc: docstore.Document{}}
	}
	err := s.BatchWrite(context.Background(), writes)
	if docstore.ClassOf(err) != docstore.ClassInvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestQueryFiltersAndOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustWrite(t, s,
		docstore.Write{Path: "accounts/A1", Doc: docstore.Document{"account_id": "A1", "rep_code": "0007", "trailing_sales": 500.0}},
		docstore.Write{Path: "accounts/A2", Doc: docstore.Document{"account_id": "A2", "rep_code": "0007", "trailing_sales": 12000.0}},
		docstore.Write{Path: "accounts/A3", Doc: docstore.Document{"account_id": "A3", "rep_code": "0009", "trailing_sales": 800.0}},
	)

	page, err := s.Query(ctx, docstore.Query{
		Collection: "accounts",
		Filters:    []docstore.Filter{{Field: "rep_code", Op: docstore.OpEq, Value: "0007"}},
		OrderBy:    &docstore.OrderBy{Field: "trailing_sales", Desc: true},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Docs) != 2 {
		t.Fatalf("matches = %d; want 2", len(page.Docs))
	}
	if page.Docs[0].Doc["account_id"] != "A2" {
		t.Fatalf("order wrong: %v", page.Docs)
	}

	n, err := s.Count(ctx, "accounts", []docstore.Filter{{Field: "trailing_sales", Op: docstore.OpGte, Value: 800.0}})
	if err != nil || n != 2 {
		t.Fatalf("Count = %d, %v; want 2", n, err)
	}
}

func TestGroupQueryCrossesParents(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustWrite(t, s,
		docstore.Write{Path: "invoices/INV1", Doc: docstore.Document{"invoice_no": "INV1"}},
		docstore.Write{Path: "invoices/INV1/lines/L1", Doc: docstore.Document{"item_code": "WID-1"}},
		docstore.Write{Path: "invoices/INV2/lines/L1", Doc: docstore.Document{"item_code": "WID-1"}},
		docstore.Write{Path: "invoices/INV2/lines/L2", Doc: docstore.Document{"item_code": "BOLT"}},
	)

	page, err := s.Query(ctx, docstore.Query{
		Collection: "lines",
		Group:      true,
		Filters:    []docstore.Filter{{Field: "item_code", Op: docstore.OpEq, Value: "WID-1"}},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(page.Docs) != 2 {
		t.Fatalf("group query matched %d docs; want 2", len(page.Docs))
	}
	for _, snap := range page.Docs {
		if docstore.ParentKey(snap.Path) == "" {
			t.Fatalf("line snapshot lost its parent: %s", snap.Path)
		}
	}

	// Prefix filter reaches both items under one parent.
	page, err = s.Query(ctx, docstore.Query{
		Collection: "lines",
		Group:      true,
		Filters:    []docstore.Filter{{Field: "item_code", Op: docstore.OpPrefix, Value: "WID"}},
	})
	if err != nil || len(page.Docs) != 2 {
		t.Fatalf("prefix group query = %d docs, %v; want 2", len(page.Docs), err)
	}
}

func TestQueryPagination(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C", "D", "E"} {
		mustWrite(t, s, docstore.Write{Path: "accounts/" + id, Doc: docstore.Document{"account_id": id}})
	}

	var got []string
	cursor := ""
	pages := 0
	for {
		page, err := s.Query(ctx, docstore.Query{Collection: "accounts", Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		pages++
		for _, snap := range page.Docs {
			got = append(got, snap.Path)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if len(got) != 5 || pages != 3 {
		t.Fatalf("paged %d docs over %d pages; want 5 over 3", len(got), pages)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("pagination order unstable: %v", got)
		}
	}
}

func TestDocsAreCopied(t *testing.T) {
	s := New()
	ctx := context.Background()
	src := docstore.Document{"accounts": []string{"A1"}}
	mustWrite(t, s, docstore.Write{Path: "item_buyers/WID__0007", Doc: src})

	src["accounts"].([]string)[0] = "MUTATED"
	doc, _ := s.Get(ctx, "item_buyers/WID__0007")
	list := doc["accounts"].([]string)
	if list[0] != "A1" {
		t.Fatalf("stored doc aliased caller memory: %v", list)
	}
}
