package index

import (
	"context"
	"testing"

	"github.com/ryanbass99/et-office-portal/internal/docstore/memstore"
	"github.com/ryanbass99/et-office-portal/internal/importer"
	"github.com/ryanbass99/et-office-portal/internal/writer"
)

func TestBuilderAccumulatesAndFlushes(t *testing.T) {
	b := NewBuilder()
	m1 := importer.HeaderMeta{AccountID: "ACCT1", RepCode: "0007"}
	m2 := importer.HeaderMeta{AccountID: "ACCT2", RepCode: "0007"}
	m3 := importer.HeaderMeta{AccountID: "ACCT3", RepCode: "0009"}

	b.ObserveLine("INV1", m1, "WID-1")
	b.ObserveLine("INV1", m1, "WID-1") // duplicate line, same account
	b.ObserveLine("INV2", m2, "WID-1")
	b.ObserveLine("INV3", m3, "WID-1") // other rep, separate key
	b.ObserveLine("INV1", m1, "BOLT")
	b.ObserveLine("INV4", importer.HeaderMeta{RepCode: "0007"}, "WID-1") // no account: ignored

	if b.Keys() != 3 {
		t.Fatalf("Keys() = %d; want 3", b.Keys())
	}

	store := memstore.New()
	ctx := context.Background()
	w := writer.New(store, writer.Config{MaxInFlight: 1})
	n, err := b.Flush(ctx, w)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("writer flush: %v", err)
	}
	if n != 3 {
		t.Fatalf("flushed %d keys; want 3", n)
	}

	doc, err := store.Get(ctx, Key{ItemCode: "WID-1", RepCode: "0007"}.Path())
	if err != nil {
		t.Fatalf("Get index doc: %v", err)
	}
	accounts, ok := doc["accounts"].([]string)
	if !ok {
		t.Fatalf("accounts field has type %T", doc["accounts"])
	}
	if len(accounts) != 2 || accounts[0] != "ACCT1" || accounts[1] != "ACCT2" {
		t.Fatalf("accounts = %v; want sorted [ACCT1 ACCT2]", accounts)
	}
}

func TestFlushReplacesStaleEntries(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()

	// First run: two accounts bought the item.
	b := NewBuilder()
	b.ObserveLine("INV1", importer.HeaderMeta{AccountID: "ACCT1", RepCode: "0007"}, "WID-1")
	b.ObserveLine("INV2", importer.HeaderMeta{AccountID: "ACCT2", RepCode: "0007"}, "WID-1")
	w := writer.New(store, writer.Config{MaxInFlight: 1})
	if _, err := b.Flush(ctx, w); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("writer flush: %v", err)
	}

	// Next run: ACCT2's purchase aged out of the window.
	b = NewBuilder()
	b.ObserveLine("INV1", importer.HeaderMeta{AccountID: "ACCT1", RepCode: "0007"}, "WID-1")
	w = writer.New(store, writer.Config{MaxInFlight: 1})
	if _, err := b.Flush(ctx, w); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("writer flush: %v", err)
	}

	doc, err := store.Get(ctx, Key{ItemCode: "WID-1", RepCode: "0007"}.Path())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	accounts := doc["accounts"].([]string)
	if len(accounts) != 1 || accounts[0] != "ACCT1" {
		t.Fatalf("stale account survived the rebuild: %v", accounts)
	}
}

func TestKeyDocID(t *testing.T) {
	k := Key{ItemCode: "WID/1 X", RepCode: "0007"}
	if k.DocID() != "WID_1_X__0007" {
		t.Fatalf("DocID = %q", k.DocID())
	}
	if k.Path() != Collection+"/"+k.DocID() {
		t.Fatalf("Path = %q", k.Path())
	}
}
