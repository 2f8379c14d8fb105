// Package index builds the (item, rep) → accounts inverted index that backs
// the fast "who bought this" lookup.
//
// The builder rides the detail pass as a LineObserver, so it sees exactly
// the window-joined lines the importer writes, with no second pass over the
// file. Accumulation is wholly in memory: footprint scales with the number
// of distinct (item, rep) pairs, not with source rows — callers planning
// for very wide catalogs should size memory accordingly.
//
// Every key the run touches is rebuilt in full. An account whose purchases
// of an item have all aged out of the window disappears from that key on
// the next run; that is the intended rolling-window behavior.
package index

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/ryanbass99/et-office-portal/internal/docstore"
	"github.com/ryanbass99/et-office-portal/internal/fields"
	"github.com/ryanbass99/et-office-portal/internal/importer"
	"github.com/ryanbass99/et-office-portal/internal/writer"
)

// Collection is the inverted-index collection name.
const Collection = "item_buyers"

// Key addresses one index entry.
type Key struct {
	ItemCode string
	RepCode  string
}

// DocID returns the deterministic document id for a key.
func (k Key) DocID() string {
	return fields.SanitizeKey(k.ItemCode) + "__" + k.RepCode
}

// Path returns the full document path for a key.
func (k Key) Path() string { return Collection + "/" + k.DocID() }

// Builder accumulates the index across one import run.
type Builder struct {
	accounts map[Key]map[string]struct{}
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{accounts: make(map[Key]map[string]struct{})}
}

// ObserveLine implements importer.LineObserver. Lines without a resolvable
// account or rep contribute nothing; the index only answers questions about
// accounts it can actually name.
func (b *Builder) ObserveLine(parentKey string, meta importer.HeaderMeta, itemCode string) {
	if meta.AccountID == "" || meta.RepCode == "" {
		return
	}
	k := Key{ItemCode: itemCode, RepCode: meta.RepCode}
	set, ok := b.accounts[k]
	if !ok {
		set = make(map[string]struct{})
		b.accounts[k] = set
	}
	set[meta.AccountID] = struct{}{}
}

// Keys returns the number of distinct (item, rep) pairs accumulated.
func (b *Builder) Keys() int { return len(b.accounts) }

// Flush writes one full-replacement document per non-empty key: the
// deduplicated, sorted account list plus the key fields for querying.
func (b *Builder) Flush(ctx context.Context, w *writer.Writer) (int, error) {
	keys := make([]Key, 0, len(b.accounts))
	for k := range b.accounts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ItemCode != keys[j].ItemCode {
			return keys[i].ItemCode < keys[j].ItemCode
		}
		return keys[i].RepCode < keys[j].RepCode
	})

	for _, k := range keys {
		set := b.accounts[k]
		accounts := make([]string, 0, len(set))
		for a := range set {
			accounts = append(accounts, a)
		}
		sort.Strings(accounts)

		doc := docstore.Document{
			"item_code": k.ItemCode,
			"rep_code":  k.RepCode,
			"accounts":  accounts,
		}
		// Full replacement per key; merge would resurrect aged-out accounts.
		if err := w.Enqueue(ctx, k.Path(), doc, false); err != nil {
			return 0, fmt.Errorf("index flush: %w", err)
		}
	}

	log.Printf("index: keys=%d", len(keys))
	return len(keys), nil
}
