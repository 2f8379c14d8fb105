// Package memstore is an in-memory docstore.Store. It backs unit tests and
// the importer's dry-run mode; every operation works on deep copies so test
// fixtures cannot alias live store state.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ryanbass99/et-office-portal/internal/docstore"
)

const defaultPageSize = 1000

func init() {
	docstore.Register("memory", func(ctx context.Context, cfg docstore.OpenConfig) (docstore.Store, func(), error) {
		return New(), func() {}, nil
	})
}

// Store is a map-backed document store, safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	docs map[string]docstore.Document
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{docs: make(map[string]docstore.Document)}
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Paths returns all document paths in sorted order.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.docs))
	for p := range s.docs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, docstore.Errf(docstore.ClassTransient, "get", path, "canceled: %v", err)
	}
	s.mu.RLock()
	doc, ok := s.docs[path]
	s.mu.RUnlock()
	if !ok {
		return nil, docstore.Errf(docstore.ClassNotFound, "get", path, "no such document")
	}
	return copyDoc(doc), nil
}

func (s *Store) BatchWrite(ctx context.Context, writes []docstore.Write) error {
	if err := ctx.Err(); err != nil {
		return docstore.Errf(docstore.ClassTransient, "batch-write", "", "canceled: %v", err)
	}
	if len(writes) > docstore.MaxBatchOps {
		return docstore.Errf(docstore.ClassInvalidArgument, "batch-write", "",
			"%d ops exceeds ceiling %d", len(writes), docstore.MaxBatchOps)
	}
	for _, w := range writes {
		if !validDocPath(w.Path) {
			return docstore.Errf(docstore.ClassInvalidArgument, "batch-write", w.Path, "malformed document path")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range writes {
		if w.Merge {
			if cur, ok := s.docs[w.Path]; ok {
				merged := copyDoc(cur)
				for k, v := range w.Doc {
					merged[k] = copyValue(v)
				}
				s.docs[w.Path] = merged
				continue
			}
		}
		s.docs[w.Path] = copyDoc(w.Doc)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) (*docstore.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, docstore.Errf(docstore.ClassTransient, "query", q.Collection, "canceled: %v", err)
	}
	if q.Collection == "" {
		return nil, docstore.Errf(docstore.ClassInvalidArgument, "query", "", "collection required")
	}

	matches := s.match(q.Collection, q.Group, q.Filters)

	field, desc := "", false
	if q.OrderBy != nil {
		field, desc = q.OrderBy.Field, q.OrderBy.Desc
	}
	sort.Slice(matches, func(i, j int) bool {
		if field != "" {
			c := compareValues(matches[i].Doc[field], matches[j].Doc[field])
			if c != 0 {
				if desc {
					return c > 0
				}
				return c < 0
			}
		}
		return matches[i].Path < matches[j].Path
	})

	start := 0
	if q.Cursor != "" {
		for i, m := range matches {
			if m.Path == q.Cursor {
				start = i + 1
				break
			}
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	end := start + limit
	if end > len(matches) {
		end = len(matches)
	}

	page := &docstore.Page{Docs: matches[start:end]}
	if end < len(matches) && end > start {
		page.NextCursor = matches[end-1].Path
	}
	return page, nil
}

func (s *Store) Count(ctx context.Context, collection string, filters []docstore.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, docstore.Errf(docstore.ClassTransient, "count", collection, "canceled: %v", err)
	}
	return int64(len(s.match(collection, false, filters))), nil
}

// match snapshots every matching document under the read lock.
func (s *Store) match(collection string, group bool, filters []docstore.Filter) []docstore.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []docstore.Snapshot
	for path, doc := range s.docs {
		if group {
			if docstore.Collection(path) != collection {
				continue
			}
		} else if !inCollection(path, collection) {
			continue
		}
		if !matchesFilters(doc, filters) {
			continue
		}
		out = append(out, docstore.Snapshot{Path: path, Doc: copyDoc(doc)})
	}
	return out
}

// inCollection reports whether path is a direct member of collection,
// e.g. "invoices/INV1" is in "invoices" but "invoices/INV1/lines/L1" is not.
func inCollection(path, collection string) bool {
	if !strings.HasPrefix(path, collection+"/") {
		return false
	}
	rest := path[len(collection)+1:]
	return rest != "" && !strings.Contains(rest, "/")
}

func matchesFilters(doc docstore.Document, filters []docstore.Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok {
			return false
		}
		switch f.Op {
		case docstore.OpEq:
			if compareValues(v, f.Value) != 0 {
				return false
			}
		case docstore.OpGt:
			if compareValues(v, f.Value) <= 0 {
				return false
			}
		case docstore.OpGte:
			if compareValues(v, f.Value) < 0 {
				return false
			}
		case docstore.OpLt:
			if compareValues(v, f.Value) >= 0 {
				return false
			}
		case docstore.OpLte:
			if compareValues(v, f.Value) > 0 {
				return false
			}
		case docstore.OpPrefix:
			s1, ok1 := v.(string)
			s2, ok2 := f.Value.(string)
			if !ok1 || !ok2 || !strings.HasPrefix(s1, s2) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compareValues orders two field values. Numbers compare numerically across
// int/int64/float64; everything else falls back to string comparison.
func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := toString(a), toString(b)
	return strings.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// validDocPath requires an even, nonzero number of nonempty segments.
func validDocPath(path string) bool {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return false
	}
	segs := strings.Split(path, "/")
	if len(segs) == 0 || len(segs)%2 != 0 {
		return false
	}
	for _, s := range segs {
		if s == "" {
			return false
		}
	}
	return true
}

func copyDoc(doc docstore.Document) docstore.Document {
	out := make(docstore.Document, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
