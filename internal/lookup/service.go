// Package lookup answers the interactive "who bought item X" and "which
// similar accounts have not bought it" queries.
//
// The service is stateless and reads only from the document store, so it is
// safe to share one instance across concurrent requests. It never sees the
// importers; freshness comes from whatever the last import run wrote.
//
// Empty results are answers, not errors. Only store connectivity/permission
// failures surface as errors, and those are wrapped in ErrService so callers
// can map every one of them to a single user-visible failure.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ryanbass99/et-office-portal/internal/docstore"
	"github.com/ryanbass99/et-office-portal/internal/fields"
	"github.com/ryanbass99/et-office-portal/internal/importer"
	"github.com/ryanbass99/et-office-portal/internal/index"
)

// ErrService wraps every store failure the service propagates.
var ErrService = errors.New("lookup service error")

const (
	// DefaultMaxLines caps the line scan per item query.
	DefaultMaxLines = 500

	// MaxOpportunities bounds the opportunity result size regardless of
	// what the caller asks for.
	MaxOpportunities = 25
)

// Buyer is an account that purchased the queried item, tiered by its
// trailing sales.
type Buyer struct {
	AccountID     string
	Name          string
	TrailingSales float64
	Tier          Tier
}

// Service executes lookups against a document store.
type Service struct {
	store    docstore.Store
	maxLines int
}

// NewService returns a Service with default caps.
func NewService(store docstore.Store) *Service {
	return &Service{store: store, maxLines: DefaultMaxLines}
}

// BuyersFromIndex consults the precomputed inverted index. ok is false when
// the key has no entry; that is not an error.
func (s *Service) BuyersFromIndex(ctx context.Context, itemCode, repCode string) ([]string, bool, error) {
	k := index.Key{ItemCode: itemCode, RepCode: fields.PadIdentifier(repCode, importer.RepCodeWidth)}
	doc, err := s.store.Get(ctx, k.Path())
	if docstore.IsNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, svcErr(err)
	}
	return stringList(doc["accounts"]), true, nil
}

// BuyersFor performs the live multi-hop join: lines matching the item
// (exact, then prefix fallback) → parent invoices → accounts, scoped to the
// given rep and tiered by trailing sales. Result is sorted by trailing
// sales descending.
func (s *Service) BuyersFor(ctx context.Context, itemCode, repCode string) ([]Buyer, error) {
	rep := fields.PadIdentifier(repCode, importer.RepCodeWidth)

	lines, err := s.findLines(ctx, itemCode)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}

	// Distinct parent invoice keys, in scan order.
	seen := make(map[string]struct{})
	var parents []string
	for _, l := range lines {
		p := docstore.ParentKey(l.Path)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		parents = append(parents, p)
	}

	// Parent invoices → account ids, keeping only this rep's invoices.
	accountIDs := make(map[string]struct{})
	for _, p := range parents {
		doc, err := s.store.Get(ctx, importer.InvoiceCollection+"/"+p)
		if docstore.IsNotFound(err) {
			continue // orphaned line; skip, not an error
		}
		if err != nil {
			return nil, svcErr(err)
		}
		if str(doc["rep_code"]) != rep {
			continue
		}
		if id := str(doc["account_id"]); id != "" {
			accountIDs[id] = struct{}{}
		}
	}

	var buyers []Buyer
	for id := range accountIDs {
		doc, err := s.store.Get(ctx, AccountPath(id))
		if docstore.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, svcErr(err)
		}
		buyers = append(buyers, buyerFromDoc(id, doc))
	}

	sort.Slice(buyers, func(i, j int) bool {
		if buyers[i].TrailingSales != buyers[j].TrailingSales {
			return buyers[i].TrailingSales > buyers[j].TrailingSales
		}
		return buyers[i].AccountID < buyers[j].AccountID
	})
	return buyers, nil
}

// BestPerTier keeps the highest-trailing-sales buyer per band. Bands with
// no buyer are absent from the map, not zero-filled.
func BestPerTier(buyers []Buyer) map[Tier]Buyer {
	best := make(map[Tier]Buyer)
	for _, b := range buyers {
		cur, ok := best[b.Tier]
		if !ok || b.TrailingSales > cur.TrailingSales {
			best[b.Tier] = b
		}
	}
	return best
}

// Opportunities scans the rep's full account set (primary and secondary rep
// fields, unioned and de-duplicated), keeps accounts in the requested tier
// that are not already buyers, and returns the top limit by trailing sales.
func (s *Service) Opportunities(ctx context.Context, repCode string, tier Tier, buyers []Buyer, limit int) ([]Buyer, error) {
	rep := fields.PadIdentifier(repCode, importer.RepCodeWidth)
	if limit <= 0 || limit > MaxOpportunities {
		limit = MaxOpportunities
	}

	bought := make(map[string]struct{}, len(buyers))
	for _, b := range buyers {
		bought[b.AccountID] = struct{}{}
	}

	accounts := make(map[string]Buyer)
	for _, field := range []string{"rep_code", "rep_code_2"} {
		if err := s.scanAccounts(ctx, field, rep, accounts); err != nil {
			return nil, err
		}
	}

	var out []Buyer
	for id, b := range accounts {
		if b.Tier != tier {
			continue
		}
		if _, dup := bought[id]; dup {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TrailingSales != out[j].TrailingSales {
			return out[i].TrailingSales > out[j].TrailingSales
		}
		return out[i].AccountID < out[j].AccountID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// findLines queries line documents by exact item code first, then falls
// back to a prefix match when the exact query comes up empty.
func (s *Service) findLines(ctx context.Context, itemCode string) ([]docstore.Snapshot, error) {
	exact, err := s.queryLines(ctx, docstore.Filter{Field: "item_code", Op: docstore.OpEq, Value: itemCode})
	if err != nil || len(exact) > 0 {
		return exact, err
	}
	return s.queryLines(ctx, docstore.Filter{Field: "item_code", Op: docstore.OpPrefix, Value: itemCode})
}

func (s *Service) queryLines(ctx context.Context, f docstore.Filter) ([]docstore.Snapshot, error) {
	var out []docstore.Snapshot
	cursor := ""
	for {
		page, err := s.store.Query(ctx, docstore.Query{
			Collection: importer.LineCollection,
			Group:      true,
			Filters:    []docstore.Filter{f},
			Limit:      s.maxLines - len(out),
			Cursor:     cursor,
		})
		if err != nil {
			return nil, svcErr(err)
		}
		out = append(out, page.Docs...)
		if page.NextCursor == "" || len(out) >= s.maxLines {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

// scanAccounts pages through accounts whose field equals rep, merging them
// into dst keyed by account id.
func (s *Service) scanAccounts(ctx context.Context, field, rep string, dst map[string]Buyer) error {
	cursor := ""
	for {
		page, err := s.store.Query(ctx, docstore.Query{
			Collection: importer.AccountCollection,
			Filters:    []docstore.Filter{{Field: field, Op: docstore.OpEq, Value: rep}},
			Cursor:     cursor,
		})
		if err != nil {
			return svcErr(err)
		}
		for _, snap := range page.Docs {
			id := str(snap.Doc["account_id"])
			if id == "" {
				continue
			}
			if _, dup := dst[id]; !dup {
				dst[id] = buyerFromDoc(id, snap.Doc)
			}
		}
		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

// AccountPath returns the account document path for an account id.
func AccountPath(id string) string {
	return importer.AccountCollection + "/" + fields.SanitizeKey(id)
}

func buyerFromDoc(id string, doc docstore.Document) Buyer {
	sales := num(doc["trailing_sales"])
	return Buyer{
		AccountID:     id,
		Name:          str(doc["name"]),
		TrailingSales: sales,
		Tier:          FromSales(sales),
	}
}

func svcErr(err error) error {
	return fmt.Errorf("%w: %v", ErrService, err)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
