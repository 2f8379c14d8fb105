// Package pgstore implements docstore.Store on Postgres using pgx v5.
// Documents live in a single JSONB table keyed by path; merge-upserts use
// the jsonb concatenation operator so a batch is one round trip via
// pgx.Batch.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ryanbass99/et-office-portal/internal/docstore"
)

func init() {
	docstore.Register("postgres", func(ctx context.Context, cfg docstore.OpenConfig) (docstore.Store, func(), error) {
		return New(ctx, Config{DSN: cfg.DSN, Table: cfg.Table, AutoCreate: cfg.AutoCreate})
	})
}

// Config holds connection settings for the Postgres-backed store.
type Config struct {
	DSN string

	// Table is the fully qualified documents table, e.g. "public.documents".
	// Created on first use when AutoCreate is set.
	Table      string
	AutoCreate bool
}

// Store is a Postgres-backed implementation of docstore.Store.
type Store struct {
	pool *pgxpool.Pool
	cfg  Config
}

// New connects a pool and returns the store plus a close function.
func New(ctx context.Context, cfg Config) (*Store, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("pgstore: DSN must not be empty")
	}
	if cfg.Table == "" {
		cfg.Table = "public.documents"
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgstore: pgxpool: %w", err)
	}
	s := &Store{pool: pool, cfg: cfg}
	if cfg.AutoCreate {
		if err := s.ensureTable(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return s, func() { pool.Close() }, nil
}

func (s *Store) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			path       text PRIMARY KEY,
			parent     text NOT NULL,
			grp        text NOT NULL,
			doc        jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`, pgFQN(s.cfg.Table))
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return classify("batch-write", s.cfg.Table, fmt.Errorf("create table: %w", err))
	}
	ix := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (grp)`,
		pgIdent(indexName(s.cfg.Table)), pgFQN(s.cfg.Table))
	if _, err := s.pool.Exec(ctx, ix); err != nil {
		return classify("batch-write", s.cfg.Table, fmt.Errorf("create index: %w", err))
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT doc FROM %s WHERE path = $1", pgFQN(s.cfg.Table)), path,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, docstore.Errf(docstore.ClassNotFound, "get", path, "no such document")
	}
	if err != nil {
		return nil, classify("get", path, err)
	}
	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, docstore.Errf(docstore.ClassPermanent, "get", path, "decode doc: %v", err)
	}
	return doc, nil
}

func (s *Store) BatchWrite(ctx context.Context, writes []docstore.Write) error {
	if len(writes) == 0 {
		return nil
	}
	if len(writes) > docstore.MaxBatchOps {
		return docstore.Errf(docstore.ClassInvalidArgument, "batch-write", "",
			"%d ops exceeds ceiling %d", len(writes), docstore.MaxBatchOps)
	}

	table := pgFQN(s.cfg.Table)
	mergeSQL := fmt.Sprintf(`
		INSERT INTO %s (path, parent, grp, doc, updated_at) VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (path) DO UPDATE SET doc = %s.doc || EXCLUDED.doc, updated_at = now()`,
		table, table)
	replaceSQL := fmt.Sprintf(`
		INSERT INTO %s (path, parent, grp, doc, updated_at) VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (path) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		table)

	batch := &pgx.Batch{}
	for _, w := range writes {
		parent, grp, ok := splitDocPath(w.Path)
		if !ok {
			return docstore.Errf(docstore.ClassInvalidArgument, "batch-write", w.Path, "malformed document path")
		}
		raw, err := json.Marshal(w.Doc)
		if err != nil {
			return docstore.Errf(docstore.ClassInvalidArgument, "batch-write", w.Path, "encode doc: %v", err)
		}
		sql := replaceSQL
		if w.Merge {
			sql = mergeSQL
		}
		batch.Queue(sql, w.Path, parent, grp, raw)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range writes {
		if _, err := br.Exec(); err != nil {
			return classify("batch-write", "", err)
		}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) (*docstore.Page, error) {
	if q.Collection == "" {
		return nil, docstore.Errf(docstore.ClassInvalidArgument, "query", "", "collection required")
	}

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if q.Group {
		conds = append(conds, "grp = "+arg(q.Collection))
	} else {
		conds = append(conds, "parent = "+arg(q.Collection))
	}
	for _, f := range q.Filters {
		c, err := filterSQL(f, arg)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}

	orderField, desc := "", false
	if q.OrderBy != nil && q.OrderBy.Field != "" {
		orderField, desc = q.OrderBy.Field, q.OrderBy.Desc
	}
	order := "path"
	if orderField != "" {
		dir := "ASC"
		if desc {
			dir = "DESC"
		}
		order = fmt.Sprintf("(doc->'%s') %s, path", sqlField(orderField), dir)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}
	if q.Cursor != "" {
		cur, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, docstore.Errf(docstore.ClassInvalidArgument, "query", q.Collection, "bad cursor %q", q.Cursor)
		}
		conds = append(conds, keysetSQL(sqlField(orderField), desc, cur, arg))
	}

	sql := fmt.Sprintf("SELECT path, doc FROM %s WHERE %s ORDER BY %s LIMIT %d",
		pgFQN(s.cfg.Table), strings.Join(conds, " AND "), order, limit+1)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify("query", q.Collection, err)
	}
	defer rows.Close()

	page := &docstore.Page{}
	for rows.Next() {
		var (
			path string
			raw  []byte
		)
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, classify("query", q.Collection, err)
		}
		var doc docstore.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, docstore.Errf(docstore.ClassPermanent, "query", path, "decode doc: %v", err)
		}
		page.Docs = append(page.Docs, docstore.Snapshot{Path: path, Doc: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query", q.Collection, err)
	}

	if len(page.Docs) > limit {
		page.Docs = page.Docs[:limit]
		last := page.Docs[limit-1]
		cur := pageCursor{Path: last.Path}
		if orderField != "" {
			cur.Value = last.Doc[orderField]
		}
		page.NextCursor = encodeCursor(cur)
	}
	return page, nil
}

func (s *Store) Count(ctx context.Context, collection string, filters []docstore.Filter) (int64, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	conds = append(conds, "parent = "+arg(collection))
	for _, f := range filters {
		c, err := filterSQL(f, arg)
		if err != nil {
			return 0, err
		}
		conds = append(conds, c)
	}
	var n int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", pgFQN(s.cfg.Table), strings.Join(conds, " AND ")),
		args...,
	).Scan(&n)
	if err != nil {
		return 0, classify("count", collection, err)
	}
	return n, nil
}

// filterSQL renders one docstore.Filter as a jsonb condition. Numeric values
// compare through a ::numeric cast so "9999.99 < 10000" holds; strings use
// the ->> text operator.
func filterSQL(f docstore.Filter, arg func(any) string) (string, error) {
	field := sqlField(f.Field)
	switch f.Op {
	case docstore.OpEq, docstore.OpGt, docstore.OpGte, docstore.OpLt, docstore.OpLte:
		op := string(f.Op)
		if f.Op == docstore.OpEq {
			op = "="
		}
		if isNumeric(f.Value) {
			return fmt.Sprintf("(doc->>'%s')::numeric %s %s", field, op, arg(f.Value)), nil
		}
		return fmt.Sprintf("doc->>'%s' %s %s", field, op, arg(f.Value)), nil
	case docstore.OpPrefix:
		sv, ok := f.Value.(string)
		if !ok {
			return "", docstore.Errf(docstore.ClassInvalidArgument, "query", "", "prefix filter needs a string value")
		}
		return fmt.Sprintf("doc->>'%s' LIKE %s", field, arg(likeEscape(sv)+"%")), nil
	default:
		return "", docstore.Errf(docstore.ClassInvalidArgument, "query", "", "unsupported operator %q", f.Op)
	}
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int64, float64, float32:
		return true
	}
	return false
}

func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

// sqlField guards field names interpolated into jsonb accessors.
func sqlField(f string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, f)
}

// splitDocPath splits a document path into its parent collection path and
// bare collection name, validating segment parity.
func splitDocPath(path string) (parent, grp string, ok bool) {
	segs := strings.Split(path, "/")
	if len(segs) < 2 || len(segs)%2 != 0 {
		return "", "", false
	}
	for _, s := range segs {
		if s == "" {
			return "", "", false
		}
	}
	parent = strings.Join(segs[:len(segs)-1], "/")
	grp = segs[len(segs)-2]
	return parent, grp, true
}

// classify maps pgx/pgconn failures onto docstore error classes. SQLSTATE
// class 08 (connection), 53 (resources) and 57 (operator intervention,
// includes query_canceled) retry; 28/42501 are permission problems; 22/42
// are malformed requests.
func classify(op, path string, err error) *docstore.Error {
	class := docstore.ClassUnknown

	var pgErr *pgconn.PgError
	var netErr net.Error
	switch {
	case errors.As(err, &pgErr):
		code := pgErr.Code
		switch {
		case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"), strings.HasPrefix(code, "57"):
			class = docstore.ClassTransient
		case code == "42501", strings.HasPrefix(code, "28"):
			class = docstore.ClassPermanent
		case strings.HasPrefix(code, "22"), strings.HasPrefix(code, "42"):
			class = docstore.ClassInvalidArgument
		default:
			class = docstore.ClassPermanent
		}
	case errors.As(err, &netErr) && netErr.Timeout():
		class = docstore.ClassTransient
	case errors.Is(err, context.DeadlineExceeded):
		class = docstore.ClassTransient
	}

	return &docstore.Error{Class: class, Op: op, Path: path, Err: err}
}

func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

func indexName(table string) string {
	return strings.ReplaceAll(table, ".", "_") + "_grp_idx"
}
