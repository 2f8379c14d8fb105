// Package litestore implements docstore.Store on SQLite via modernc.org/sqlite.
// It exists for single-box deployments and local replays of production
// exports; documents live as JSON text in one table and merge-upserts use
// SQLite's json_patch. Batches run inside one transaction, which stands in
// for the hosted store's atomic batch commit.
package litestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ryanbass99/et-office-portal/internal/docstore"
)

func init() {
	docstore.Register("sqlite", func(ctx context.Context, cfg docstore.OpenConfig) (docstore.Store, func(), error) {
		return Open(ctx, cfg.DSN)
	})
}

// Store is a SQLite-backed implementation of docstore.Store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and ensures the documents
// table exists. Returns the store plus a close function.
func Open(ctx context.Context, dsn string) (*Store, func(), error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, nil, fmt.Errorf("litestore: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("litestore: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("litestore: ping: %w", err)
	}

	// Single writer; avoid immediate SQLITE_BUSY under the async committer.
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;")
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL;")

	ddl := `CREATE TABLE IF NOT EXISTS documents (
		path   TEXT PRIMARY KEY,
		parent TEXT NOT NULL,
		grp    TEXT NOT NULL,
		doc    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS documents_grp_idx ON documents (grp);`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("litestore: create table: %w", err)
	}

	return &Store{db: db}, func() { db.Close() }, nil
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM documents WHERE path = ?", path).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.Errf(docstore.ClassNotFound, "get", path, "no such document")
	}
	if err != nil {
		return nil, classify("get", path, err)
	}
	var doc docstore.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("batch-write", "", err)
	}
	defer tx.Rollback()

	const mergeSQL = `INSERT INTO documents (path, parent, grp, doc) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET doc = json_patch(documents.doc, excluded.doc)`
	const replaceSQL = `INSERT INTO documents (path, parent, grp, doc) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET doc = excluded.doc`

	for _, w := range writes {
		parent, grp, ok := splitDocPath(w.Path)
		if !ok {
			return docstore.Errf(docstore.ClassInvalidArgument, "batch-write", w.Path, "malformed document path")
		}
		raw, err := json.Marshal(w.Doc)
		if err != nil {
			return docstore.Errf(docstore.ClassInvalidArgument, "batch-write", w.Path, "encode doc: %v", err)
		}
		stmt := replaceSQL
		if w.Merge {
			stmt = mergeSQL
		}
		if _, err := tx.ExecContext(ctx, stmt, w.Path, parent, grp, string(raw)); err != nil {
			return classify("batch-write", w.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classify("batch-write", "", err)
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
	if q.Group {
		conds = append(conds, "grp = ?")
	} else {
		conds = append(conds, "parent = ?")
	}
	args = append(args, q.Collection)

	for _, f := range q.Filters {
		c, a, err := filterSQL(f)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
		args = append(args, a)
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
		order = fmt.Sprintf("json_extract(doc, '$.%s') %s, path", sqlField(orderField), dir)
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
		c, a := keysetSQL(sqlField(orderField), desc, cur)
		conds = append(conds, c)
		args = append(args, a...)
	}

	sqlText := fmt.Sprintf("SELECT path, doc FROM documents WHERE %s ORDER BY %s LIMIT %d",
		strings.Join(conds, " AND "), order, limit+1)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, classify("query", q.Collection, err)
	}
	defer rows.Close()

	page := &docstore.Page{}
	for rows.Next() {
		var path, raw string
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, classify("query", q.Collection, err)
		}
		var doc docstore.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
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
	conds := []string{"parent = ?"}
	args := []any{collection}
	for _, f := range filters {
		c, a, err := filterSQL(f)
		if err != nil {
			return 0, err
		}
		conds = append(conds, c)
		args = append(args, a)
	}
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM documents WHERE "+strings.Join(conds, " AND "), args...,
	).Scan(&n)
	if err != nil {
		return 0, classify("count", collection, err)
	}
	return n, nil
}

func filterSQL(f docstore.Filter) (cond string, arg any, err error) {
	field := sqlField(f.Field)
	switch f.Op {
	case docstore.OpEq:
		return fmt.Sprintf("json_extract(doc, '$.%s') = ?", field), f.Value, nil
	case docstore.OpGt, docstore.OpGte, docstore.OpLt, docstore.OpLte:
		return fmt.Sprintf("json_extract(doc, '$.%s') %s ?", field, f.Op), f.Value, nil
	case docstore.OpPrefix:
		sv, ok := f.Value.(string)
		if !ok {
			return "", nil, docstore.Errf(docstore.ClassInvalidArgument, "query", "", "prefix filter needs a string value")
		}
		return fmt.Sprintf("json_extract(doc, '$.%s') LIKE ? ESCAPE '\\'", field), likeEscape(sv) + "%", nil
	default:
		return "", nil, docstore.Errf(docstore.ClassInvalidArgument, "query", "", "unsupported operator %q", f.Op)
	}
}

func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

func sqlField(f string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, f)
}

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
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-2], true
}

// classify maps driver failures onto docstore classes. SQLITE_BUSY and
// SQLITE_LOCKED retry; constraint and misuse errors are the caller's fault.
func classify(op, path string, err error) *docstore.Error {
	class := docstore.ClassUnknown

	var se *sqlite.Error
	switch {
	case errors.As(err, &se):
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT:
			class = docstore.ClassTransient
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_MISUSE, sqlite3.SQLITE_RANGE:
			class = docstore.ClassInvalidArgument
		case sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH, sqlite3.SQLITE_READONLY:
			class = docstore.ClassPermanent
		default:
			class = docstore.ClassPermanent
		}
	case errors.Is(err, context.DeadlineExceeded):
		class = docstore.ClassTransient
	}

	return &docstore.Error{Class: class, Op: op, Path: path, Err: err}
}
