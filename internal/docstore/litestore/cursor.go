package litestore

import (
	"encoding/json"
	"fmt"
)

// pageCursor marks the last row of a served page. Continuation is keyset
// based (strictly after this row under the query's sort order) rather than
// offset based, so writes landing between pages cannot skip or duplicate
// documents.
type pageCursor struct {
	Value any    `json:"v,omitempty"` // order-by field value, when the query has one
	Path  string `json:"p"`
}

func encodeCursor(c pageCursor) string {
	b, _ := json.Marshal(c)
	return string(b)
}

func decodeCursor(s string) (pageCursor, error) {
	var c pageCursor
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return pageCursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	if c.Path == "" {
		return pageCursor{}, fmt.Errorf("cursor missing path")
	}
	return c, nil
}

// keysetSQL renders the continuation predicate and its bind arguments.
// Without a sort field the order is path, so a plain path comparison
// suffices; with one, rows equal on the field continue past the cursor path.
func keysetSQL(field string, desc bool, cur pageCursor) (string, []any) {
	if field == "" || cur.Value == nil {
		return "path > ?", []any{cur.Path}
	}
	expr := fmt.Sprintf("json_extract(doc, '$.%s')", field)
	cmp := ">"
	if desc {
		cmp = "<"
	}
	cond := fmt.Sprintf("(%s %s ? OR (%s = ? AND path > ?))", expr, cmp, expr)
	return cond, []any{cur.Value, cur.Value, cur.Path}
}
