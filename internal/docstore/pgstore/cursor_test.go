package pgstore

import (
	"strconv"
	"testing"
)

func TestCursorRoundTrip(t *testing.T) {
	cases := []pageCursor{
		{Path: "accounts/A4"},
		{Path: "accounts/A4", Value: "0007"},
		{Path: "accounts/A4", Value: 7000.0},
	}
	for _, c := range cases {
		got, err := decodeCursor(encodeCursor(c))
		if err != nil {
			t.Fatalf("decode(%+v): %v", c, err)
		}
		if got.Path != c.Path || got.Value != c.Value {
			t.Fatalf("round trip %+v -> %+v", c, got)
		}
	}

	for _, bad := range []string{"", "17", "{}", `{"v":1}`, "not json"} {
		if _, err := decodeCursor(bad); err == nil {
			t.Fatalf("decodeCursor(%q) should fail", bad)
		}
	}
}

func TestKeysetSQL(t *testing.T) {
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	// Path order: a single strict path comparison.
	cond := keysetSQL("", false, pageCursor{Path: "accounts/A4"}, arg)
	if cond != "path > $1" {
		t.Fatalf("path-only cond = %q", cond)
	}
	if len(args) != 1 || args[0] != "accounts/A4" {
		t.Fatalf("args = %v", args)
	}

	// Descending numeric order: strictly lower value, or equal value with a
	// later path.
	args = nil
	cond = keysetSQL("trailing_sales", true, pageCursor{Path: "accounts/A4", Value: 7000.0}, arg)
	want := "((doc->>'trailing_sales')::numeric < $1 OR ((doc->>'trailing_sales')::numeric = $2 AND path > $3))"
	if cond != want {
		t.Fatalf("cond = %q\nwant  %q", cond, want)
	}
	if len(args) != 3 || args[0] != 7000.0 || args[2] != "accounts/A4" {
		t.Fatalf("args = %v", args)
	}

	// String values compare as text, ascending.
	args = nil
	cond = keysetSQL("rep_code", false, pageCursor{Path: "accounts/A4", Value: "0007"}, arg)
	want = "(doc->>'rep_code' > $1 OR (doc->>'rep_code' = $2 AND path > $3))"
	if cond != want {
		t.Fatalf("cond = %q\nwant  %q", cond, want)
	}

	// A cursor whose last row lacked the sort field falls back to path order.
	args = nil
	cond = keysetSQL("trailing_sales", false, pageCursor{Path: "accounts/A4"}, arg)
	if cond != "path > $1" {
		t.Fatalf("nil-value cond = %q", cond)
	}
}
