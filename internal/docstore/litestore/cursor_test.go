package litestore

import "testing"

func TestCursorRoundTrip(t *testing.T) {
	cases := []pageCursor{
		{Path: "invoices/INV1/lines/INV1-3"},
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

	for _, bad := range []string{"", "3", "{}", "not json"} {
		if _, err := decodeCursor(bad); err == nil {
			t.Fatalf("decodeCursor(%q) should fail", bad)
		}
	}
}

func TestKeysetSQL(t *testing.T) {
	cond, args := keysetSQL("", false, pageCursor{Path: "accounts/A4"})
	if cond != "path > ?" || len(args) != 1 || args[0] != "accounts/A4" {
		t.Fatalf("path-only = %q %v", cond, args)
	}

	cond, args = keysetSQL("trailing_sales", true, pageCursor{Path: "accounts/A4", Value: 7000.0})
	want := "(json_extract(doc, '$.trailing_sales') < ? OR (json_extract(doc, '$.trailing_sales') = ? AND path > ?))"
	if cond != want {
		t.Fatalf("cond = %q\nwant  %q", cond, want)
	}
	if len(args) != 3 || args[0] != 7000.0 || args[2] != "accounts/A4" {
		t.Fatalf("args = %v", args)
	}

	cond, args = keysetSQL("rep_code", false, pageCursor{Path: "accounts/A4", Value: "0007"})
	want = "(json_extract(doc, '$.rep_code') > ? OR (json_extract(doc, '$.rep_code') = ? AND path > ?))"
	if cond != want {
		t.Fatalf("cond = %q\nwant  %q", cond, want)
	}

	// Last row lacked the sort field: fall back to path order.
	cond, args = keysetSQL("trailing_sales", false, pageCursor{Path: "accounts/A4"})
	if cond != "path > ?" || len(args) != 1 {
		t.Fatalf("nil-value = %q %v", cond, args)
	}
}
