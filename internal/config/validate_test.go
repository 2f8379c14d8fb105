package config

import (
	"encoding/json"
	"strings"
	"testing"
)

func validRun() Run {
	return Run{
		Job:     "nightly",
		Headers: FileSpec{Path: "exports/headers.csv"},
		Details: FileSpec{Path: "exports/details.csv"},
		Window:  WindowConfig{YearsBack: 2},
		Store:   StoreConfig{Kind: "sqlite", DSN: "file:portal.db"},
	}
}

func TestValidateAcceptsGoodRun(t *testing.T) {
	issues := Validate(validRun())
	if HasErrors(issues) {
		t.Fatalf("unexpected errors: %v", issues)
	}
}

func TestValidateCatchesMissingPieces(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Run)
		path   string
	}{
		{"no header path", func(r *Run) { r.Headers.Path = "" }, "headers.path"},
		{"no detail path", func(r *Run) { r.Details.Path = "" }, "details.path"},
		{"zero window", func(r *Run) { r.Window.YearsBack = 0 }, "window.years_back"},
		{"no store kind", func(r *Run) { r.Store.Kind = "" }, "store.kind"},
		{"unknown store kind", func(r *Run) { r.Store.Kind = "firebird" }, "store.kind"},
		{"sqlite without dsn", func(r *Run) { r.Store.DSN = "" }, "store.dsn"},
		{"oversized batch", func(r *Run) { r.Writer.BatchSize = 9000 }, "writer.batch_size"},
		{"negative writer", func(r *Run) { r.Writer.MaxAttempts = -1 }, "writer"},
	}
	for _, c := range cases {
		r := validRun()
		c.mutate(&r)
		issues := Validate(r)
		if !HasErrors(issues) {
			t.Fatalf("%s: expected an error issue, got %v", c.name, issues)
		}
		found := false
		for _, iss := range issues {
			if iss.Severity == SeverityError && iss.Path == c.path {
				found = true
			}
		}
		if !found {
			t.Fatalf("%s: no error at path %q in %v", c.name, c.path, issues)
		}
	}
}

func TestValidateWarningsDoNotBlock(t *testing.T) {
	r := validRun()
	r.Job = ""
	issues := Validate(r)
	if HasErrors(issues) {
		t.Fatalf("empty job should only warn: %v", issues)
	}
	if len(issues) != 1 || issues[0].Severity != SeverityWarning {
		t.Fatalf("issues = %v; want one warning", issues)
	}
	if !strings.Contains(issues[0].Error(), "warning") {
		t.Fatalf("Issue.Error() = %q", issues[0].Error())
	}
}

func TestMemoryStoreNeedsNoDSN(t *testing.T) {
	r := validRun()
	r.Store = StoreConfig{Kind: "memory"}
	if HasErrors(Validate(r)) {
		t.Fatalf("memory store should not require a dsn")
	}
}

func TestOptionsTypedAccess(t *testing.T) {
	raw := `{"comma": "|", "strict": true, "limit": 42, "label": 7}`
	var o Options
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if o.Rune("comma", ',') != '|' {
		t.Fatalf("Rune = %q", o.Rune("comma", ','))
	}
	if !o.Bool("strict", false) {
		t.Fatalf("Bool lookup failed")
	}
	if o.Int("limit", 0) != 42 {
		t.Fatalf("Int = %d", o.Int("limit", 0))
	}
	// Wrong-typed and absent keys fall back to defaults.
	if o.String("label", "dft") != "dft" {
		t.Fatalf("String on non-string should default")
	}
	if o.Rune("missing", ';') != ';' {
		t.Fatalf("absent key should default")
	}
}

func TestOptionsNullDecodesEmpty(t *testing.T) {
	var fs FileSpec
	if err := json.Unmarshal([]byte(`{"path":"x","options":null}`), &fs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fs.Options == nil {
		t.Fatalf("options should decode to an empty map, not nil")
	}
	if fs.Options.Int("anything", 9) != 9 {
		t.Fatalf("empty options must serve defaults")
	}
}
