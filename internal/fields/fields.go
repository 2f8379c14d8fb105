// Package fields normalizes raw export values: case-insensitive column
// resolution, locale-tolerant amount parsing, fixed-format dates, rep-code
// padding, and storage-key sanitization.
//
// Every function here is pure. Parse failures yield zero values, never
// errors — the importers decide what a missing value means for a row.
package fields

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dateLayout is the only date format the accounting exports emit.
const dateLayout = "01/02/2006"

// Cols is a resolved column binding: logical field name → column index in
// the file's header, or -1 when no alias matched. Resolution happens once
// per file, not per row.
type Cols map[string]int

// Bind resolves each logical field's alias list against a header row,
// case-insensitively and ignoring surrounding space. The first alias that
// matches wins.
func Bind(header []string, aliases map[string][]string) Cols {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[foldKey(h)] = i
	}
	cols := make(Cols, len(aliases))
	for field, names := range aliases {
		cols[field] = -1
		for _, name := range names {
			if ix, ok := byName[foldKey(name)]; ok {
				cols[field] = ix
				break
			}
		}
	}
	return cols
}

// Get returns the trimmed cell for a logical field, or "" when the field
// did not resolve or the row is short.
func (c Cols) Get(values []string, field string) string {
	ix, ok := c[field]
	if !ok || ix < 0 || ix >= len(values) {
		return ""
	}
	return strings.TrimSpace(values[ix])
}

// Missing lists the logical fields that did not resolve to any column.
func (c Cols) Missing() []string {
	var out []string
	for field, ix := range c {
		if ix < 0 {
			out = append(out, field)
		}
	}
	return out
}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// amountScrubber strips currency symbols and any other rune that cannot be
// part of a number. NFKC first, so full-width digits and composed symbols
// from odd exports fold to ASCII before the filter.
var amountScrubber = transform.Chain(
	norm.NFKC,
	runes.Remove(runes.Predicate(func(r rune) bool {
		if unicode.Is(unicode.Sc, r) {
			return true
		}
		return !unicode.IsDigit(r) && r != '.' && r != '-' && r != '+'
	})),
)

// ParseAmount parses a money cell: thousands separators, currency symbols
// and stray spaces are stripped before parsing. Anything that still fails
// to parse is zero — a garbage amount never kills a row.
func ParseAmount(raw string) float64 {
	if raw == "" {
		return 0
	}
	cleaned, _, err := transform.String(amountScrubber, raw)
	if err != nil || cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseFixedDate parses MM/DD/YYYY. ok is false for any other shape so the
// caller can choose to skip the row; a bad date is not an error.
func ParseFixedDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) != len(dateLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// PadIdentifier zero-pads numeric identifiers to width so "7" and "0007"
// compare equal downstream. Non-numeric identifiers pass through unchanged,
// as do numeric ones already at or past the width.
func PadIdentifier(raw string, width int) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) >= width {
		return raw
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return raw
		}
	}
	return strings.Repeat("0", width-len(raw)) + raw
}

// SanitizeKey rewrites raw into a string safe to use as a document id:
// path separators and other reserved characters become underscores.
// Deterministic; distinct inputs may collide and that is acceptable for
// our key shapes.
func SanitizeKey(raw string) string {
	raw = strings.TrimSpace(raw)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '#', '?', '%', '[', ']', '*':
			return '_'
		}
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, raw)
}
