// Package config defines the JSON-serializable configuration model for an
// import run. It is intentionally small and explicit: run files live on
// disk, decode with the standard library, and travel through the program
// without additional glue.
//
// Example (trimmed):
//
//	{
//	  "job": "nightly-import",
//	  "headers": { "path": "exports/ar_invoices.csv" },
//	  "details": { "path": "exports/ar_invoice_lines.csv" },
//	  "window":  { "years_back": 2 },
//	  "store":   { "kind": "sqlite", "dsn": "file:portal.db" },
//	  "writer":  { "batch_size": 400, "max_in_flight": 4 }
//	}
package config

import "encoding/json"

// Run describes one full import run decoded from a run file.
type Run struct {
	// Job names the run for logs and metrics labels.
	Job string `json:"job"`

	// Headers and Details locate the two export files.
	Headers FileSpec `json:"headers"`
	Details FileSpec `json:"details"`

	Window WindowConfig `json:"window"`
	Store  StoreConfig  `json:"store"`
	Writer WriterConfig `json:"writer"`

	// SkipIndex disables the inverted-index build for this run.
	SkipIndex bool `json:"skip_index"`
}

// FileSpec locates one input file and carries parser tuning for it.
type FileSpec struct {
	// Path is the local filesystem path to the export file.
	Path string `json:"path"`

	// Options is a free-form bag interpreted by the CSV reader. Typical
	// keys: comma (string, first rune used).
	Options Options `json:"options"`
}

// WindowConfig sets the rolling admission window for header records.
type WindowConfig struct {
	// YearsBack is the trailing window length; cutoff = now − YearsBack.
	YearsBack int `json:"years_back"`
}

// StoreConfig selects the document-store backend.
type StoreConfig struct {
	// Kind is one of "memory", "sqlite", "postgres".
	Kind string `json:"kind"`

	// DSN is the backend connection string; unused for "memory".
	DSN string `json:"dsn"`

	// Table is the documents table for the postgres backend.
	Table string `json:"table"`

	// AutoCreate provisions the documents table on startup.
	AutoCreate bool `json:"auto_create"`
}

// WriterConfig tunes the batched writer.
type WriterConfig struct {
	BatchSize   int `json:"batch_size"`
	MaxAttempts int `json:"max_attempts"`
	MaxInFlight int `json:"max_in_flight"`
}

// Options fetches typed values from arbitrary JSON maps without a
// third-party configuration library. Minimal coercion only; defaults are
// returned when a key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers decode as float64,
// so float64 is accepted and cast.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def. Used for
// single-character settings such as the CSV delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// UnmarshalJSON makes a missing or null options object decode to a non-nil,
// empty Options map so call sites need no nil checks.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
