// This file adds a lightweight linter/validator for Run values. It performs
// static checks over a decoded Run and returns a list of issues (errors and
// warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"

	"github.com/ryanbass99/et-office-portal/internal/docstore"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be
	// surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path is a dotted path into
// the config (e.g. "store.kind"); Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error where needed.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Validate statically checks a Run. It does not mutate the run; callers
// decide whether warnings block.
func Validate(r Run) []Issue {
	var issues []Issue

	if r.Job == "" {
		issues = append(issues, Issue{SeverityWarning, "job",
			"job is empty; logs and metrics will use a generic label"})
	}
	if r.Headers.Path == "" {
		issues = append(issues, Issue{SeverityError, "headers.path", "header export path required"})
	}
	if r.Details.Path == "" {
		issues = append(issues, Issue{SeverityError, "details.path", "detail export path required"})
	}
	if r.Window.YearsBack <= 0 {
		issues = append(issues, Issue{SeverityError, "window.years_back",
			"years_back must be positive; the rolling window needs a length"})
	}

	switch r.Store.Kind {
	case "memory":
		if r.Store.DSN != "" {
			issues = append(issues, Issue{SeverityWarning, "store.dsn", "dsn ignored for the memory store"})
		}
	case "sqlite", "postgres":
		if r.Store.DSN == "" {
			issues = append(issues, Issue{SeverityError, "store.dsn",
				fmt.Sprintf("dsn required for store kind %q", r.Store.Kind)})
		}
	case "":
		issues = append(issues, Issue{SeverityError, "store.kind", "store kind required (memory, sqlite, postgres)"})
	default:
		issues = append(issues, Issue{SeverityError, "store.kind",
			fmt.Sprintf("unknown store kind %q", r.Store.Kind)})
	}

	if r.Writer.BatchSize > docstore.MaxBatchOps {
		issues = append(issues, Issue{SeverityError, "writer.batch_size",
			fmt.Sprintf("batch_size %d exceeds the store's %d-op commit ceiling", r.Writer.BatchSize, docstore.MaxBatchOps)})
	}
	if r.Writer.BatchSize < 0 || r.Writer.MaxAttempts < 0 || r.Writer.MaxInFlight < 0 {
		issues = append(issues, Issue{SeverityError, "writer", "writer settings must not be negative"})
	}

	return issues
}

// HasErrors reports whether any issue is SeverityError.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}
