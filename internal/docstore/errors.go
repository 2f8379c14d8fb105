package docstore

import (
	"errors"
	"fmt"
)

// Class partitions store failures by how callers should react. The decision
// is made once, at the backend boundary, instead of by matching message text
// at call sites.
type Class int

const (
	// ClassUnknown is a failure the backend could not classify. Treated as
	// permanent by the writer.
	ClassUnknown Class = iota

	// ClassTransient covers quota, throughput, timeout and temporary
	// unavailability signatures. Safe to retry with backoff.
	ClassTransient

	// ClassPermanent covers permission and schema failures. Retrying will
	// not help.
	ClassPermanent

	// ClassInvalidArgument covers malformed requests built by the caller
	// (bad path, oversized batch, unsupported filter).
	ClassInvalidArgument

	// ClassNotFound is returned by Get for absent documents. Not an error
	// condition for most callers.
	ClassNotFound
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassInvalidArgument:
		return "invalid-argument"
	case ClassNotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// Error is the classified error type returned by Store implementations.
type Error struct {
	Class Class
	Op    string // "get", "query", "batch-write", "count"
	Path  string // document path or collection, when known
	Err   error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("docstore: %s %s: %s: %v", e.Op, e.Path, e.Class, e.Err)
	}
	return fmt.Sprintf("docstore: %s: %s: %v", e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errf builds a classified Error with a formatted cause.
func Errf(class Class, op, path, format string, a ...any) *Error {
	return &Error{Class: class, Op: op, Path: path, Err: fmt.Errorf(format, a...)}
}

// ClassOf extracts the Class from err, or ClassUnknown when err is not a
// docstore error.
func ClassOf(err error) Class {
	var de *Error
	if errors.As(err, &de) {
		return de.Class
	}
	return ClassUnknown
}

// IsTransient reports whether err should be retried with backoff.
func IsTransient(err error) bool { return ClassOf(err) == ClassTransient }

// IsNotFound reports whether err is an absent-document result.
func IsNotFound(err error) bool { return ClassOf(err) == ClassNotFound }
