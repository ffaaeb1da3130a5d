// Package types defines the Store and Statement interfaces, entity types,
// configuration, and standard errors for the stockpile storage layer.
package types

import (
	"context"
	"errors"
)

// Store is the uniform adapter contract implemented by every backend.
// Callers attach with a Config, prepare statements, and detach when done.
// A Store is safe for use from a single goroutine; backends document any
// stronger guarantees they provide.
type Store interface {
	// Prepare returns a Statement for the given query text. Translation
	// errors are deferred to the first Run/Get/All call so that Prepare
	// mirrors the contract of an embedded prepared statement.
	Prepare(query string) Statement

	// Attach connects the Store to its backend. Returns ErrAlreadyAttached
	// if called while attached.
	Attach(config Config) error

	// Detach releases backend resources, flushing any pending persistence
	// work within the bounds of ctx. Idempotent: multiple calls succeed.
	// After Detach, statement calls return ErrStoreDetached.
	Detach(ctx context.Context) error

	// Mode reports the backend kind currently serving statements.
	Mode() Mode
}

// Statement executes one prepared query against a backend. Parameters are
// a flat list matching '?' placeholders left to right; a single []any
// argument is accepted in place of the flat list.
type Statement interface {
	// Run executes a write statement (INSERT, UPDATE, DELETE).
	Run(ctx context.Context, params ...any) (Result, error)

	// Get returns the first matching row, or nil with a nil error when no
	// row matches or the backend timed out on a read.
	Get(ctx context.Context, params ...any) (Row, error)

	// All returns every matching row. Timeouts degrade to an empty slice.
	All(ctx context.Context, params ...any) ([]Row, error)
}

// Row is one result row keyed by column or field name.
type Row map[string]any

// Result reports the outcome of a write. LastInsertID is the canonical
// string form of the generated key: decimal digits for integer-keyed
// backends, the native key's hex form for the document backend. Empty for
// statements that generate no key.
type Result struct {
	LastInsertID string
	Changes      int64
}

// Store lifecycle and transport errors.
var (
	ErrStoreDetached    = errors.New("store is detached")
	ErrAlreadyAttached  = errors.New("store is already attached")
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Translation errors. These are contract precondition failures and always
// fail the current operation loudly.
var (
	ErrParamCount       = errors.New("placeholder and parameter counts differ")
	ErrUnsupportedQuery = errors.New("unsupported query shape")
)

// FlattenParams unwraps a single []any argument into the flat parameter
// list. Callers historically passed either form interchangeably.
func FlattenParams(params []any) []any {
	if len(params) == 1 {
		if inner, ok := params[0].([]any); ok {
			return inner
		}
	}
	return params
}
