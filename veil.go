// Package veil provides a row-level-security layer for document-oriented,
// table-organized stores. It defines the document and cursor abstractions a
// backing store must expose, and the rls subpackage wraps such a store with
// per-table authorization predicates so that denied documents are
// indistinguishable from absent ones.
package veil

import (
	"context"
	"fmt"
	"strings"
)

// Reserved document fields populated by the store.
const (
	// FieldID holds the document identifier as a string.
	FieldID = "id"

	// FieldCreationTime holds the document creation time in unix
	// microseconds. It defines the default iteration order of a table.
	FieldCreationTime = "creationTime"
)

// ID is a table-scoped document identifier. An ID is meaningless outside the
// table that issued it; use Reader.NormalizeID to test table membership.
type ID string

// String returns the raw identifier.
func (id ID) String() string { return string(id) }

// Document is a single stored record belonging to exactly one table.
// A Document returned from a read is always complete: the security layer
// never redacts individual fields, it withholds whole documents.
type Document map[string]any

// ID returns the document identifier, or the empty ID for values that have
// not been inserted yet.
func (d Document) ID() ID {
	s, _ := d[FieldID].(string)
	return ID(s)
}

// CreationTime returns the document creation time in unix microseconds,
// or zero for values that have not been inserted yet.
func (d Document) CreationTime() int64 {
	t, _ := d[FieldCreationTime].(int64)
	return t
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	c := make(Document, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// Order determines the iteration direction of a query.
type Order int

const (
	// Asc iterates in ascending order. This is the default.
	Asc Order = iota
	// Desc iterates in descending order.
	Desc
)

// String returns the order name.
func (o Order) String() string {
	if o == Desc {
		return "desc"
	}
	return "asc"
}

// Op is an operation bit flag. The security proxy stamps the current
// operation into the context before evaluating a predicate, so rules that
// care can distinguish, for example, a patch from a delete.
type Op uint

// Store operations.
const (
	OpRead Op = 1 << iota
	OpInsert
	OpPatch
	OpReplace
	OpDelete
)

// Is reports whether o matches the given operation(s).
func (o Op) Is(op Op) bool { return o&op != 0 }

var opNames = []string{"OpRead", "OpInsert", "OpPatch", "OpReplace", "OpDelete"}

// String returns the operation name(s).
func (o Op) String() string {
	var names []string
	for i, name := range opNames {
		if o.Is(1 << uint(i)) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("Op(%d)", o)
	}
	return strings.Join(names, "|")
}

// opCtxKey is the context key for the in-flight operation.
type opCtxKey struct{}

// WithOp returns a new context carrying the in-flight operation.
func WithOp(ctx context.Context, op Op) context.Context {
	return context.WithValue(ctx, opCtxKey{}, op)
}

// OpFromContext returns the in-flight operation stamped by the security
// proxy, if any.
func OpFromContext(ctx context.Context) (Op, bool) {
	op, ok := ctx.Value(opCtxKey{}).(Op)
	return op, ok
}
