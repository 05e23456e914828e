// Package rls wraps a document store with row-level security. A registry
// maps table names to read/insert/modify predicates; the wrapped store
// evaluates the matching predicate on every path a document can travel, so
// that a denied document is indistinguishable from one that does not exist.
//
// Denial semantics differ by operation on purpose:
//
//   - reads: a denied document reads as absent (nil, filtered out of queries)
//   - patch/replace/delete: a denied write is a silent no-op
//   - insert: a denied insert fails with veil.InsertDeniedError
//
// Tables without a registry entry pass through unfiltered.
package rls

import (
	"context"

	"github.com/veildb/veil"
)

// Predicate is an authorization decision over one document. The context
// carries caller state (see the rules package) and the in-flight operation
// (veil.OpFromContext). A returned error aborts the surrounding operation
// unmodified; predicates are never wrapped or recovered.
type Predicate func(ctx context.Context, doc veil.Document) (bool, error)

// Rules is the predicate bundle governing one table. A nil predicate allows
// the corresponding operation unconditionally.
type Rules struct {
	// Read decides whether a document may be observed. Evaluated on every
	// get and on every document a query produces.
	Read Predicate

	// Insert decides whether a value may be created. Evaluated on the
	// incoming value, which has no id or creation time yet.
	Insert Predicate

	// Modify decides whether a document may be changed or deleted. For
	// patch and replace it is evaluated on the incoming value; for delete,
	// on the currently stored document.
	Modify Predicate
}

// Registry maps table names to their rules. Tables absent from the registry
// are not filtered at all.
type Registry map[string]Rules

// Clone returns a copy of the registry. Proxies clone the registry they are
// constructed with, so later mutation of the caller's map has no effect.
func (reg Registry) Clone() Registry {
	c := make(Registry, len(reg))
	for table, rules := range reg {
		c[table] = rules
	}
	return c
}

// resolve determines which registered table the id belongs to by probing the
// store's id normalization against every table with rules. Linear in the
// number of registered tables; only runs on write paths and generic gets,
// never per query row.
func (reg Registry) resolve(store veil.Reader, id veil.ID) (string, bool) {
	for table := range reg {
		if _, ok := store.NormalizeID(table, id.String()); ok {
			return table, true
		}
	}
	return "", false
}

// evaluate runs a predicate with the operation stamped into the context.
// A nil predicate allows.
func evaluate(ctx context.Context, p Predicate, op veil.Op, doc veil.Document) (bool, error) {
	if p == nil {
		return true, nil
	}
	return p(veil.WithOp(ctx, op), doc)
}
