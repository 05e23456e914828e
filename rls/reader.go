package rls

import (
	"context"

	"github.com/veildb/veil"
)

// Reader is the filtered read surface. It implements veil.Reader, so
// application code written against the unwrapped store works unchanged.
type Reader struct {
	store veil.Reader
	reg   Registry
}

// NewReader wraps the read surface of a store with the given rules.
// The registry is copied; the Reader is immutable and safe for concurrent
// use within the request it was built for.
func NewReader(store veil.Reader, reg Registry) *Reader {
	return &Reader{store: store, reg: reg.Clone()}
}

// Get returns the document with the given id, or (nil, nil) if it does not
// exist or its table's read rule denies it. The two cases are intentionally
// indistinguishable.
func (r *Reader) Get(ctx context.Context, id veil.ID) (veil.Document, error) {
	doc, err := r.store.Get(ctx, id)
	if err != nil || doc == nil {
		return nil, err
	}
	table, ok := r.reg.resolve(r.store, id)
	if !ok {
		return doc, nil
	}
	allowed, err := evaluate(ctx, r.reg[table].Read, veil.OpRead, doc)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, nil
	}
	return doc, nil
}

// Query starts a filtered query over the given table. The table is known
// statically here, so per-row filtering needs no id probing.
func (r *Reader) Query(table string) veil.Query {
	return &query{
		raw:   r.store.Query(table),
		table: table,
		read:  r.reg[table].Read,
	}
}

// NormalizeID delegates to the underlying store.
func (r *Reader) NormalizeID(table, raw string) (veil.ID, bool) {
	return r.store.NormalizeID(table, raw)
}

var _ veil.Reader = (*Reader)(nil)
