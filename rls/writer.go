package rls

import (
	"context"

	"github.com/veildb/veil"
)

// Writer is the filtered write surface. It implements veil.Writer; its read
// methods delegate to an internal Reader sharing the same registry, so
// write-capable callers observe exactly the filtered view read-only callers
// do.
type Writer struct {
	store  veil.Writer
	reader *Reader
}

// NewWriter wraps the full surface of a store with the given rules.
func NewWriter(store veil.Writer, reg Registry) *Writer {
	return &Writer{store: store, reader: NewReader(store, reg)}
}

// Insert evaluates the table's insert rule on the incoming value. A denial
// fails with veil.InsertDeniedError and never reaches the store: silently
// dropping a write would let the caller believe it succeeded.
func (w *Writer) Insert(ctx context.Context, table string, value veil.Document) (veil.ID, error) {
	allowed, err := evaluate(ctx, w.reader.reg[table].Insert, veil.OpInsert, value)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", veil.NewInsertDeniedError(table)
	}
	return w.store.Insert(ctx, table, value)
}

// Patch evaluates the table's modify rule on the partial value being
// written. A denial is a silent no-op, mirroring the read side's
// "denied == absent".
func (w *Writer) Patch(ctx context.Context, id veil.ID, partial veil.Document) error {
	allowed, err := w.allowModify(ctx, id, veil.OpPatch, partial)
	if err != nil || !allowed {
		return err
	}
	return w.store.Patch(ctx, id, partial)
}

// Replace evaluates the table's modify rule on the full value being written.
// A denial is a silent no-op.
func (w *Writer) Replace(ctx context.Context, id veil.ID, value veil.Document) error {
	allowed, err := w.allowModify(ctx, id, veil.OpReplace, value)
	if err != nil || !allowed {
		return err
	}
	return w.store.Replace(ctx, id, value)
}

// Delete evaluates the table's modify rule on the currently stored document,
// fetched through the unfiltered store: deletion rights are defined over the
// current value, not over the caller's filtered view. A denial is a silent
// no-op.
func (w *Writer) Delete(ctx context.Context, id veil.ID) error {
	table, ok := w.reader.reg.resolve(w.store, id)
	if ok {
		if rule := w.reader.reg[table].Modify; rule != nil {
			doc, err := w.store.Get(ctx, id)
			if err != nil {
				return err
			}
			if doc != nil {
				allowed, err := evaluate(ctx, rule, veil.OpDelete, doc)
				if err != nil {
					return err
				}
				if !allowed {
					return nil
				}
			}
		}
	}
	return w.store.Delete(ctx, id)
}

// allowModify resolves the id's table and evaluates its modify rule against
// the document shape being written. Ids no registered table claims proceed
// unchecked.
func (w *Writer) allowModify(ctx context.Context, id veil.ID, op veil.Op, value veil.Document) (bool, error) {
	table, ok := w.reader.reg.resolve(w.store, id)
	if !ok {
		return true, nil
	}
	return evaluate(ctx, w.reader.reg[table].Modify, op, value)
}

// Get returns the filtered view of the document. See Reader.Get.
func (w *Writer) Get(ctx context.Context, id veil.ID) (veil.Document, error) {
	return w.reader.Get(ctx, id)
}

// Query starts a filtered query. See Reader.Query.
func (w *Writer) Query(table string) veil.Query {
	return w.reader.Query(table)
}

// NormalizeID delegates to the underlying store.
func (w *Writer) NormalizeID(table, raw string) (veil.ID, bool) {
	return w.reader.NormalizeID(table, raw)
}

var _ veil.Writer = (*Writer)(nil)
