package rls

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/veildb/veil"
)

// collectConcurrency bounds concurrent read-rule evaluation over a fetched
// batch. Evaluation within lazy iteration is always sequential.
const collectConcurrency = 16

// query wraps a raw store cursor and applies the table's read rule to every
// document before the caller observes it. Structural transformations operate
// on the raw query shape; only terminal operations see documents.
type query struct {
	raw   veil.Query
	table string
	read  Predicate
}

// Filter narrows the raw query. The application predicate runs on raw
// documents, before security filtering, matching the store's contract that
// query predicates run ahead of any application-level processing.
func (q *query) Filter(p veil.FilterFunc) veil.Query {
	return q.derive(q.raw.Filter(p))
}

// Order sets the raw iteration direction.
func (q *query) Order(o veil.Order) veil.Query {
	return q.derive(q.raw.Order(o))
}

// WithIndex restricts the raw query to an index range.
func (q *query) WithIndex(name string, r veil.RangeFunc) veil.Query {
	return q.derive(q.raw.WithIndex(name, r))
}

// WithSearchIndex restricts the raw query to a search expression.
func (q *query) WithSearchIndex(name string, s veil.SearchFunc) veil.Query {
	return q.derive(q.raw.WithSearchIndex(name, s))
}

func (q *query) derive(raw veil.Query) *query {
	return &query{raw: raw, table: q.table, read: q.read}
}

// Collect fetches all raw results, evaluates the read rule over the batch
// concurrently, and returns the survivors in their original relative order.
func (q *query) Collect(ctx context.Context) ([]veil.Document, error) {
	raw, err := q.raw.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return q.filterBatch(ctx, raw)
}

// Take pulls from the lazy iterator until n surviving documents are produced
// or the raw cursor is exhausted. Taking n raw documents and filtering after
// the fact would under-return.
func (q *query) Take(ctx context.Context, n int) ([]veil.Document, error) {
	docs := make([]veil.Document, 0, n)
	it := q.Iterate(ctx)
	defer it.Close()
	for len(docs) < n {
		doc, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// First returns the first surviving document, or (nil, nil) if there is none.
func (q *query) First(ctx context.Context) (veil.Document, error) {
	docs, err := q.Take(ctx, 1)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// Unique returns the single surviving document, (nil, nil) if there is none,
// or a NotUniqueError if a second survivor exists. Uniqueness is evaluated
// over surviving documents only: a second raw document that the read rule
// denies does not trip the error.
func (q *query) Unique(ctx context.Context) (veil.Document, error) {
	docs, err := q.Take(ctx, 2)
	if err != nil {
		return nil, err
	}
	switch len(docs) {
	case 0:
		return nil, nil
	case 1:
		return docs[0], nil
	default:
		return nil, veil.NewNotUniqueError(q.table)
	}
}

// Paginate fetches one raw page and filters it. The page may shrink below
// opts.NumItems; it is never re-fetched to backfill, matching the store's
// "at most N items" pagination contract. The continue cursor still resumes
// after the raw page, so no documents are skipped.
func (q *query) Paginate(ctx context.Context, opts veil.PaginationOptions) (*veil.Page, error) {
	page, err := q.raw.Paginate(ctx, opts)
	if err != nil {
		return nil, err
	}
	filtered, err := q.filterBatch(ctx, page.Page)
	if err != nil {
		return nil, err
	}
	return &veil.Page{
		Page:           filtered,
		IsDone:         page.IsDone,
		ContinueCursor: page.ContinueCursor,
	}, nil
}

// Iterate returns a pull-based iterator that transparently skips denied
// documents. Each Next advances the raw cursor one document at a time and
// evaluates the read rule sequentially, so Take and First never pay for more
// of the table than they consume.
func (q *query) Iterate(ctx context.Context) veil.Iterator {
	return &iterator{raw: q.raw.Iterate(ctx), read: q.read}
}

// filterBatch evaluates the read rule over a fetched batch concurrently and
// returns the survivors in their original order.
func (q *query) filterBatch(ctx context.Context, raw []veil.Document) ([]veil.Document, error) {
	if q.read == nil || len(raw) == 0 {
		return raw, nil
	}
	keep := make([]bool, len(raw))
	g, gctx := errgroup.WithContext(veil.WithOp(ctx, veil.OpRead))
	g.SetLimit(collectConcurrency)
	for i, doc := range raw {
		i, doc := i, doc
		g.Go(func() error {
			allowed, err := q.read(gctx, doc)
			if err != nil {
				return err
			}
			keep[i] = allowed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	docs := make([]veil.Document, 0, len(raw))
	for i, doc := range raw {
		if keep[i] {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

var _ veil.Query = (*query)(nil)

// iterator pulls raw documents one at a time and yields only those the read
// rule allows. The next raw document is not fetched until the current
// predicate result is known.
type iterator struct {
	raw  veil.Iterator
	read Predicate
}

// Next returns the next surviving document, looping past denied ones until a
// survivor is found or the raw cursor is exhausted.
func (it *iterator) Next(ctx context.Context) (veil.Document, bool, error) {
	for {
		doc, ok, err := it.raw.Next(ctx)
		if err != nil || !ok {
			return nil, false, err
		}
		allowed, err := evaluate(ctx, it.read, veil.OpRead, doc)
		if err != nil {
			return nil, false, err
		}
		if allowed {
			return doc, true, nil
		}
	}
}

// Close releases the underlying raw cursor.
func (it *iterator) Close() error { return it.raw.Close() }
