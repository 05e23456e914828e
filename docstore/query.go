package docstore

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/veildb/veil"
)

// scanBatchSize bounds how many rows a scan fetches per query. Batches are
// fully decoded and the connection released before any document is yielded,
// so code running between pulls (filters, security rules) can read through
// the store without contending for the scan's connection.
const scanBatchSize = 256

// storeQuery is the store's cursor implementation. Structural methods derive
// new cursors; construction errors (unknown index, malformed range) are
// deferred to the terminal operations, keeping the builder chainable.
type storeQuery struct {
	store   *Store
	table   string
	order   veil.Order
	filters []veil.FilterFunc
	index   *indexScan
	search  *searchScan
	err     error
}

type indexScan struct {
	schema IndexSchema
	conds  []veil.IndexCond
}

type searchScan struct {
	schema SearchIndexSchema
	terms  []string
	eqs    []veil.IndexCond
}

func (q *storeQuery) clone() *storeQuery {
	c := *q
	c.filters = slices.Clone(q.filters)
	return &c
}

// Filter narrows the query to documents matching p.
func (q *storeQuery) Filter(p veil.FilterFunc) veil.Query {
	c := q.clone()
	if p != nil {
		c.filters = append(c.filters, p)
	}
	return c
}

// Order sets the iteration direction. Search queries iterate in relevance
// order and ignore it.
func (q *storeQuery) Order(o veil.Order) veil.Query {
	c := q.clone()
	c.order = o
	return c
}

// WithIndex restricts the query to a declared index, iterating in the order
// of the index fields.
func (q *storeQuery) WithIndex(name string, r veil.RangeFunc) veil.Query {
	c := q.clone()
	if c.err != nil {
		return c
	}
	if c.index != nil || c.search != nil {
		c.err = fmt.Errorf("docstore: query on %q already uses an index", q.table)
		return c
	}
	schema, ok := q.store.schema.index(q.table, name)
	if !ok {
		c.err = fmt.Errorf("docstore: table %q has no index %q", q.table, name)
		return c
	}
	var rng veil.IndexRange
	if r != nil {
		r(&rng)
	}
	for _, cond := range rng.Conds() {
		if !slices.Contains(schema.Fields, cond.Field) {
			c.err = fmt.Errorf("docstore: index %q on %q has no field %q", name, q.table, cond.Field)
			return c
		}
	}
	c.index = &indexScan{schema: schema, conds: rng.Conds()}
	return c
}

// WithSearchIndex restricts the query to a declared search index, iterating
// in relevance order.
func (q *storeQuery) WithSearchIndex(name string, s veil.SearchFunc) veil.Query {
	c := q.clone()
	if c.err != nil {
		return c
	}
	if c.index != nil || c.search != nil {
		c.err = fmt.Errorf("docstore: query on %q already uses an index", q.table)
		return c
	}
	schema, ok := q.store.schema.searchIndex(q.table, name)
	if !ok {
		c.err = fmt.Errorf("docstore: table %q has no search index %q", q.table, name)
		return c
	}
	var filter veil.SearchFilter
	if s != nil {
		s(&filter)
	}
	if filter.Field() != schema.SearchField {
		c.err = fmt.Errorf("docstore: search index %q on %q searches field %q, not %q",
			name, q.table, schema.SearchField, filter.Field())
		return c
	}
	for _, eq := range filter.Filters() {
		if !slices.Contains(schema.FilterFields, eq.Field) {
			c.err = fmt.Errorf("docstore: search index %q on %q has no filter field %q", name, q.table, eq.Field)
			return c
		}
	}
	c.search = &searchScan{schema: schema, terms: tokenize(filter.Query()), eqs: filter.Filters()}
	return c
}

// Iterate returns a pull-based iterator. Plain creation-order scans stream
// in bounded batches; index and search queries must materialize to sort, and
// iterate the sorted result.
func (q *storeQuery) Iterate(ctx context.Context) veil.Iterator {
	if q.err != nil {
		return &errIterator{err: q.err}
	}
	if q.index == nil && q.search == nil {
		return newBatchIterator(q)
	}
	docs, err := q.materialize(ctx)
	if err != nil {
		return &errIterator{err: err}
	}
	return &sliceIterator{docs: docs}
}

// Collect executes the query and returns all matching documents.
func (q *storeQuery) Collect(ctx context.Context) ([]veil.Document, error) {
	it := q.Iterate(ctx)
	defer it.Close()
	var docs []veil.Document
	for {
		doc, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return docs, nil
		}
		docs = append(docs, doc)
	}
}

// Take executes the query and returns up to n documents.
func (q *storeQuery) Take(ctx context.Context, n int) ([]veil.Document, error) {
	it := q.Iterate(ctx)
	defer it.Close()
	docs := make([]veil.Document, 0, n)
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

// First returns the first matching document, or (nil, nil) if there is none.
func (q *storeQuery) First(ctx context.Context) (veil.Document, error) {
	docs, err := q.Take(ctx, 1)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// Unique returns the single matching document, (nil, nil) if there is none,
// or a NotUniqueError if there is more than one.
func (q *storeQuery) Unique(ctx context.Context) (veil.Document, error) {
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

// Paginate returns one page of at most opts.NumItems documents. The continue
// cursor encodes how many matching documents precede the next page.
func (q *storeQuery) Paginate(ctx context.Context, opts veil.PaginationOptions) (*veil.Page, error) {
	if q.err != nil {
		return nil, q.err
	}
	if opts.NumItems <= 0 {
		return nil, fmt.Errorf("docstore: paginate on %q: NumItems must be positive", q.table)
	}
	offset := 0
	if opts.Cursor != "" {
		n, err := strconv.Atoi(opts.Cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("docstore: paginate on %q: invalid cursor %q", q.table, opts.Cursor)
		}
		offset = n
	}

	it := q.Iterate(ctx)
	defer it.Close()
	for skipped := 0; skipped < offset; skipped++ {
		_, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &veil.Page{IsDone: true, ContinueCursor: opts.Cursor}, nil
		}
	}
	page := make([]veil.Document, 0, opts.NumItems)
	for len(page) < opts.NumItems {
		doc, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &veil.Page{Page: page, IsDone: true, ContinueCursor: strconv.Itoa(offset + len(page))}, nil
		}
		page = append(page, doc)
	}
	// Probe for one more document to decide whether the query is done.
	_, more, err := it.Next(ctx)
	if err != nil {
		return nil, err
	}
	return &veil.Page{Page: page, IsDone: !more, ContinueCursor: strconv.Itoa(offset + len(page))}, nil
}

// seqDoc pairs a document with its sequence number for tie-breaking.
type seqDoc struct {
	seq int64
	doc veil.Document
}

// startCursor is the sequence cursor preceding the first row in the query's
// direction.
func (q *storeQuery) startCursor() int64 {
	if q.order == veil.Desc {
		return math.MaxInt64
	}
	return 0
}

// scanBatch fetches and decodes up to scanBatchSize rows following cursor in
// the query's direction. The rows are fully consumed and the connection
// released before the batch is returned.
func (q *storeQuery) scanBatch(ctx context.Context, cursor int64) ([]seqDoc, error) {
	stmt := `SELECT seq, id, created, data FROM documents WHERE tbl = ? AND seq > ? ORDER BY seq ASC LIMIT ?`
	if q.order == veil.Desc {
		stmt = `SELECT seq, id, created, data FROM documents WHERE tbl = ? AND seq < ? ORDER BY seq DESC LIMIT ?`
	}
	rows, err := q.store.db.QueryContext(ctx, stmt, q.table, cursor, scanBatchSize)
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", q.table, err)
	}
	defer rows.Close()

	batch := make([]seqDoc, 0, scanBatchSize)
	for rows.Next() {
		var (
			seq, created int64
			id           string
			data         []byte
		)
		if err := rows.Scan(&seq, &id, &created, &data); err != nil {
			return nil, fmt.Errorf("docstore: query %s: %w", q.table, err)
		}
		doc, err := decodeDocument(veil.ID(id), created, data)
		if err != nil {
			return nil, fmt.Errorf("docstore: query %s: %w", q.table, err)
		}
		batch = append(batch, seqDoc{seq: seq, doc: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", q.table, err)
	}
	return batch, nil
}

// materialize scans the table, applies index/search conditions and filters,
// and sorts the result into the query's iteration order.
func (q *storeQuery) materialize(ctx context.Context) ([]veil.Document, error) {
	var (
		matched []seqDoc
		scores  map[int64]int
	)
	if q.search != nil {
		scores = make(map[int64]int)
	}
	for cursor := q.startCursor(); ; {
		batch, err := q.scanBatch(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, m := range batch {
			doc := m.doc
			switch {
			case q.index != nil:
				if !matchAll(doc, q.index.conds) {
					continue
				}
			case q.search != nil:
				if !matchAll(doc, q.search.eqs) {
					continue
				}
				score := searchScore(doc, q.search.schema.SearchField, q.search.terms)
				if score == 0 {
					continue
				}
				scores[m.seq] = score
			}
			if !passFilters(doc, q.filters) {
				continue
			}
			matched = append(matched, m)
		}
		if len(batch) < scanBatchSize {
			break
		}
		cursor = batch[len(batch)-1].seq
	}

	switch {
	case q.search != nil:
		// Relevance order: higher score first, creation order breaks ties.
		sort.SliceStable(matched, func(i, j int) bool {
			si, sj := scores[matched[i].seq], scores[matched[j].seq]
			if si != sj {
				return si > sj
			}
			return matched[i].seq < matched[j].seq
		})
	case q.index != nil:
		fields := q.index.schema.Fields
		sort.SliceStable(matched, func(i, j int) bool {
			c := compareByFields(matched[i], matched[j], fields)
			if q.order == veil.Desc {
				return c > 0
			}
			return c < 0
		})
	}

	docs := make([]veil.Document, len(matched))
	for i, m := range matched {
		docs[i] = m.doc
	}
	return docs, nil
}

func compareByFields(a, b seqDoc, fields []string) int {
	for _, f := range fields {
		if c := compareValues(a.doc[f], b.doc[f]); c != 0 {
			return c
		}
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	default:
		return 0
	}
}

func matchAll(doc veil.Document, conds []veil.IndexCond) bool {
	for _, cond := range conds {
		if !matchCond(doc, cond) {
			return false
		}
	}
	return true
}

func passFilters(doc veil.Document, filters []veil.FilterFunc) bool {
	for _, f := range filters {
		if !f(doc) {
			return false
		}
	}
	return true
}

// tokenize splits text into lowercased alphanumeric terms.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// searchScore counts how many query terms prefix-match a token of the
// document's search field. Zero means no match.
func searchScore(doc veil.Document, field string, terms []string) int {
	text, _ := doc[field].(string)
	if text == "" || len(terms) == 0 {
		return 0
	}
	tokens := tokenize(text)
	score := 0
	for _, term := range terms {
		for _, tok := range tokens {
			if strings.HasPrefix(tok, term) {
				score++
				break
			}
		}
	}
	return score
}

var _ veil.Query = (*storeQuery)(nil)

// batchIterator lazily streams a creation-order scan one bounded batch at a
// time. No database cursor stays open between pulls, so callers are free to
// read through the store while iterating.
type batchIterator struct {
	q        *storeQuery
	buf      []seqDoc
	cursor   int64
	lastPage bool
	closed   bool
}

func newBatchIterator(q *storeQuery) *batchIterator {
	return &batchIterator{q: q, cursor: q.startCursor()}
}

func (it *batchIterator) Next(ctx context.Context) (veil.Document, bool, error) {
	for {
		for len(it.buf) > 0 {
			m := it.buf[0]
			it.buf = it.buf[1:]
			if passFilters(m.doc, it.q.filters) {
				return m.doc, true, nil
			}
		}
		if it.lastPage || it.closed {
			return nil, false, nil
		}
		batch, err := it.q.scanBatch(ctx, it.cursor)
		if err != nil {
			it.closed = true
			return nil, false, err
		}
		if len(batch) < scanBatchSize {
			it.lastPage = true
		}
		if len(batch) == 0 {
			return nil, false, nil
		}
		it.cursor = batch[len(batch)-1].seq
		it.buf = batch
	}
}

// Close stops the iteration. No database resources are held between pulls,
// so there is nothing else to release.
func (it *batchIterator) Close() error {
	it.closed = true
	it.buf = nil
	return nil
}

// sliceIterator iterates a materialized result.
type sliceIterator struct {
	docs []veil.Document
	i    int
}

func (it *sliceIterator) Next(context.Context) (veil.Document, bool, error) {
	if it.i >= len(it.docs) {
		return nil, false, nil
	}
	doc := it.docs[it.i]
	it.i++
	return doc, true, nil
}

// Close is a no-op; the result is already in memory.
func (it *sliceIterator) Close() error { return nil }

// errIterator reports a deferred construction or query error.
type errIterator struct {
	err error
}

func (it *errIterator) Next(context.Context) (veil.Document, bool, error) {
	return nil, false, it.err
}

// Close is a no-op.
func (it *errIterator) Close() error { return nil }
