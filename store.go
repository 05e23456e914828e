package veil

import "context"

// Reader is the read surface of a document store. The rls package both
// consumes this interface (from the backing store) and implements it (as the
// filtered view handed to application code), so code written against the
// unwrapped store works unchanged against the wrapped one.
type Reader interface {
	// Get returns the document with the given id, or (nil, nil) if no such
	// document exists.
	Get(ctx context.Context, id ID) (Document, error)

	// Query starts a query over the given table in creation-time order.
	Query(table string) Query

	// NormalizeID reports whether raw names a document identifier belonging
	// to the given table, returning the canonical ID if so.
	NormalizeID(table, raw string) (ID, bool)
}

// Writer is the full read/write surface of a document store.
type Writer interface {
	Reader

	// Insert adds value as a new document in table and returns its
	// generated id. The stored document gains the reserved id and
	// creationTime fields.
	Insert(ctx context.Context, table string, value Document) (ID, error)

	// Patch merges partial into the document with the given id.
	Patch(ctx context.Context, id ID, partial Document) error

	// Replace substitutes the document with the given id with value,
	// preserving its id and creation time.
	Replace(ctx context.Context, id ID, value Document) error

	// Delete removes the document with the given id.
	Delete(ctx context.Context, id ID) error
}

// FilterFunc is an application-level predicate applied to each raw document
// a query produces. It runs before any security filtering.
type FilterFunc func(Document) bool

// Query is a lazy, composable cursor over one table. Structural methods
// (Filter, Order, WithIndex, WithSearchIndex) return derived cursors;
// terminal methods execute the query.
type Query interface {
	// Filter narrows the query to documents matching p.
	Filter(p FilterFunc) Query

	// Order sets the iteration direction.
	Order(o Order) Query

	// WithIndex restricts the query to the given index, optionally bounded
	// by the range built by r. The query iterates in index order.
	WithIndex(name string, r RangeFunc) Query

	// WithSearchIndex restricts the query to documents matching the search
	// expression built by s, in relevance order.
	WithSearchIndex(name string, s SearchFunc) Query

	// Collect executes the query and returns all matching documents.
	Collect(ctx context.Context) ([]Document, error)

	// Take executes the query and returns up to n documents.
	Take(ctx context.Context, n int) ([]Document, error)

	// First returns the first matching document, or (nil, nil) if there is
	// none.
	First(ctx context.Context) (Document, error)

	// Unique returns the single matching document, (nil, nil) if there is
	// none, or a NotUniqueError if there is more than one.
	Unique(ctx context.Context) (Document, error)

	// Paginate returns one page of results. The returned page holds at most
	// opts.NumItems documents, possibly fewer.
	Paginate(ctx context.Context, opts PaginationOptions) (*Page, error)

	// Iterate returns a pull-based iterator over the results.
	Iterate(ctx context.Context) Iterator
}

// Iterator is a pull-based document iterator. Next blocks on storage I/O and
// returns ok=false once the sequence is exhausted, at which point the
// iterator closes itself. Callers abandoning an iterator early must call
// Close to release the underlying cursor.
type Iterator interface {
	Next(ctx context.Context) (doc Document, ok bool, err error)
	Close() error
}

// PaginationOptions controls Query.Paginate.
type PaginationOptions struct {
	// NumItems is the maximum page size.
	NumItems int
	// Cursor is the continue cursor of the previous page, or the empty
	// string for the first page.
	Cursor string
}

// Page is one page of query results.
type Page struct {
	// Page holds the page's documents, at most NumItems of them.
	Page []Document
	// IsDone reports whether the query is exhausted.
	IsDone bool
	// ContinueCursor resumes the query after this page.
	ContinueCursor string
}

// CondOp is a comparison operator in an index range condition.
type CondOp int

// Index range comparison operators.
const (
	CondEQ CondOp = iota
	CondGT
	CondGTE
	CondLT
	CondLTE
)

// IndexCond is a single condition over one indexed field.
type IndexCond struct {
	Field string
	Op    CondOp
	Value any
}

// IndexRange accumulates range conditions over the fields of an index.
// Conditions are combined with AND.
type IndexRange struct {
	conds []IndexCond
}

// Eq adds an equality condition on field.
func (r *IndexRange) Eq(field string, value any) *IndexRange {
	r.conds = append(r.conds, IndexCond{Field: field, Op: CondEQ, Value: value})
	return r
}

// Gt adds a strict lower bound on field.
func (r *IndexRange) Gt(field string, value any) *IndexRange {
	r.conds = append(r.conds, IndexCond{Field: field, Op: CondGT, Value: value})
	return r
}

// Gte adds an inclusive lower bound on field.
func (r *IndexRange) Gte(field string, value any) *IndexRange {
	r.conds = append(r.conds, IndexCond{Field: field, Op: CondGTE, Value: value})
	return r
}

// Lt adds a strict upper bound on field.
func (r *IndexRange) Lt(field string, value any) *IndexRange {
	r.conds = append(r.conds, IndexCond{Field: field, Op: CondLT, Value: value})
	return r
}

// Lte adds an inclusive upper bound on field.
func (r *IndexRange) Lte(field string, value any) *IndexRange {
	r.conds = append(r.conds, IndexCond{Field: field, Op: CondLTE, Value: value})
	return r
}

// Conds returns the accumulated conditions in the order they were added.
func (r *IndexRange) Conds() []IndexCond { return r.conds }

// RangeFunc builds an index range. A nil RangeFunc means the whole index.
type RangeFunc func(*IndexRange)

// SearchFilter accumulates a search expression: one full-text query over the
// index's search field plus optional equality filters.
type SearchFilter struct {
	field string
	query string
	eqs   []IndexCond
}

// Search sets the search query over the given search field.
func (s *SearchFilter) Search(field, query string) *SearchFilter {
	s.field, s.query = field, query
	return s
}

// Eq adds an equality filter on one of the index's filter fields.
func (s *SearchFilter) Eq(field string, value any) *SearchFilter {
	s.eqs = append(s.eqs, IndexCond{Field: field, Op: CondEQ, Value: value})
	return s
}

// Field returns the searched field.
func (s *SearchFilter) Field() string { return s.field }

// Query returns the search query.
func (s *SearchFilter) Query() string { return s.query }

// Filters returns the equality filters.
func (s *SearchFilter) Filters() []IndexCond { return s.eqs }

// SearchFunc builds a search expression.
type SearchFunc func(*SearchFilter)
