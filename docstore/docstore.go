// Package docstore is an embedded document store backed by SQLite. Documents
// are schemaless msgpack-encoded records organized into named tables, with
// table-scoped identifiers, declared indexes evaluated in process, and
// cursor-based pagination. It implements the veil store interfaces and is
// the reference backing store for the rls security layer.
package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "modernc.org/sqlite"

	"github.com/veildb/veil"
)

// validTableRe validates table names (identifier-shaped, no separator byte).
var validTableRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidTable checks if the string is a valid table name.
func isValidTable(s string) bool {
	return s != "" && len(s) <= 128 && validTableRe.MatchString(s)
}

// Store is a document store over a single SQLite database. All documents
// live in one relation keyed by a monotonically increasing sequence number
// that defines creation order.
type Store struct {
	db     *sql.DB
	schema *Schema
}

// Option configures a Store.
type Option func(*Store)

// WithSchema declares the tables, indexes, and search indexes the store's
// queries may use. Tables need no declaration for plain scans and writes.
func WithSchema(schema *Schema) Option {
	return func(s *Store) { s.schema = schema }
}

// Open opens (creating if necessary) the SQLite database at path and
// migrates the document relation. Use ":memory:" for an ephemeral store.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("docstore: open %s: %w", path, err)
	}
	// SQLite supports one writer; a single connection also keeps
	// in-memory databases from splitting per connection.
	db.SetMaxOpenConns(1)
	s := OpenDB(db, opts...)
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenDB wraps an existing database handle without migrating it.
func OpenDB(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, schema: &Schema{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the document relation if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	id      TEXT    NOT NULL UNIQUE,
	tbl     TEXT    NOT NULL,
	created INTEGER NOT NULL,
	data    BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_tbl ON documents (tbl, seq);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("docstore: migrate: %w", err)
	}
	return nil
}

// Get returns the document with the given id, or (nil, nil) if it does not
// exist.
func (s *Store) Get(ctx context.Context, id veil.ID) (veil.Document, error) {
	var (
		created int64
		data    []byte
	)
	row := s.db.QueryRowContext(ctx, `SELECT created, data FROM documents WHERE id = ?`, id.String())
	switch err := row.Scan(&created, &data); err {
	case nil:
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, fmt.Errorf("docstore: get %s: %w", id, err)
	}
	return decodeDocument(id, created, data)
}

// Query starts a query over the given table in creation order.
func (s *Store) Query(table string) veil.Query {
	q := &storeQuery{store: s, table: table}
	if !isValidTable(table) {
		q.err = fmt.Errorf("docstore: invalid table name %q", table)
	}
	return q
}

// NormalizeID reports whether raw is a well-formed identifier belonging to
// the given table.
func (s *Store) NormalizeID(table, raw string) (veil.ID, bool) {
	return normalizeID(table, raw)
}

// Insert adds value as a new document in table and returns its generated id.
// Reserved fields in value are ignored; the store assigns them.
func (s *Store) Insert(ctx context.Context, table string, value veil.Document) (veil.ID, error) {
	if !isValidTable(table) {
		return "", fmt.Errorf("docstore: invalid table name %q", table)
	}
	data, err := encodeDocument(value)
	if err != nil {
		return "", fmt.Errorf("docstore: insert into %s: %w", table, err)
	}
	created := time.Now().UnixMicro()
	for attempt := 0; ; attempt++ {
		id := newID(table)
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO documents (id, tbl, created, data) VALUES (?, ?, ?, ?)`,
			id.String(), table, created, data)
		if err == nil {
			return id, nil
		}
		// An id collision means the random part repeated; a fresh one
		// resolves it.
		if attempt < 2 && IsUniqueConstraintError(err) {
			continue
		}
		return "", fmt.Errorf("docstore: insert into %s: %w", table, err)
	}
}

// Patch merges partial into the stored document. Reserved fields in partial
// are ignored. Returns a NotFoundError if no document has the given id.
func (s *Store) Patch(ctx context.Context, id veil.ID, partial veil.Document) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return veil.NewNotFoundError(tableOf(id), id)
	}
	merged := doc.Clone()
	for k, v := range partial {
		if k == veil.FieldID || k == veil.FieldCreationTime {
			continue
		}
		merged[k] = v
	}
	return s.writeBack(ctx, id, merged)
}

// Replace substitutes the stored document's fields with value, preserving
// its id and creation time. Returns a NotFoundError if no document has the
// given id.
func (s *Store) Replace(ctx context.Context, id veil.ID, value veil.Document) error {
	return s.writeBack(ctx, id, value)
}

// Delete removes the document with the given id. Returns a NotFoundError if
// no document has it.
func (s *Store) Delete(ctx context.Context, id veil.ID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("docstore: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("docstore: delete %s: %w", id, err)
	}
	if n == 0 {
		return veil.NewNotFoundError(tableOf(id), id)
	}
	return nil
}

// writeBack re-encodes value (sans reserved fields) as the document body.
func (s *Store) writeBack(ctx context.Context, id veil.ID, value veil.Document) error {
	data, err := encodeDocument(value)
	if err != nil {
		return fmt.Errorf("docstore: write %s: %w", id, err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET data = ? WHERE id = ?`, data, id.String())
	if err != nil {
		return fmt.Errorf("docstore: write %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("docstore: write %s: %w", id, err)
	}
	if n == 0 {
		return veil.NewNotFoundError(tableOf(id), id)
	}
	return nil
}

var _ veil.Writer = (*Store)(nil)
