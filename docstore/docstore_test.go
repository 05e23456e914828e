package docstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veildb/veil"
	"github.com/veildb/veil/docstore"
)

// testSchema declares the indexes the query tests use.
func testSchema() *docstore.Schema {
	return &docstore.Schema{
		Tables: []docstore.TableSchema{
			{
				Name: "notes",
				Indexes: []docstore.IndexSchema{
					{Name: "by_owner", Fields: []string{"owner"}},
					{Name: "by_owner_priority", Fields: []string{"owner", "priority"}},
				},
				SearchIndexes: []docstore.SearchIndexSchema{
					{Name: "search_body", SearchField: "body", FilterFields: []string{"owner"}},
				},
			},
		},
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newStore(t *testing.T) *docstore.Store {
	t.Helper()
	s, err := docstore.Open(":memory:", docstore.WithSchema(testSchema()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertGet(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, "notes", veil.Document{
		"title":    "hello",
		"priority": int64(3),
		"pinned":   true,
		"score":    1.5,
	})
	require.NoError(t, err)
	_, ok := s.NormalizeID("notes", id.String())
	assert.True(t, ok, "generated id should belong to its table")

	doc, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "hello", doc["title"])
	assert.Equal(t, int64(3), doc["priority"])
	assert.Equal(t, true, doc["pinned"])
	assert.Equal(t, 1.5, doc["score"])
	assert.Equal(t, id, doc.ID())
	assert.Positive(t, doc.CreationTime())
}

func TestInsertIgnoresReservedFields(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, "notes", veil.Document{
		veil.FieldID:           "notes:spoofed",
		veil.FieldCreationTime: int64(1),
		"title":                "x",
	})
	require.NoError(t, err)
	assert.NotEqual(t, veil.ID("notes:spoofed"), id)

	doc, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID())
	assert.NotEqual(t, int64(1), doc.CreationTime())
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	doc, err := s.Get(context.Background(), "notes:1f0a81b4-7f5a-4a3c-9c2e-6a70c5d3f000")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestPatch(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, "notes", veil.Document{"title": "old", "owner": "alice"})
	require.NoError(t, err)

	t.Run("merges fields", func(t *testing.T) {
		require.NoError(t, s.Patch(ctx, id, veil.Document{"title": "new", "pinned": true}))

		doc, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "new", doc["title"])
		assert.Equal(t, "alice", doc["owner"])
		assert.Equal(t, true, doc["pinned"])
	})

	t.Run("ignores reserved fields", func(t *testing.T) {
		require.NoError(t, s.Patch(ctx, id, veil.Document{veil.FieldID: "notes:other"}))

		doc, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, doc.ID())
	})

	t.Run("missing document", func(t *testing.T) {
		err := s.Patch(ctx, "notes:7b3c81b4-7f5a-4a3c-9c2e-6a70c5d3f000", veil.Document{"title": "x"})
		assert.True(t, veil.IsNotFound(err))
	})
}

func TestReplace(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, "notes", veil.Document{"title": "old", "owner": "alice"})
	require.NoError(t, err)
	before, err := s.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, s.Replace(ctx, id, veil.Document{"title": "new"}))

	doc, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "new", doc["title"])
	assert.NotContains(t, doc, "owner", "replace drops unmentioned fields")
	assert.Equal(t, id, doc.ID())
	assert.Equal(t, before.CreationTime(), doc.CreationTime())

	err = s.Replace(ctx, "notes:7b3c81b4-7f5a-4a3c-9c2e-6a70c5d3f000", veil.Document{"title": "x"})
	assert.True(t, veil.IsNotFound(err))
}

func TestDelete(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, "notes", veil.Document{"title": "x"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, id))

	doc, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, doc)

	assert.True(t, veil.IsNotFound(s.Delete(ctx, id)))
}

func TestInvalidTableName(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "bad table", veil.Document{"x": int64(1)})
	assert.Error(t, err)

	_, err = s.Query("bad table").Collect(ctx)
	assert.Error(t, err)
}

func TestSchemaValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		schema  docstore.Schema
		wantErr bool
	}{
		{
			name:   "valid",
			schema: *testSchema(),
		},
		{
			name: "bad table name",
			schema: docstore.Schema{
				Tables: []docstore.TableSchema{{Name: "no:colons"}},
			},
			wantErr: true,
		},
		{
			name: "index without fields",
			schema: docstore.Schema{
				Tables: []docstore.TableSchema{{
					Name:    "notes",
					Indexes: []docstore.IndexSchema{{Name: "empty"}},
				}},
			},
			wantErr: true,
		},
		{
			name: "search index without field",
			schema: docstore.Schema{
				Tables: []docstore.TableSchema{{
					Name:          "notes",
					SearchIndexes: []docstore.SearchIndexSchema{{Name: "s"}},
				}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.schema.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadSchema(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "schema.yaml", `
tables:
  - name: notes
    indexes:
      - name: by_owner
        fields: [owner]
    search_indexes:
      - name: search_body
        search_field: body
        filter_fields: [owner]
`)
	schema, err := docstore.LoadSchema(path)
	require.NoError(t, err)
	require.Len(t, schema.Tables, 1)
	assert.Equal(t, "notes", schema.Tables[0].Name)
	require.Len(t, schema.Tables[0].Indexes, 1)
	assert.Equal(t, []string{"owner"}, schema.Tables[0].Indexes[0].Fields)
	require.Len(t, schema.Tables[0].SearchIndexes, 1)
	assert.Equal(t, "body", schema.Tables[0].SearchIndexes[0].SearchField)

	_, err = docstore.LoadSchema(path + ".missing")
	assert.Error(t, err)
}

func TestNormalizeID(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, "notes", veil.Document{"title": "x"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		table string
		raw   string
		want  bool
	}{
		{"own table", "notes", id.String(), true},
		{"other table", "users", id.String(), false},
		{"no separator", "notes", "justastring", false},
		{"bad uuid", "notes", "notes:not-a-uuid", false},
		{"empty", "notes", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok := s.NormalizeID(tt.table, tt.raw)
			assert.Equal(t, tt.want, ok)
		})
	}

	t.Run("canonicalizes uuid case", func(t *testing.T) {
		t.Parallel()
		norm, ok := s.NormalizeID("notes", "notes:1F0A81B4-7F5A-4A3C-9C2E-6A70C5D3F000")
		require.True(t, ok)
		assert.Equal(t, veil.ID("notes:1f0a81b4-7f5a-4a3c-9c2e-6a70c5d3f000"), norm)
	})
}
