package docstore

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Schema declares the indexes a store's queries may use. Tables are
// schemaless otherwise: any valid table name accepts writes and plain scans
// without declaration.
type Schema struct {
	Tables []TableSchema `yaml:"tables"`
}

// TableSchema declares one table's indexes.
type TableSchema struct {
	Name          string              `yaml:"name"`
	Indexes       []IndexSchema       `yaml:"indexes"`
	SearchIndexes []SearchIndexSchema `yaml:"search_indexes"`
}

// IndexSchema declares an index over one or more document fields. Queries
// using the index iterate in the order of its fields (creation order breaks
// ties).
type IndexSchema struct {
	Name   string   `yaml:"name"`
	Fields []string `yaml:"fields"`
}

// SearchIndexSchema declares a full-text search index over one document
// field, with optional equality filter fields.
type SearchIndexSchema struct {
	Name         string   `yaml:"name"`
	SearchField  string   `yaml:"search_field"`
	FilterFields []string `yaml:"filter_fields"`
}

// LoadSchema reads and parses a schema file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("docstore: read schema %s: %w", path, err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("docstore: parse schema %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks table names and index declarations.
func (s *Schema) Validate() error {
	for _, t := range s.Tables {
		if !isValidTable(t.Name) {
			return fmt.Errorf("docstore: invalid table name %q", t.Name)
		}
		for _, idx := range t.Indexes {
			if idx.Name == "" || len(idx.Fields) == 0 {
				return fmt.Errorf("docstore: table %q: index needs a name and at least one field", t.Name)
			}
		}
		for _, idx := range t.SearchIndexes {
			if idx.Name == "" || idx.SearchField == "" {
				return fmt.Errorf("docstore: table %q: search index needs a name and a search field", t.Name)
			}
		}
	}
	return nil
}

// index returns the declared index of the table, if any.
func (s *Schema) index(table, name string) (IndexSchema, bool) {
	for _, t := range s.Tables {
		if t.Name != table {
			continue
		}
		for _, idx := range t.Indexes {
			if idx.Name == name {
				return idx, true
			}
		}
	}
	return IndexSchema{}, false
}

// searchIndex returns the declared search index of the table, if any.
func (s *Schema) searchIndex(table, name string) (SearchIndexSchema, bool) {
	for _, t := range s.Tables {
		if t.Name != table {
			continue
		}
		for _, idx := range t.SearchIndexes {
			if idx.Name == name {
				return idx, true
			}
		}
	}
	return SearchIndexSchema{}, false
}
