package docstore

import (
	"strings"

	"github.com/google/uuid"

	"github.com/veildb/veil"
)

// idSep separates the table name from the random part of an identifier.
// Table names cannot contain it, so parsing is unambiguous.
const idSep = ":"

// newID generates a fresh identifier for a document in table.
func newID(table string) veil.ID {
	return veil.ID(table + idSep + uuid.NewString())
}

// tableOf returns the table encoded in the id, or "" if malformed.
func tableOf(id veil.ID) string {
	table, _, ok := splitID(string(id))
	if !ok {
		return ""
	}
	return table
}

// normalizeID parses raw and reports whether it names a document of the
// given table, returning the canonical form if so. It validates shape only;
// the document need not exist.
func normalizeID(table, raw string) (veil.ID, bool) {
	t, u, ok := splitID(raw)
	if !ok || t != table {
		return "", false
	}
	return veil.ID(t + idSep + u.String()), true
}

func splitID(raw string) (string, uuid.UUID, bool) {
	i := strings.LastIndex(raw, idSep)
	if i <= 0 {
		return "", uuid.UUID{}, false
	}
	table := raw[:i]
	if !isValidTable(table) {
		return "", uuid.UUID{}, false
	}
	u, err := uuid.Parse(raw[i+1:])
	if err != nil {
		return "", uuid.UUID{}, false
	}
	return table, u, true
}
