package docstore

import "strings"

// IsConstraintError reports whether err resulted from a database constraint
// violation. Useful for callers who add their own constraints to the
// underlying database through DB().
func IsConstraintError(err error) bool {
	return IsUniqueConstraintError(err) ||
		containsAny(errString(err),
			"CHECK constraint failed",
			"FOREIGN KEY constraint failed",
			"NOT NULL constraint failed",
		)
}

// IsUniqueConstraintError reports whether err resulted from a uniqueness
// violation, e.g. a duplicate document id.
func IsUniqueConstraintError(err error) bool {
	return containsAny(errString(err), "UNIQUE constraint failed")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
