package docstore

import (
	"fmt"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/veildb/veil"
)

// collator compares strings with language-neutral Unicode collation so index
// order is stable across platforms. collate.Collator is not safe for
// concurrent use; the mutex serializes it.
var (
	collMu   sync.Mutex
	collator = collate.New(language.Und)
)

func compareStrings(a, b string) int {
	collMu.Lock()
	defer collMu.Unlock()
	return collator.CompareString(a, b)
}

// typeRank orders values of different types: nil < bool < number < string <
// everything else.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

// compareValues defines the total order index ranges and index sorting use.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		return 0
	case 1:
		av, bv := a.(bool), b.(bool)
		switch {
		case av == bv:
			return 0
		case bv:
			return -1
		default:
			return 1
		}
	case 2:
		av, bv := asFloat(a), asFloat(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case 3:
		return compareStrings(a.(string), b.(string))
	default:
		// Composite values have no meaningful order; fall back to their
		// printed form for determinism.
		sa, sb := fmt.Sprint(a), fmt.Sprint(b)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		default:
			return 0
		}
	}
}

// matchCond evaluates one index range condition against a document.
func matchCond(doc veil.Document, cond veil.IndexCond) bool {
	c := compareValues(doc[cond.Field], cond.Value)
	switch cond.Op {
	case veil.CondEQ:
		return c == 0
	case veil.CondGT:
		return c > 0
	case veil.CondGTE:
		return c >= 0
	case veil.CondLT:
		return c < 0
	case veil.CondLTE:
		return c <= 0
	}
	return false
}
