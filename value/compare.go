package value

import (
	"fmt"

	"github.com/danthegoodman1/recordstore/utils"
)

// Equal is null-safe equality. Int and Float compare numerically.
func Equal(a, b Value) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	if a.IsNumeric() && b.IsNumeric() {
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.I64 == b.I64
		}
		return a.asFloat() == b.asFloat()
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindString:
		return a.S == b.S
	case KindBool:
		return a.B == b.B
	case KindTime:
		return a.T.Equal(b.T)
	}
	return false
}

// Compare returns -1, 0 or 1 in natural order. Null sorts before every other value.
// Values of different, non-numeric kinds are not comparable.
func Compare(a, b Value) (int, error) {
	switch {
	case a.IsNull() && b.IsNull():
		return 0, nil
	case a.IsNull():
		return -1, nil
	case b.IsNull():
		return 1, nil
	}
	if a.IsNumeric() && b.IsNumeric() {
		if a.Kind == KindInt && b.Kind == KindInt {
			return cmp3(a.I64 < b.I64, a.I64 > b.I64), nil
		}
		af, bf := a.asFloat(), b.asFloat()
		return cmp3(af < bf, af > bf), nil
	}
	if a.Kind != b.Kind {
		return 0, fmt.Errorf("cannot compare %s with %s: %w", a.Kind, b.Kind, utils.ErrTypeMismatch)
	}
	switch a.Kind {
	case KindString:
		return cmp3(a.S < b.S, a.S > b.S), nil
	case KindBool:
		return cmp3(!a.B && b.B, a.B && !b.B), nil
	case KindTime:
		return cmp3(a.T.Before(b.T), a.T.After(b.T)), nil
	}
	return 0, fmt.Errorf("cannot compare %s: %w", a.Kind, utils.ErrTypeMismatch)
}

func cmp3(less, greater bool) int {
	if less {
		return -1
	}
	if greater {
		return 1
	}
	return 0
}
