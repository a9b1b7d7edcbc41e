// Package query holds the condition, order, scope and aggregate DSL shared by every
// store. A Condition is a plain tree of values. Evaluate interprets it against a row
// in-process and Compile turns the same tree into a backend fragment; the two are
// kept independent so normalization can be tested on its own.
package query

import (
	"fmt"
	"reflect"

	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
)

type Comparator int

const (
	OpTrue Comparator = iota
	OpIs
	OpIsNot
	OpLike
	OpIsNull
	OpIsNotNull
	OpLarger
	OpLargerEquals
	OpSmaller
	OpSmallerEquals
	OpIn
)

var comparatorNames = map[Comparator]string{
	OpTrue:          "true",
	OpIs:            "is",
	OpIsNot:         "is_not",
	OpLike:          "like",
	OpIsNull:        "is_null",
	OpIsNotNull:     "is_not_null",
	OpLarger:        "larger",
	OpLargerEquals:  "larger_equals",
	OpSmaller:       "smaller",
	OpSmallerEquals: "smaller_equals",
	OpIn:            "in",
}

func (c Comparator) String() string {
	if s, ok := comparatorNames[c]; ok {
		return s
	}
	return fmt.Sprintf("comparator(%d)", int(c))
}

// ParseComparator is the inverse of Comparator.String.
func ParseComparator(s string) (Comparator, error) {
	for c, name := range comparatorNames {
		if name == s {
			return c, nil
		}
	}
	return OpTrue, fmt.Errorf("unknown comparator %q: %w", s, utils.ErrUnsupportedShape)
}

type (
	// Condition is one of *Comparison, *And, *Or, *Xor, *Not or *Association.
	Condition interface {
		isCondition()
	}

	// Comparison is a leaf: Source Op Operand. IN keeps its normalized list in Operands.
	Comparison struct {
		Source   Source
		Op       Comparator
		Operand  value.Value
		Operands []value.Value
	}

	And struct {
		Terms []Condition
	}

	Or struct {
		Terms []Condition
	}

	// Xor holds when exactly one term holds.
	Xor struct {
		Terms []Condition
	}

	Not struct {
		Term Condition
	}
)

func (*Comparison) isCondition()  {}
func (*And) isCondition()         {}
func (*Or) isCondition()          {}
func (*Xor) isCondition()         {}
func (*Not) isCondition()         {}
func (*Association) isCondition() {}

// True always holds and contributes no parameter.
var True Condition = &Comparison{Op: OpTrue}

// IsTrue reports whether c is the always-true leaf (a nil condition counts).
func IsTrue(c Condition) bool {
	if c == nil {
		return true
	}
	cmp, ok := c.(*Comparison)
	return ok && cmp.Op == OpTrue
}

// Compare builds a leaf for any comparator except IN.
func Compare(src Source, op Comparator, operand value.Value) Condition {
	if op == OpTrue {
		return True
	}
	if op == OpIsNull || op == OpIsNotNull {
		operand = value.Null()
	}
	return &Comparison{Source: src, Op: op, Operand: operand}
}

func Is(column string, v value.Value) Condition {
	return Compare(Col(column), OpIs, v)
}

func IsNot(column string, v value.Value) Condition {
	return Compare(Col(column), OpIsNot, v)
}

func Like(column, pattern string) Condition {
	return Compare(Col(column), OpLike, value.String(pattern))
}

func IsNull(column string) Condition {
	return Compare(Col(column), OpIsNull, value.Null())
}

func IsNotNull(column string) Condition {
	return Compare(Col(column), OpIsNotNull, value.Null())
}

func Larger(column string, v value.Value) Condition {
	return Compare(Col(column), OpLarger, v)
}

func LargerEquals(column string, v value.Value) Condition {
	return Compare(Col(column), OpLargerEquals, v)
}

func Smaller(column string, v value.Value) Condition {
	return Compare(Col(column), OpSmaller, v)
}

func SmallerEquals(column string, v value.Value) Condition {
	return Compare(Col(column), OpSmallerEquals, v)
}

// In builds an IN leaf. The operand is normalized to a list right away: slices and
// arrays are taken element by element, a single scalar becomes a one element list,
// and maps, structs and other shapes fail with ErrUnsupportedShape.
func In(column string, operand any) (Condition, error) {
	return InSource(Col(column), operand)
}

func InSource(src Source, operand any) (Condition, error) {
	list, err := normalizeInOperand(operand)
	if err != nil {
		return nil, fmt.Errorf("IN operand for %s: %w", src, err)
	}
	return &Comparison{Source: src, Op: OpIn, Operands: list}, nil
}

// MustIn is In for literal operands known to be well formed.
func MustIn(column string, operand any) Condition {
	c, err := In(column, operand)
	if err != nil {
		panic(err)
	}
	return c
}

func normalizeInOperand(operand any) ([]value.Value, error) {
	switch t := operand.(type) {
	case []value.Value:
		return append([]value.Value(nil), t...), nil
	case value.Value:
		return []value.Value{t}, nil
	}
	rv := reflect.ValueOf(operand)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			v, err := value.FromAny(operand)
			if err != nil {
				return nil, err
			}
			return []value.Value{v}, nil
		}
		list := make([]value.Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			v, err := value.FromAny(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	}
	v, err := value.FromAny(operand)
	if err != nil {
		return nil, err
	}
	return []value.Value{v}, nil
}
