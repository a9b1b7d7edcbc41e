package query

import "github.com/danthegoodman1/recordstore/value"

// KindOf reports the declared kind of column in table, ok=false when it is unknown.
type KindOf func(table, column string) (kind value.Kind, ok bool)

// never holds for every row and compiles to FALSE without parameters.
func never(src Source) Condition {
	return &Comparison{Source: src, Op: OpIn}
}

// sourceKind is the kind a source yields on table, ok=false when it cannot be told.
func sourceKind(src Source, table string, kindOf KindOf) (value.Kind, bool) {
	if src.Func != "" {
		f, ok := Functions[src.Func]
		if !ok {
			return value.KindNull, false
		}
		return f.Kind, true
	}
	if kindOf == nil {
		return value.KindNull, false
	}
	return kindOf(table, src.Column)
}

// StringOnlyLike replaces LIKE leaves that can never match, a non-string pattern or a
// source of a known non-string kind, with a leaf that is always false. Evaluate already
// treats them so, while a backend would reject the comparison. Association conditions
// are checked against their target table.
func StringOnlyLike(c Condition, table string, kindOf KindOf) Condition {
	switch t := c.(type) {
	case *Comparison:
		if t.Op != OpLike {
			return t
		}
		if t.Operand.Kind != value.KindString {
			return never(t.Source)
		}
		if kind, ok := sourceKind(t.Source, table, kindOf); ok && kind != value.KindString {
			return never(t.Source)
		}
		return t
	case *And:
		return &And{Terms: stringOnlyLikeTerms(t.Terms, table, kindOf)}
	case *Or:
		return &Or{Terms: stringOnlyLikeTerms(t.Terms, table, kindOf)}
	case *Xor:
		return &Xor{Terms: stringOnlyLikeTerms(t.Terms, table, kindOf)}
	case *Not:
		return &Not{Term: StringOnlyLike(t.Term, table, kindOf)}
	case *Association:
		out := *t
		out.Cond = StringOnlyLike(t.Cond, t.Target, kindOf)
		return &out
	}
	return c
}

func stringOnlyLikeTerms(terms []Condition, table string, kindOf KindOf) []Condition {
	out := make([]Condition, len(terms))
	for i, x := range terms {
		out[i] = StringOnlyLike(x, table, kindOf)
	}
	return out
}
