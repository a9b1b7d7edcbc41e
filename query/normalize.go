package query

import (
	"strings"
)

// AllOf is AND. Nested ANDs are unrolled, True members dropped, structurally equal
// members de-duplicated, and a single survivor is returned without a wrapper.
func AllOf(terms ...Condition) Condition {
	flat := flatten(terms, func(c Condition) ([]Condition, bool) {
		a, ok := c.(*And)
		if !ok {
			return nil, false
		}
		return a.Terms, true
	})
	out := make([]Condition, 0, len(flat))
	for _, t := range flat {
		if IsTrue(t) {
			continue
		}
		out = append(out, t)
	}
	out = dedupe(out)
	switch len(out) {
	case 0:
		return True
	case 1:
		return out[0]
	}
	return &And{Terms: out}
}

// AnyOf is OR. Nested ORs are unrolled and any True member makes the whole thing True.
func AnyOf(terms ...Condition) Condition {
	flat := flatten(terms, func(c Condition) ([]Condition, bool) {
		o, ok := c.(*Or)
		if !ok {
			return nil, false
		}
		return o.Terms, true
	})
	for _, t := range flat {
		if IsTrue(t) {
			return True
		}
	}
	out := dedupe(flat)
	if len(out) == 1 {
		return out[0]
	}
	return &Or{Terms: out}
}

// OneOf is XOR: exactly one term holds. "Exactly one" is not associative and
// duplicates change its meaning, so terms are kept as given; only a single term
// collapses to itself.
func OneOf(terms ...Condition) Condition {
	out := make([]Condition, 0, len(terms))
	for _, t := range terms {
		if t == nil {
			t = True
		}
		out = append(out, t)
	}
	if len(out) == 1 {
		return out[0]
	}
	return &Xor{Terms: out}
}

// Negate is NOT, unwrapping a double negation instead of nesting.
func Negate(c Condition) Condition {
	if c == nil {
		c = True
	}
	if n, ok := c.(*Not); ok {
		return n.Term
	}
	return &Not{Term: c}
}

func flatten(terms []Condition, unroll func(Condition) ([]Condition, bool)) []Condition {
	out := make([]Condition, 0, len(terms))
	for _, t := range terms {
		if t == nil {
			continue
		}
		if inner, ok := unroll(t); ok {
			out = append(out, flatten(inner, unroll)...)
			continue
		}
		out = append(out, t)
	}
	return out
}

func dedupe(terms []Condition) []Condition {
	seen := make(map[string]bool, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		k := Key(t)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}

// Equal reports structural equality.
func Equal(a, b Condition) bool {
	return Key(a) == Key(b)
}

// Key renders c canonically; structurally equal conditions share a key.
func Key(c Condition) string {
	var sb strings.Builder
	writeKey(&sb, c)
	return sb.String()
}

func writeKey(sb *strings.Builder, c Condition) {
	if IsTrue(c) {
		sb.WriteString("true")
		return
	}
	switch t := c.(type) {
	case *Comparison:
		sb.WriteString(t.Op.String())
		sb.WriteString("(")
		sb.WriteString(t.Source.String())
		switch t.Op {
		case OpIsNull, OpIsNotNull:
		case OpIn:
			sb.WriteString(",[")
			for i, v := range t.Operands {
				if i > 0 {
					sb.WriteString(",")
				}
				sb.WriteString(v.GoString())
			}
			sb.WriteString("]")
		default:
			sb.WriteString(",")
			sb.WriteString(t.Operand.GoString())
		}
		sb.WriteString(")")
	case *And:
		writeKeyList(sb, "and", t.Terms)
	case *Or:
		writeKeyList(sb, "or", t.Terms)
	case *Xor:
		writeKeyList(sb, "xor", t.Terms)
	case *Not:
		sb.WriteString("not(")
		writeKey(sb, t.Term)
		sb.WriteString(")")
	case *Association:
		sb.WriteString(t.Kind.String())
		sb.WriteString("(")
		sb.WriteString(strings.Join([]string{t.Column, t.Target, t.TargetKey, t.ForeignKey, t.OwnerKey,
			t.JoinTable, t.JoinOwnerColumn, t.JoinTargetColumn}, ","))
		sb.WriteString(",")
		writeKey(sb, t.Cond)
		sb.WriteString(")")
	}
}

func writeKeyList(sb *strings.Builder, name string, terms []Condition) {
	sb.WriteString(name)
	sb.WriteString("(")
	for i, t := range terms {
		if i > 0 {
			sb.WriteString(",")
		}
		writeKey(sb, t)
	}
	sb.WriteString(")")
}
