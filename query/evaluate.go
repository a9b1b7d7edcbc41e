package query

import (
	"errors"
	"fmt"

	"github.com/danthegoodman1/recordstore/value"
)

type (
	// Getter yields column values for one record. value.Row is a Getter; stores
	// provide lazy getters backed by their own get path.
	Getter interface {
		Get(column string) (value.Value, error)
	}

	// Resolver lets association conditions reach related rows through the owning store.
	Resolver interface {
		// Exists reports whether any row of table matches c.
		Exists(table string, c Condition) (bool, error)
		// ValuesByForeignKey projects column of the rows of table whose condColumn equals condValue.
		ValuesByForeignKey(table, column, condColumn string, condValue value.Value) ([]value.Value, error)
	}
)

var ErrNoResolver = errors.New("association condition evaluated without a resolver")

// Matches evaluates c against a materialized row. Association conditions need Evaluate.
func Matches(c Condition, row value.Row) (bool, error) {
	return Evaluate(c, row, nil)
}

// Evaluate interprets c against the record g. A nil condition holds.
func Evaluate(c Condition, g Getter, r Resolver) (bool, error) {
	if c == nil {
		return true, nil
	}
	switch t := c.(type) {
	case *Comparison:
		return evalComparison(t, g)
	case *And:
		for _, term := range t.Terms {
			ok, err := Evaluate(term, g, r)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *Or:
		for _, term := range t.Terms {
			ok, err := Evaluate(term, g, r)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case *Xor:
		held := 0
		for _, term := range t.Terms {
			ok, err := Evaluate(term, g, r)
			if err != nil {
				return false, err
			}
			if ok {
				held++
				if held > 1 {
					return false, nil
				}
			}
		}
		return held == 1, nil
	case *Not:
		ok, err := Evaluate(t.Term, g, r)
		return !ok && err == nil, err
	case *Association:
		if r == nil {
			return false, ErrNoResolver
		}
		return evalAssociation(t, g, r)
	}
	return false, fmt.Errorf("unknown condition %T", c)
}

func evalComparison(c *Comparison, g Getter) (bool, error) {
	if c.Op == OpTrue {
		return true, nil
	}
	v, err := c.Source.Value(g)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case OpIs:
		return value.Equal(v, c.Operand), nil
	case OpIsNot:
		return !value.Equal(v, c.Operand), nil
	case OpIsNull:
		return v.IsNull(), nil
	case OpIsNotNull:
		return !v.IsNull(), nil
	case OpLike:
		if v.Kind != value.KindString || c.Operand.Kind != value.KindString {
			return false, nil
		}
		return likeMatch(v.S, c.Operand.S), nil
	case OpIn:
		if v.IsNull() {
			return false, nil
		}
		for _, o := range c.Operands {
			if !o.IsNull() && value.Equal(v, o) {
				return true, nil
			}
		}
		return false, nil
	case OpLarger, OpLargerEquals, OpSmaller, OpSmallerEquals:
		// NULL on either side never satisfies an ordering comparison
		if v.IsNull() || c.Operand.IsNull() {
			return false, nil
		}
		cmp, err := value.Compare(v, c.Operand)
		if err != nil {
			return false, fmt.Errorf("comparing %s: %w", c.Source, err)
		}
		switch c.Op {
		case OpLarger:
			return cmp > 0, nil
		case OpLargerEquals:
			return cmp >= 0, nil
		case OpSmaller:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	}
	return false, fmt.Errorf("unknown comparator %s", c.Op)
}

func evalAssociation(a *Association, g Getter, r Resolver) (bool, error) {
	switch a.Kind {
	case BelongsToKind:
		fk, err := g.Get(a.Column)
		if err != nil || fk.IsNull() {
			return false, err
		}
		// a vanished target is no association rather than an error
		return r.Exists(a.Target, AllOf(Is(a.TargetKey, fk), a.Cond))
	case HasOneKind, HasManyKind:
		owner, err := g.Get(a.OwnerKey)
		if err != nil || owner.IsNull() {
			return false, err
		}
		return r.Exists(a.Target, AllOf(Is(a.ForeignKey, owner), a.Cond))
	case HasManyThroughKind:
		owner, err := g.Get(a.OwnerKey)
		if err != nil || owner.IsNull() {
			return false, err
		}
		ids, err := r.ValuesByForeignKey(a.JoinTable, a.JoinTargetColumn, a.JoinOwnerColumn, owner)
		if err != nil {
			return false, err
		}
		targets := make([]value.Value, 0, len(ids))
		for _, id := range ids {
			if !id.IsNull() {
				targets = append(targets, id)
			}
		}
		if len(targets) == 0 {
			return false, nil
		}
		return r.Exists(a.Target, AllOf(&Comparison{Source: Col(a.TargetKey), Op: OpIn, Operands: targets}, a.Cond))
	}
	return false, fmt.Errorf("unknown association %s", a.Kind)
}
