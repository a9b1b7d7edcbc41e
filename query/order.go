package query

import (
	"strings"

	"github.com/danthegoodman1/recordstore/value"
)

type Direction int

const (
	// Unset orders ascending.
	Unset Direction = iota
	Ascending
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

type OrderTerm struct {
	Source    Source
	Direction Direction
}

// Order compares records by its terms in sequence; the first term that differs decides.
// Orders are immutable values.
type Order struct {
	terms []OrderTerm
}

func OrderBy(column string, dir Direction) Order {
	return OrderBySource(Col(column), dir)
}

func OrderBySource(src Source, dir Direction) Order {
	return Order{terms: []OrderTerm{{Source: src, Direction: dir}}}
}

func Asc(column string) Order  { return OrderBy(column, Ascending) }
func Desc(column string) Order { return OrderBy(column, Descending) }

// Combine concatenates orders; earlier orders win ties.
func Combine(orders ...Order) Order {
	var terms []OrderTerm
	for _, o := range orders {
		terms = append(terms, o.terms...)
	}
	return Order{terms: terms}
}

// Then is Combine(o, next).
func (o Order) Then(next Order) Order {
	return Combine(o, next)
}

// Reversed flips every term's direction.
func (o Order) Reversed() Order {
	terms := make([]OrderTerm, len(o.terms))
	for i, t := range o.terms {
		if t.Direction == Descending {
			t.Direction = Ascending
		} else {
			t.Direction = Descending
		}
		terms[i] = t
	}
	return Order{terms: terms}
}

func (o Order) Terms() []OrderTerm {
	return append([]OrderTerm(nil), o.terms...)
}

func (o Order) IsEmpty() bool {
	return len(o.terms) == 0
}

// Compare orders a before b (<0), after (>0) or neither (0). Null sorts first in
// ascending order.
func (o Order) Compare(a, b Getter) (int, error) {
	for _, t := range o.terms {
		av, err := t.Source.Value(a)
		if err != nil {
			return 0, err
		}
		bv, err := t.Source.Value(b)
		if err != nil {
			return 0, err
		}
		c, err := value.Compare(av, bv)
		if err != nil {
			return 0, err
		}
		if c == 0 {
			continue
		}
		if t.Direction == Descending {
			return -c, nil
		}
		return c, nil
	}
	return 0, nil
}

func (o Order) String() string {
	parts := make([]string, len(o.terms))
	for i, t := range o.terms {
		parts[i] = t.Source.String() + " " + t.Direction.String()
	}
	return strings.Join(parts, ", ")
}

// CompileOrder renders the ORDER BY list (without the keywords). NULLS FIRST on
// ascending and NULLS LAST on descending terms keep backend order equal to Compare.
func CompileOrder(o Order, d Dialect, table string) (string, error) {
	parts := make([]string, len(o.terms))
	for i, t := range o.terms {
		col := d.QuoteIdent(t.Source.Column)
		if table != "" {
			col = d.QuoteIdent(table) + "." + col
		}
		expr, err := sourceSQL(d, t.Source, col)
		if err != nil {
			return "", err
		}
		if t.Direction == Descending {
			parts[i] = expr + " DESC NULLS LAST"
		} else {
			parts[i] = expr + " ASC NULLS FIRST"
		}
	}
	return strings.Join(parts, ", "), nil
}
