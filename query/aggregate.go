package query

import (
	"fmt"

	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
)

type AggregateFunc int

const (
	Minimum AggregateFunc = iota
	Maximum
	Sum
	SumFloating
	Average
	CountNotNull
	CountDistinct
)

var aggregateNames = map[AggregateFunc]string{
	Minimum:       "min",
	Maximum:       "max",
	Sum:           "sum",
	SumFloating:   "sum_floating",
	Average:       "avg",
	CountNotNull:  "count",
	CountDistinct: "count_distinct",
}

func (f AggregateFunc) String() string {
	if s, ok := aggregateNames[f]; ok {
		return s
	}
	return fmt.Sprintf("aggregate(%d)", int(f))
}

func ParseAggregateFunc(s string) (AggregateFunc, error) {
	for f, name := range aggregateNames {
		if name == s {
			return f, nil
		}
	}
	return Minimum, fmt.Errorf("unknown aggregate %q: %w", s, utils.ErrUnsupportedShape)
}

// Aggregate reduces the values of Source over a row sequence to one value.
type Aggregate struct {
	Func   AggregateFunc
	Source Source
}

func Agg(f AggregateFunc, column string) Aggregate {
	return Aggregate{Func: f, Source: Col(column)}
}

// Reducer accumulates an aggregate one record at a time. Null inputs are skipped by
// every function, so they count toward neither totals nor denominators.
type Reducer struct {
	agg      Aggregate
	n        int64
	sumI     int64
	sumF     float64
	floats   bool
	best     value.Value
	distinct map[string]struct{}
}

func NewReducer(a Aggregate) *Reducer {
	r := &Reducer{agg: a}
	if a.Func == CountDistinct {
		r.distinct = make(map[string]struct{})
	}
	return r
}

// ForKind tells the reducer the declared kind of its source, so a Sum over a float
// source is Float even when no value was added.
func (r *Reducer) ForKind(kind value.Kind) *Reducer {
	if kind == value.KindFloat {
		r.floats = true
	}
	return r
}

// Add folds the aggregate's source value of g into the reduction.
func (r *Reducer) Add(g Getter) error {
	v, err := r.agg.Source.Value(g)
	if err != nil {
		return err
	}
	return r.AddValue(v)
}

func (r *Reducer) AddValue(v value.Value) error {
	if v.IsNull() {
		return nil
	}
	switch r.agg.Func {
	case Minimum, Maximum:
		if r.n == 0 {
			r.best = v
			break
		}
		c, err := value.Compare(v, r.best)
		if err != nil {
			return fmt.Errorf("%s of %s: %w", r.agg.Func, r.agg.Source, err)
		}
		if (r.agg.Func == Minimum && c < 0) || (r.agg.Func == Maximum && c > 0) {
			r.best = v
		}
	case Sum, SumFloating, Average:
		switch v.Kind {
		case value.KindInt:
			r.sumI += v.I64
			r.sumF += float64(v.I64)
		case value.KindFloat:
			r.floats = true
			r.sumF += v.F64
		default:
			return fmt.Errorf("%s of %s over %s: %w", r.agg.Func, r.agg.Source, v.Kind, utils.ErrTypeMismatch)
		}
	case CountDistinct:
		r.distinct[v.GoString()] = struct{}{}
	}
	r.n++
	return nil
}

// Result is the reduced value. Minimum, Maximum and Average of no values are Null;
// Sum and SumFloating of no values are zero; counts are Int.
func (r *Reducer) Result() value.Value {
	switch r.agg.Func {
	case Minimum, Maximum:
		if r.n == 0 {
			return value.Null()
		}
		return r.best
	case Sum:
		if r.floats {
			return value.Float(r.sumF)
		}
		return value.Int(r.sumI)
	case SumFloating:
		return value.Float(r.sumF)
	case Average:
		if r.n == 0 {
			return value.Null()
		}
		return value.Float(r.sumF / float64(r.n))
	case CountNotNull:
		return value.Int(r.n)
	case CountDistinct:
		return value.Int(int64(len(r.distinct)))
	}
	return value.Null()
}

// Reduce runs a over rows.
func Reduce[G Getter](a Aggregate, rows []G) (value.Value, error) {
	r := NewReducer(a)
	for _, row := range rows {
		if err := r.Add(row); err != nil {
			return value.Value{}, err
		}
	}
	return r.Result(), nil
}

// CompileAggregate renders the select expression that computes a in the backend.
func CompileAggregate(a Aggregate, d Dialect, table string) (string, error) {
	col := d.QuoteIdent(a.Source.Column)
	if table != "" {
		col = d.QuoteIdent(table) + "." + col
	}
	expr, err := sourceSQL(d, a.Source, col)
	if err != nil {
		return "", err
	}
	switch a.Func {
	case Minimum:
		return "MIN(" + expr + ")", nil
	case Maximum:
		return "MAX(" + expr + ")", nil
	case Sum:
		return "COALESCE(SUM(" + expr + "), 0)", nil
	case SumFloating:
		return "COALESCE(SUM(CAST(" + expr + " AS " + d.FloatType() + ")), 0)", nil
	case Average:
		return "AVG(CAST(" + expr + " AS " + d.FloatType() + "))", nil
	case CountNotNull:
		return "COUNT(" + expr + ")", nil
	case CountDistinct:
		return "COUNT(DISTINCT " + expr + ")", nil
	}
	return "", fmt.Errorf("cannot compile aggregate %s", a.Func)
}
