package query

import (
	"errors"
	"math"
	"testing"

	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
)

func column(vals ...value.Value) []value.Row {
	rows := make([]value.Row, len(vals))
	for i, v := range vals {
		rows[i] = value.Row{"x": v}
	}
	return rows
}

func reduce(t *testing.T, f AggregateFunc, rows []value.Row) value.Value {
	t.Helper()
	v, err := Reduce(Agg(f, "x"), rows)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestAggregatesSkipNulls(t *testing.T) {
	rows := column(value.Int(1), value.Null(), value.Int(3))

	if v := reduce(t, Sum, rows); v.Kind != value.KindInt || v.I64 != 4 {
		t.Fatalf("sum: expected 4, got %#v", v)
	}
	if v := reduce(t, Average, rows); v.F64 != 2.0 {
		t.Fatalf("avg: expected 2.0, got %#v", v)
	}
	if v := reduce(t, CountNotNull, rows); v.I64 != 2 {
		t.Fatalf("count: expected 2, got %#v", v)
	}
	if v := reduce(t, Minimum, rows); v.I64 != 1 {
		t.Fatalf("min: expected 1, got %#v", v)
	}
	if v := reduce(t, Maximum, rows); v.I64 != 3 {
		t.Fatalf("max: expected 3, got %#v", v)
	}
	if v := reduce(t, SumFloating, rows); math.Abs(v.F64-4.0) > 1e-9 {
		t.Fatalf("sum floating: expected 4.0, got %#v", v)
	}
}

func TestAggregatesEmpty(t *testing.T) {
	for _, f := range []AggregateFunc{Minimum, Maximum, Average} {
		if v := reduce(t, f, nil); !v.IsNull() {
			t.Fatalf("%s of nothing should be null, got %#v", f, v)
		}
	}
	if v := reduce(t, Minimum, column(value.Null())); !v.IsNull() {
		t.Fatal("min over only nulls should be null")
	}
	if v := reduce(t, Sum, nil); v.Kind != value.KindInt || v.I64 != 0 {
		t.Fatalf("sum of nothing should be 0, got %#v", v)
	}
	if v := reduce(t, CountNotNull, nil); v.I64 != 0 {
		t.Fatal("count of nothing should be 0")
	}
	if v := NewReducer(Agg(Sum, "x")).ForKind(value.KindFloat).Result(); v.Kind != value.KindFloat || v.F64 != 0 {
		t.Fatalf("sum of nothing over a float source should be Float 0, got %#v", v)
	}
	if v := NewReducer(Agg(Sum, "x")).ForKind(value.KindInt).Result(); v.Kind != value.KindInt {
		t.Fatalf("sum of nothing over an int source should be Int, got %#v", v)
	}
}

func TestCountDistinct(t *testing.T) {
	rows := column(value.String("a"), value.String("b"), value.String("a"), value.Null())
	if v := reduce(t, CountDistinct, rows); v.I64 != 2 {
		t.Fatalf("expected 2, got %#v", v)
	}
}

func TestSumRejectsStrings(t *testing.T) {
	_, err := Reduce(Agg(Sum, "x"), column(value.String("a")))
	if !errors.Is(err, utils.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}
