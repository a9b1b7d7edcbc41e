package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
)

// Source is where a comparison, order or aggregate reads its value: a column, or a
// derived function applied to a column.
type Source struct {
	Column string
	Func   string
}

func Col(column string) Source {
	return Source{Column: value.CanonicalName(column)}
}

// Fn applies the registered derived function fn to column.
func Fn(fn, column string) Source {
	return Source{Column: value.CanonicalName(column), Func: fn}
}

func (s Source) String() string {
	if s.Func == "" {
		return s.Column
	}
	return s.Func + "(" + s.Column + ")"
}

// Value reads the column from g and applies the derived function, if any.
func (s Source) Value(g Getter) (value.Value, error) {
	v, err := g.Get(s.Column)
	if err != nil {
		return value.Value{}, err
	}
	if s.Func == "" {
		return v, nil
	}
	f, ok := Functions[s.Func]
	if !ok {
		return value.Value{}, fmt.Errorf("derived function %q: %w", s.Func, ErrFuncNotFound)
	}
	return f.Apply(v)
}

type (
	// DerivedFunc is a value function with an in-process form and one SQL template per
	// dialect. Templates reference the argument as {col}.
	DerivedFunc struct {
		Name string
		// Kind is the kind of every non-null result.
		Kind  value.Kind
		Apply func(v value.Value) (value.Value, error)
		SQL   map[string]string
	}
)

var (
	Functions = make(map[string]DerivedFunc)

	ErrFuncNotFound      = utils.PermError("derived function not found")
	ErrInvalidColumnType = fmt.Errorf("invalid column type: %w", utils.ErrTypeMismatch)
)

func RegisterFunction(f DerivedFunc) {
	Functions[f.Name] = f
}

func init() {
	RegisterFunctions()
}

// RegisterFunctions installs the built in derived functions.
func RegisterFunctions() {
	RegisterFunction(timeFunc("toYear", func(t time.Time) int64 { return int64(t.Year()) }, "YEAR", "%Y"))
	RegisterFunction(timeFunc("toMonth", func(t time.Time) int64 { return int64(t.Month()) }, "MONTH", "%m"))
	RegisterFunction(timeFunc("toDay", func(t time.Time) int64 { return int64(t.Day()) }, "DAY", "%d"))
	RegisterFunction(timeFunc("toYearDay", func(t time.Time) int64 { return int64(t.YearDay()) }, "DOY", "%j"))
	RegisterFunction(timeFunc("toWeekDay", func(t time.Time) int64 { return int64(t.Weekday()) }, "DOW", "%w"))
	RegisterFunction(timeFunc("toYearWeek", func(t time.Time) int64 {
		_, w := t.ISOWeek()
		return int64(w)
	}, "WEEK", ""))
	RegisterFunction(stringFunc("lower", strings.ToLower, "LOWER({col})"))
	RegisterFunction(stringFunc("upper", strings.ToUpper, "UPPER({col})"))
}

func timeFunc(name string, part func(time.Time) int64, pgField, sqliteFmt string) DerivedFunc {
	sql := map[string]string{
		PostgresName: "CAST(EXTRACT(" + pgField + " FROM {col}) AS INT8)",
	}
	if sqliteFmt != "" {
		sql[GenericName] = "CAST(strftime('" + sqliteFmt + "', {col}) AS INTEGER)"
	}
	return DerivedFunc{
		Name: name,
		Kind: value.KindInt,
		Apply: func(v value.Value) (value.Value, error) {
			if v.IsNull() {
				return value.Null(), nil
			}
			t, err := parseTime(v)
			if err != nil {
				return value.Value{}, fmt.Errorf("error in %s: %w", name, err)
			}
			return value.Int(part(t)), nil
		},
		SQL: sql,
	}
}

func stringFunc(name string, f func(string) string, template string) DerivedFunc {
	return DerivedFunc{
		Name: name,
		Kind: value.KindString,
		Apply: func(v value.Value) (value.Value, error) {
			if v.IsNull() {
				return value.Null(), nil
			}
			if v.Kind != value.KindString {
				return value.Value{}, fmt.Errorf("%s of %s: %w", name, v.Kind, utils.ErrTypeMismatch)
			}
			return value.String(f(v.S)), nil
		},
		SQL: map[string]string{PostgresName: template, GenericName: template},
	}
}

// parseTime accepts time values, millisecond ISO strings and unix milliseconds.
func parseTime(v value.Value) (time.Time, error) {
	switch v.Kind {
	case value.KindTime:
		return v.T.UTC(), nil
	case value.KindString:
		// We have a datetime like YYYY-MM-DDTHH:mm:ss.sssZ
		t, err := time.Parse("2006-01-02T15:04:05.000Z", v.S)
		if err != nil {
			t, err = time.Parse(time.RFC3339Nano, v.S)
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("error in time.Parse for string: %w", err)
		}
		return t.UTC(), nil
	case value.KindInt:
		return time.UnixMilli(v.I64).UTC(), nil
	case value.KindFloat:
		return time.UnixMilli(int64(v.F64)).UTC(), nil
	}
	return time.Time{}, ErrInvalidColumnType
}
