package value

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the closed set of value kinds a column can declare.
type Kind int

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "null":
		return KindNull, nil
	case "int":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	case "string":
		return KindString, nil
	case "bool":
		return KindBool, nil
	case "time":
		return KindTime, nil
	}
	return KindNull, fmt.Errorf("unknown kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Value is a single cell. Only the field matching Kind is meaningful.
type Value struct {
	Kind Kind

	I64 int64
	F64 float64
	S   string
	B   bool
	T   time.Time
}

func Null() Value               { return Value{} }
func Int(v int64) Value         { return Value{Kind: KindInt, I64: v} }
func Float(v float64) Value     { return Value{Kind: KindFloat, F64: v} }
func String(v string) Value     { return Value{Kind: KindString, S: v} }
func Bool(v bool) Value         { return Value{Kind: KindBool, B: v} }
func Time(v time.Time) Value    { return Value{Kind: KindTime, T: v.UTC()} }
func (v Value) IsNull() bool    { return v.Kind == KindNull }
func (v Value) IsNumeric() bool { return v.Kind == KindInt || v.Kind == KindFloat }

// String formats the value the way a string column stores it.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInt:
		return strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case KindString:
		return v.S
	case KindBool:
		return strconv.FormatBool(v.B)
	case KindTime:
		return v.T.Format(time.RFC3339Nano)
	default:
		return "?"
	}
}

// GoString is a kind-tagged rendering used for canonical condition keys.
func (v Value) GoString() string {
	if v.Kind == KindString {
		return strconv.Quote(v.S)
	}
	return v.Kind.String() + "(" + v.String() + ")"
}

// Native returns the Go value handed to database drivers and JSON encoders.
func (v Value) Native() any {
	switch v.Kind {
	case KindInt:
		return v.I64
	case KindFloat:
		return v.F64
	case KindString:
		return v.S
	case KindBool:
		return v.B
	case KindTime:
		return v.T
	default:
		return nil
	}
}

func (v Value) asFloat() float64 {
	if v.Kind == KindInt {
		return float64(v.I64)
	}
	return v.F64
}
