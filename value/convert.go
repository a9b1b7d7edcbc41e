package value

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/danthegoodman1/recordstore/utils"
)

// Convert applies the coercion table: a value of the target kind passes through,
// Null stays Null, anything converts to String, and every other pair is rejected.
func Convert(v Value, to Kind) (Value, error) {
	if v.Kind == to || v.Kind == KindNull {
		return v, nil
	}
	switch to {
	case KindString:
		return String(v.String()), nil
	case KindInt, KindFloat, KindBool, KindTime:
		return Value{}, fmt.Errorf("cannot store %s as %s: %w", v.Kind, to, utils.ErrTypeMismatch)
	}
	return Value{}, fmt.Errorf("unknown target kind %s: %w", to, utils.ErrTypeMismatch)
}

// FromAny converts a Go native into a Value. Pointers are dereferenced, nil is Null.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case []byte:
		return String(string(t)), nil
	case bool:
		return Bool(t), nil
	case time.Time:
		return Time(t), nil
	}
	rv := reflect.ValueOf(x)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return Null(), nil
		}
		return FromAny(rv.Elem().Interface())
	}
	return Value{}, fmt.Errorf("cannot represent %T as a value: %w", x, utils.ErrUnsupportedShape)
}

// FromJSON converts a decoded JSON scalar into the given kind. JSON has a single
// number type, so integral floats are accepted for int columns and RFC3339 strings
// or unix milliseconds for time columns.
func FromJSON(x any, kind Kind) (Value, error) {
	if x == nil {
		return Null(), nil
	}
	if n, ok := x.(json.Number); ok {
		if i, err := n.Int64(); err == nil && kind == KindInt {
			return Int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("error in Float64: %s %w", err.Error(), utils.ErrTypeMismatch)
		}
		x = f
	}
	switch kind {
	case KindInt:
		if f, ok := x.(float64); ok && f == float64(int64(f)) {
			return Int(int64(f)), nil
		}
	case KindTime:
		switch t := x.(type) {
		case string:
			ts, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return Value{}, fmt.Errorf("error in time.Parse: %s %w", err.Error(), utils.ErrTypeMismatch)
			}
			return Time(ts), nil
		case float64:
			return Time(time.UnixMilli(int64(t))), nil
		}
	}
	v, err := FromAny(x)
	if err != nil {
		return Value{}, err
	}
	return Convert(v, kind)
}
