package utils

type PermError string

func (e PermError) Error() string {
	return string(e)
}

func (e PermError) IsPermanent() bool {
	return true
}

var (
	// ErrNotFound is a reference to an undeclared table or column.
	ErrNotFound = PermError("not found")
	// ErrRecordNotFound is a reference to a record key that does not exist.
	ErrRecordNotFound = PermError("record not found")
	// ErrTypeMismatch is a value that is neither the column's kind nor string-coercible to it.
	ErrTypeMismatch = PermError("type mismatch")
	// ErrDuplicateKey is an attempt to create a table or record that already exists.
	ErrDuplicateKey = PermError("duplicate key")
	// ErrUnsupportedShape is an operand with a shape the operation cannot take, such as a map given to IN.
	ErrUnsupportedShape = PermError("unsupported shape")
	ErrClosed           = PermError("store closed")
)

// IsPermanent reports whether err (or anything it wraps) is marked permanent.
func IsPermanent(err error) bool {
	for err != nil {
		if p, ok := err.(interface{ IsPermanent() bool }); ok && p.IsPermanent() {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
