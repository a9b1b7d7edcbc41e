package schema

import (
	"fmt"
	"time"

	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
	"github.com/go-playground/validator/v10"
)

const (
	CreatedAt = "created_at"
	UpdatedAt = "updated_at"
)

var validate = validator.New()

type (
	// Column is a typed, case-insensitively named field.
	Column struct {
		Name string     `json:"name" validate:"required,max=63,excludesall=\"\x00"`
		Kind value.Kind `json:"kind" validate:"min=1,max=5"`
	}

	// TableDef declares a table. Timestamped tables carry created_at and updated_at
	// time columns that the cache layer stamps.
	TableDef struct {
		Name        string   `json:"name" validate:"required,max=63,excludesall=\"\x00"`
		PrimaryKey  string   `json:"primary_key" validate:"required,max=63"`
		Columns     []Column `json:"columns" validate:"dive"`
		Timestamped bool     `json:"timestamped"`
	}
)

// Coerce converts v into this column's kind or fails with ErrTypeMismatch.
func (c Column) Coerce(v value.Value) (value.Value, error) {
	out, err := value.Convert(v, c.Kind)
	if err != nil {
		return value.Value{}, fmt.Errorf("column %q: %w", c.Name, err)
	}
	return out, nil
}

// Normalize validates the definition and returns a copy with canonical names, the
// primary key column declared as int, and timestamp columns present when requested.
func (d TableDef) Normalize() (TableDef, error) {
	if err := validate.Struct(d); err != nil {
		return TableDef{}, fmt.Errorf("invalid table definition %q: %s %w", d.Name, err.Error(), utils.ErrUnsupportedShape)
	}

	out := TableDef{
		Name:        value.CanonicalName(d.Name),
		PrimaryKey:  value.CanonicalName(d.PrimaryKey),
		Timestamped: d.Timestamped,
	}
	seen := make(map[string]bool, len(d.Columns)+3)
	add := func(c Column) error {
		c.Name = value.CanonicalName(c.Name)
		if seen[c.Name] {
			return fmt.Errorf("column %q declared twice in %q: %w", c.Name, out.Name, utils.ErrDuplicateKey)
		}
		seen[c.Name] = true
		out.Columns = append(out.Columns, c)
		return nil
	}

	for _, c := range d.Columns {
		if value.CanonicalName(c.Name) == out.PrimaryKey && c.Kind != value.KindInt {
			return TableDef{}, fmt.Errorf("primary key %q must be an int column: %w", c.Name, utils.ErrTypeMismatch)
		}
		if err := add(c); err != nil {
			return TableDef{}, err
		}
	}
	if !seen[out.PrimaryKey] {
		out.Columns = append([]Column{{Name: out.PrimaryKey, Kind: value.KindInt}}, out.Columns...)
		seen[out.PrimaryKey] = true
	}
	if d.Timestamped {
		for _, name := range []string{CreatedAt, UpdatedAt} {
			if !seen[name] {
				_ = add(Column{Name: name, Kind: value.KindTime})
			}
		}
	}
	return out, nil
}

// Column looks up a declared column by case-insensitive name.
func (d TableDef) Column(name string) (Column, error) {
	name = value.CanonicalName(name)
	for _, c := range d.Columns {
		if c.Name == name {
			return c, nil
		}
	}
	return Column{}, fmt.Errorf("column %q in table %q: %w", name, d.Name, utils.ErrNotFound)
}

func (d TableDef) HasColumn(name string) bool {
	_, err := d.Column(name)
	return err == nil
}

func (d TableDef) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// CheckColumns fails with ErrNotFound on the first undeclared name.
func (d TableDef) CheckColumns(names []string) error {
	for _, n := range names {
		if _, err := d.Column(n); err != nil {
			return err
		}
	}
	return nil
}

// CoerceRow type-checks every value of r against its declared column.
func (d TableDef) CoerceRow(r value.Row) (value.Row, error) {
	out := make(value.Row, len(r))
	for name, v := range r {
		c, err := d.Column(name)
		if err != nil {
			return nil, err
		}
		cv, err := c.Coerce(v)
		if err != nil {
			return nil, err
		}
		out[c.Name] = cv
	}
	return out, nil
}

// IsTimestampColumn reports whether name is one of the automatically stamped columns.
func IsTimestampColumn(name string) bool {
	name = value.CanonicalName(name)
	return name == CreatedAt || name == UpdatedAt
}

// StampNew returns a copy of r with created_at and updated_at filled in for a record
// being created. Values the caller already supplied are kept.
func (d TableDef) StampNew(r value.Row, now time.Time) value.Row {
	out := r.Clone()
	if !d.Timestamped {
		return out
	}
	for _, name := range []string{CreatedAt, UpdatedAt} {
		if v, ok := out.Lookup(name); !ok || v.IsNull() {
			out.Set(name, value.Time(now))
		}
	}
	return out
}
