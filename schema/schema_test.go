package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
)

func TestNormalize(t *testing.T) {
	def, err := TableDef{
		Name:        "Users",
		PrimaryKey:  "ID",
		Columns:     []Column{{Name: "Name", Kind: value.KindString}},
		Timestamped: true,
	}.Normalize()
	if err != nil {
		t.Fatal(err)
	}
	if def.Name != "users" || def.PrimaryKey != "id" {
		t.Fatalf("names not canonical: %+v", def)
	}
	want := []string{"id", "name", CreatedAt, UpdatedAt}
	got := def.ColumnNames()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestNormalizeRejects(t *testing.T) {
	_, err := TableDef{
		Name:       "t",
		PrimaryKey: "id",
		Columns:    []Column{{Name: "a", Kind: value.KindInt}, {Name: "A", Kind: value.KindString}},
	}.Normalize()
	if !errors.Is(err, utils.ErrDuplicateKey) {
		t.Fatalf("expected duplicate column, got %v", err)
	}

	_, err = TableDef{
		Name:       "t",
		PrimaryKey: "id",
		Columns:    []Column{{Name: "id", Kind: value.KindString}},
	}.Normalize()
	if !errors.Is(err, utils.ErrTypeMismatch) {
		t.Fatalf("expected pk type mismatch, got %v", err)
	}

	_, err = TableDef{PrimaryKey: "id"}.Normalize()
	if err == nil {
		t.Fatal("expected validation error for missing name")
	}
}

func TestCoerceRow(t *testing.T) {
	def, _ := TableDef{
		Name:       "t",
		PrimaryKey: "id",
		Columns:    []Column{{Name: "a", Kind: value.KindInt}, {Name: "b", Kind: value.KindString}},
	}.Normalize()

	r, err := def.CoerceRow(value.Row{"a": value.Int(1), "B": value.Int(2)})
	if err != nil {
		t.Fatal(err)
	}
	if r["b"].S != "2" {
		t.Fatalf("expected string coercion, got %#v", r["b"])
	}

	_, err = def.CoerceRow(value.Row{"a": value.String("x")})
	if !errors.Is(err, utils.ErrTypeMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	_, err = def.CoerceRow(value.Row{"zzz": value.Int(1)})
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStampNew(t *testing.T) {
	def, _ := TableDef{Name: "t", PrimaryKey: "id", Timestamped: true}.Normalize()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)

	r := def.StampNew(value.Row{CreatedAt: value.Time(earlier)}, now)
	if !r[CreatedAt].T.Equal(earlier) {
		t.Fatal("supplied created_at should be kept")
	}
	if !r[UpdatedAt].T.Equal(now) {
		t.Fatal("updated_at should be stamped")
	}

	plain, _ := TableDef{Name: "p", PrimaryKey: "id"}.Normalize()
	if len(plain.StampNew(value.Row{}, now)) != 0 {
		t.Fatal("untimestamped tables are not stamped")
	}
	if !IsTimestampColumn("Updated_At") || IsTimestampColumn("id") {
		t.Fatal("IsTimestampColumn")
	}
}
