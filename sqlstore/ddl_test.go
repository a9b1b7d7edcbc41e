package sqlstore

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
)

func eventsDef(t *testing.T) schema.TableDef {
	t.Helper()
	def, err := schema.TableDef{
		Name:       "events",
		PrimaryKey: "id",
		Columns: []schema.Column{
			{Name: "kind", Kind: value.KindString},
			{Name: "weight", Kind: value.KindFloat},
			{Name: "at", Kind: value.KindTime},
		},
		Timestamped: true,
	}.Normalize()
	if err != nil {
		t.Fatal(err)
	}
	return def
}

func TestCreateTableSQL(t *testing.T) {
	sql, err := createTableSQL(query.Postgres, eventsDef(t))
	if err != nil {
		t.Fatal(err)
	}
	want := `CREATE TABLE "events" ("id" BIGSERIAL PRIMARY KEY, "kind" TEXT, "weight" FLOAT8, "at" TIMESTAMPTZ, "created_at" TIMESTAMPTZ, "updated_at" TIMESTAMPTZ)`
	if sql != want {
		t.Fatalf("got\n%s\nwant\n%s", sql, want)
	}
}

func TestInsertSQL(t *testing.T) {
	def := eventsDef(t)
	sql, args := insertSQL(query.Postgres, def, nil)
	if sql != `INSERT INTO "events" DEFAULT VALUES RETURNING "id"` || len(args) != 0 {
		t.Fatalf("unexpected %s %v", sql, args)
	}
	sql, args = insertSQL(query.Postgres, def, value.Row{"weight": value.Float(1.5), "kind": value.String("click")})
	if sql != `INSERT INTO "events" ("kind", "weight") VALUES ($1, $2) RETURNING "id"` {
		t.Fatalf("unexpected %s", sql)
	}
	if args[0] != "click" || args[1] != 1.5 {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestUpdateSQL(t *testing.T) {
	def := eventsDef(t)
	sql, args := updateSQL(query.Postgres, def, 9, value.Row{"kind": value.String("view")}, nil)
	if sql != `UPDATE "events" SET "kind" = $1 WHERE "id" = $2` {
		t.Fatalf("unexpected %s", sql)
	}
	if len(args) != 2 || args[1] != int64(9) {
		t.Fatalf("unexpected args %v", args)
	}

	now := value.Time(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	sql, args = updateSQL(query.Postgres, def, 9, value.Row{"kind": value.String("view")}, &now)
	want := `UPDATE "events" SET "kind" = $1, "updated_at" = CASE WHEN "kind" IS DISTINCT FROM $1 THEN $2 ELSE "updated_at" END WHERE "id" = $3`
	if sql != want {
		t.Fatalf("got\n%s\nwant\n%s", sql, want)
	}
	if len(args) != 3 {
		t.Fatalf("unexpected args %v", args)
	}

	// only timestamp columns written: nothing to compare, no refresh
	sql, _ = updateSQL(query.Postgres, def, 9, value.Row{schema.CreatedAt: now}, &now)
	if sql != `UPDATE "events" SET "created_at" = $1 WHERE "id" = $2` {
		t.Fatalf("unexpected %s", sql)
	}
}

func TestSelectSQL(t *testing.T) {
	def := eventsDef(t)
	scope := query.NewScope(query.Is("kind", value.String("click"))).
		WithOrder(query.Desc("weight")).
		WithLimit(10)
	sql, args, err := selectSQL(query.Postgres, def, []string{"id", "weight"}, scope)
	if err != nil {
		t.Fatal(err)
	}
	want := `SELECT "events"."id", "events"."weight" FROM "events" WHERE "events"."kind" IS NOT DISTINCT FROM $1 ORDER BY "events"."weight" DESC NULLS LAST, "events"."id" ASC LIMIT 10`
	if sql != want {
		t.Fatalf("got\n%s\nwant\n%s", sql, want)
	}
	if len(args) != 1 || args[0] != "click" {
		t.Fatalf("unexpected args %v", args)
	}

	sql, args, err = selectSQL(query.Postgres, def, []string{"id"}, query.Scope{})
	if err != nil {
		t.Fatal(err)
	}
	if sql != `SELECT "events"."id" FROM "events" WHERE TRUE ORDER BY "events"."id" ASC` || len(args) != 0 {
		t.Fatalf("unexpected %s %v", sql, args)
	}
}

func TestCountAndAggregateSQL(t *testing.T) {
	def := eventsDef(t)
	sql, args, err := countSQL(query.Postgres, def, query.Larger("weight", value.Float(2)))
	if err != nil {
		t.Fatal(err)
	}
	if sql != `SELECT COUNT(*) FROM "events" WHERE "events"."weight" > $1` || len(args) != 1 {
		t.Fatalf("unexpected %s %v", sql, args)
	}

	sql, _, err = aggregateSQL(query.Postgres, def, query.Agg(query.Sum, "weight"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if sql != `SELECT CAST(COALESCE(SUM("events"."weight"), 0) AS DECIMAL) FROM "events" WHERE TRUE` {
		t.Fatalf("unexpected %s", sql)
	}
}

func TestSourceKind(t *testing.T) {
	def := eventsDef(t)
	if k, _ := sourceKind(def, query.Col("weight")); k != value.KindFloat {
		t.Fatalf("expected float, got %s", k)
	}
	if k, _ := sourceKind(def, query.Fn("toYear", "at")); k != value.KindInt {
		t.Fatalf("expected int, got %s", k)
	}
	if _, err := sourceKind(def, query.Fn("nope", "at")); !errors.Is(err, query.ErrFuncNotFound) {
		t.Fatalf("expected func not found, got %v", err)
	}
	if _, err := sourceKind(def, query.Col("zzz")); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDecodeSum(t *testing.T) {
	var num pgtype.Numeric
	if err := num.Set("42"); err != nil {
		t.Fatal(err)
	}
	v, err := decodeSum(num, value.KindInt)
	if err != nil || v.Kind != value.KindInt || v.I64 != 42 {
		t.Fatalf("unexpected %v %v", v, err)
	}
	if err = num.Set(2.5); err != nil {
		t.Fatal(err)
	}
	v, err = decodeSum(num, value.KindFloat)
	if err != nil || v.Kind != value.KindFloat || v.F64 != 2.5 {
		t.Fatalf("unexpected %v %v", v, err)
	}
	v, _ = decodeSum(pgtype.Numeric{Status: pgtype.Null}, value.KindInt)
	if v.I64 != 0 || v.Kind != value.KindInt {
		t.Fatalf("null sum should be 0, got %v", v)
	}
	v, _ = decodeSum(pgtype.Numeric{Status: pgtype.Null}, value.KindFloat)
	if v.F64 != 0 || v.Kind != value.KindFloat {
		t.Fatalf("null sum over a float source should be Float 0, got %v", v)
	}
}

func TestDecodeRow(t *testing.T) {
	def := eventsDef(t)
	at := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	row, err := decodeRow(def, []string{"id", "kind", "weight", "at"}, []any{int64(3), "click", nil, at})
	if err != nil {
		t.Fatal(err)
	}
	if row["id"].I64 != 3 || row["kind"].S != "click" || !row["weight"].IsNull() || !row["at"].T.Equal(at) {
		t.Fatalf("unexpected row %v", row)
	}
	if _, err = decodeRow(def, []string{"weight"}, []any{true}); !errors.Is(err, utils.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

func TestTranslateErr(t *testing.T) {
	dup := fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505", Message: "duplicate key value"})
	if !errors.Is(translateErr(dup), utils.ErrDuplicateKey) {
		t.Fatal("23505 should map to ErrDuplicateKey")
	}
	if !errors.Is(translateErr(&pgconn.PgError{Code: "42P01"}), utils.ErrNotFound) {
		t.Fatal("42P01 should map to ErrNotFound")
	}
	plain := errors.New("boom")
	if translateErr(plain) != plain {
		t.Fatal("other errors pass through")
	}
}
