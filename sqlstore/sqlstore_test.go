package sqlstore

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/danthegoodman1/recordstore/crdb"
	"github.com/danthegoodman1/recordstore/memstore"
	"github.com/danthegoodman1/recordstore/migrations"
	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/store"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
	"github.com/danthegoodman1/recordstore/writeback"
)

// openTestStore needs a reachable database in CRDB_DSN.
func openTestStore(t *testing.T) (context.Context, *Store) {
	t.Helper()
	if utils.CRDB_DSN == "" {
		t.Skip("CRDB_DSN not set")
	}
	ctx := context.Background()
	if _, err := migrations.RunMigrations(utils.CRDB_DSN); err != nil {
		t.Fatal(err)
	}
	pool, err := crdb.ConnectToDB(ctx, utils.CRDB_DSN)
	if err != nil {
		t.Fatal(err)
	}
	s, err := Open(ctx, pool)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close(ctx) })
	return ctx, s
}

func tableName() string {
	return "t_" + strings.ToLower(utils.GenKSortedID(""))
}

func scoresDef(name string) schema.TableDef {
	return schema.TableDef{
		Name:       name,
		PrimaryKey: "id",
		Columns: []schema.Column{
			{Name: "player", Kind: value.KindString},
			{Name: "points", Kind: value.KindInt},
			{Name: "ratio", Kind: value.KindFloat},
		},
	}
}

func TestRecordRoundTrip(t *testing.T) {
	ctx, s := openTestStore(t)
	name := tableName()
	if err := s.CreateTable(ctx, scoresDef(name)); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateTable(ctx, scoresDef(name)); !errors.Is(err, utils.ErrDuplicateKey) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	k1, err := s.InsertNewRecord(ctx, name, value.Row{"player": value.String("ann"), "points": value.Int(3)})
	if err != nil {
		t.Fatal(err)
	}
	k2, err := s.InsertNewRecord(ctx, name, nil)
	if err != nil {
		t.Fatal(err)
	}
	if k2 <= k1 {
		t.Fatalf("keys should increase: %d %d", k1, k2)
	}

	row, err := s.GetValues(ctx, name, k1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if row["player"].S != "ann" || row["points"].I64 != 3 || !row["ratio"].IsNull() {
		t.Fatalf("unexpected row %v", row)
	}
	if err = s.SetValue(ctx, name, k2, "points", value.String("x")); !errors.Is(err, utils.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	if err = s.SetValue(ctx, name, k2+1000, "points", value.Int(1)); !errors.Is(err, utils.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
	if err = s.CreateRecord(ctx, name, k1, nil); !errors.Is(err, utils.ErrDuplicateKey) {
		t.Fatalf("expected duplicate key, got %v", err)
	}
	if err = s.Destroy(ctx, name, k2); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.ContainsRecord(ctx, name, k2); ok {
		t.Fatal("destroyed record still present")
	}
}

// TestPushdownMatchesInProcess runs the same conditions and aggregates on a memory
// store and on the database and expects equal answers.
func TestPushdownMatchesInProcess(t *testing.T) {
	ctx, s := openTestStore(t)
	name := tableName()
	mem := memstore.Open(ctx)
	for _, st := range []store.Store{s, mem} {
		if err := st.CreateTable(ctx, scoresDef(name)); err != nil {
			t.Fatal(err)
		}
	}
	rows := []value.Row{
		{"player": value.String("ann"), "points": value.Int(1), "ratio": value.Float(0.5)},
		{"player": value.String("bob"), "points": value.Null(), "ratio": value.Float(1.25)},
		{"player": value.String("a_c"), "points": value.Int(3), "ratio": value.Null()},
		{"player": value.Null(), "points": value.Int(3), "ratio": value.Float(2)},
	}
	for _, r := range rows {
		for _, st := range []store.Store{s, mem} {
			if _, err := st.InsertNewRecord(ctx, name, r); err != nil {
				t.Fatal(err)
			}
		}
	}

	conds := []query.Condition{
		nil,
		query.Is("points", value.Int(3)),
		query.IsNot("points", value.Int(3)),
		query.Like("player", "a%"),
		query.Like("player", "a_c"),
		query.Negate(query.Larger("ratio", value.Float(1))),
		query.OneOf(query.Is("points", value.Int(3)), query.IsNull("player")),
		query.MustIn("points", []int64{1, 3}),
		query.AnyOf(query.IsNull("ratio"), query.Smaller("points", value.Int(2))),
		query.Like("points", "1%"),
		query.AnyOf(query.Like("ratio", "0%"), query.Is("points", value.Int(3))),
		query.Negate(query.Like("points", "3")),
	}
	aggs := []query.Aggregate{
		query.Agg(query.Sum, "points"),
		query.Agg(query.SumFloating, "ratio"),
		query.Agg(query.Average, "points"),
		query.Agg(query.Minimum, "player"),
		query.Agg(query.Maximum, "ratio"),
		query.Agg(query.CountNotNull, "points"),
		query.Agg(query.CountDistinct, "points"),
		query.Agg(query.Sum, "ratio"),
	}

	for _, c := range conds {
		want, err := mem.Count(ctx, name, c)
		if err != nil {
			t.Fatal(err)
		}
		got, err := s.Count(ctx, name, c)
		if err != nil {
			t.Fatalf("count %s: %v", query.Key(c), err)
		}
		if got != want {
			t.Fatalf("count %s: db %d, memory %d", query.Key(c), got, want)
		}
		for _, a := range aggs {
			want, err := mem.Aggregate(ctx, name, a, c)
			if err != nil {
				t.Fatal(err)
			}
			got, err := s.Aggregate(ctx, name, a, c)
			if err != nil {
				t.Fatalf("%s %s: %v", a.Func, query.Key(c), err)
			}
			if !sameValue(got, want) || (a.Func == query.Sum && got.Kind != want.Kind) {
				t.Fatalf("%s(%s) where %s: db %#v, memory %#v", a.Func, a.Source, query.Key(c), got, want)
			}
		}
	}
}

// sameValue is exact for integers and tolerance-equal for floats.
func sameValue(a, b value.Value) bool {
	if a.IsNull() || b.IsNull() || !(a.Kind == value.KindFloat || b.Kind == value.KindFloat) {
		return value.Equal(a, b)
	}
	return math.Abs(toFloat(a)-toFloat(b)) < 1e-9
}

func toFloat(v value.Value) float64 {
	if v.Kind == value.KindInt {
		return float64(v.I64)
	}
	return v.F64
}

func TestWritebackOverSQL(t *testing.T) {
	ctx, s := openTestStore(t)
	name := tableName()
	if err := s.CreateTable(ctx, scoresDef(name)); err != nil {
		t.Fatal(err)
	}
	wb := writeback.Open(ctx, s)

	key, err := wb.InsertNewRecord(ctx, name, value.Row{"points": value.Int(1)})
	if err != nil {
		t.Fatal(err)
	}
	if err = wb.SetValue(ctx, name, key, "points", value.Int(7)); err != nil {
		t.Fatal(err)
	}
	stale, _ := s.GetValue(ctx, name, key, "points")
	if stale.I64 != 1 {
		t.Fatalf("backend should still have 1, got %v", stale)
	}
	if _, err = wb.SaveAll(ctx, name); err != nil {
		t.Fatal(err)
	}
	fresh, _ := s.GetValue(ctx, name, key, "points")
	if fresh.I64 != 7 {
		t.Fatalf("backend should have 7, got %v", fresh)
	}
}
