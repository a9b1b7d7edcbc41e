package writeback

import (
	"context"
	"errors"
	"testing"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/danthegoodman1/recordstore/memstore"
	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/store"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
)

var errFlaky = errors.New("backend unavailable")

// flakyBackend fails SetValues while failing is set and counts the calls it receives.
type flakyBackend struct {
	store.Store
	failing   bool
	setCalls  int
	failAfter int
}

func (f *flakyBackend) SetValues(ctx context.Context, table string, key int64, vals value.Row) error {
	f.setCalls++
	if f.failing || (f.failAfter > 0 && f.setCalls > f.failAfter) {
		return errFlaky
	}
	return f.Store.SetValues(ctx, table, key, vals)
}

func (f *flakyBackend) Destroy(ctx context.Context, table string, key int64) error {
	if f.failing {
		return errFlaky
	}
	return f.Store.Destroy(ctx, table, key)
}

// sparseBackend leaves null columns out of whole-row reads.
type sparseBackend struct {
	store.Store
}

func (b *sparseBackend) GetValues(ctx context.Context, table string, key int64, columns []string) (value.Row, error) {
	row, err := b.Store.GetValues(ctx, table, key, columns)
	if err != nil || columns != nil {
		return row, err
	}
	for name, v := range row {
		if v.IsNull() {
			delete(row, name)
		}
	}
	return row, nil
}

// batchBackend adds a BatchWriter on top of the memory store.
type batchBackend struct {
	*memstore.Store
	batches int
}

func (b *batchBackend) SetValuesBatch(ctx context.Context, table string, rows map[int64]value.Row) error {
	b.batches++
	for key, row := range rows {
		if err := b.Store.SetValues(ctx, table, key, row); err != nil {
			return err
		}
	}
	return nil
}

func setup(t *testing.T, backend store.Store) (context.Context, *Store) {
	t.Helper()
	ctx := context.Background()
	err := backend.CreateTable(ctx, schema.TableDef{
		Name:       "accounts",
		PrimaryKey: "id",
		Columns: []schema.Column{
			{Name: "owner", Kind: value.KindString},
			{Name: "balance", Kind: value.KindInt},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return ctx, Open(ctx, backend)
}

func TestReadYourWriteBeforeFlush(t *testing.T) {
	backend := memstore.Open(context.Background())
	ctx, s := setup(t, backend)

	key, err := backend.InsertNewRecord(ctx, "accounts", value.Row{"owner": value.String("ann"), "balance": value.Int(10)})
	if err != nil {
		t.Fatal(err)
	}

	v, err := s.GetValue(ctx, "accounts", key, "balance")
	if err != nil || v.I64 != 10 {
		t.Fatalf("read-through failed: %v %v", v, err)
	}
	if err = s.SetValue(ctx, "accounts", key, "balance", value.Int(25)); err != nil {
		t.Fatal(err)
	}

	v, _ = s.GetValue(ctx, "accounts", key, "balance")
	if v.I64 != 25 {
		t.Fatalf("expected cached write, got %v", v)
	}
	stale, _ := backend.GetValue(ctx, "accounts", key, "balance")
	if stale.I64 != 10 {
		t.Fatal("backend should not see the write before a flush")
	}
	if synced, _ := s.IsSynchronized(ctx, "accounts", key); synced {
		t.Fatal("entry should be dirty")
	}

	changed, err := s.SaveAll(ctx, "accounts")
	if err != nil || !changed {
		t.Fatalf("SaveAll: %v %v", changed, err)
	}
	fresh, _ := backend.GetValue(ctx, "accounts", key, "balance")
	if fresh.I64 != 25 {
		t.Fatalf("backend should reflect the write, got %v", fresh)
	}
	if changed, _ = s.SaveAll(ctx, "accounts"); changed {
		t.Fatal("nothing left to flush")
	}
}

func TestWriteSameValueIsNotDirty(t *testing.T) {
	ctx, s := setup(t, memstore.Open(context.Background()))
	key, _ := s.InsertNewRecord(ctx, "accounts", value.Row{"balance": value.Int(1)})
	if synced, _ := s.IsSynchronized(ctx, "accounts", key); !synced {
		t.Fatal("a new record is clean")
	}
	_ = s.SetValue(ctx, "accounts", key, "balance", value.Int(1))
	if synced, _ := s.IsSynchronized(ctx, "accounts", key); !synced {
		t.Fatal("same value should not dirty the entry")
	}
	if changed, _ := s.Save(ctx, "accounts", key); changed {
		t.Fatal("Save of a clean entry writes nothing")
	}
}

func TestFailedFlushKeepsEntryDirty(t *testing.T) {
	backend := &flakyBackend{Store: memstore.Open(context.Background())}
	ctx, s := setup(t, backend)

	key, _ := s.InsertNewRecord(ctx, "accounts", value.Row{"balance": value.Int(1)})
	_ = s.SetValue(ctx, "accounts", key, "balance", value.Int(2))

	backend.failing = true
	if _, err := s.SaveAll(ctx, "accounts"); !errors.Is(err, errFlaky) {
		t.Fatalf("expected flush error, got %v", err)
	}
	if synced, _ := s.IsSynchronized(ctx, "accounts", key); synced {
		t.Fatal("failed flush must leave the entry dirty")
	}
	if _, err := s.Count(ctx, "accounts", nil); !errors.Is(err, errFlaky) {
		t.Fatalf("count must not read past unflushed writes, got %v", err)
	}

	backend.failing = false
	changed, err := s.SaveAll(ctx, "accounts")
	if err != nil || !changed {
		t.Fatalf("retry flush: %v %v", changed, err)
	}
	v, _ := backend.Store.GetValue(ctx, "accounts", key, "balance")
	if v.I64 != 2 {
		t.Fatalf("pending write lost, backend has %v", v)
	}
}

func TestPartialFlushFailure(t *testing.T) {
	backend := &flakyBackend{Store: memstore.Open(context.Background())}
	ctx, s := setup(t, backend)

	var keys []int64
	for i := 0; i < 3; i++ {
		k, _ := s.InsertNewRecord(ctx, "accounts", nil)
		_ = s.SetValue(ctx, "accounts", k, "balance", value.Int(int64(i+10)))
		keys = append(keys, k)
	}
	backend.failAfter = 1
	changed, err := s.SaveAll(ctx, "accounts")
	if err == nil || !changed {
		t.Fatalf("expected one entry flushed then an error, got %v %v", changed, err)
	}
	if n, _ := s.DirtyCount(ctx, "accounts"); n != 2 {
		t.Fatalf("expected 2 entries still dirty, got %d", n)
	}
	backend.failAfter = 0
	if _, err = s.SaveAll(ctx, "accounts"); err != nil {
		t.Fatal(err)
	}
	for i, k := range keys {
		v, _ := backend.Store.GetValue(ctx, "accounts", k, "balance")
		if v.I64 != int64(i+10) {
			t.Fatalf("key %d: expected %d, got %v", k, i+10, v)
		}
	}
}

func TestSaveAllWithRetry(t *testing.T) {
	backend := &flakyBackend{Store: memstore.Open(context.Background())}
	ctx, s := setup(t, backend)
	key, _ := s.InsertNewRecord(ctx, "accounts", nil)
	_ = s.SetValue(ctx, "accounts", key, "owner", value.String("zed"))

	backend.failing = true
	_, err := s.SaveAllWithRetry(ctx, "accounts", backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2))
	if !errors.Is(err, errFlaky) {
		t.Fatalf("expected retries to give up, got %v", err)
	}
	if backend.setCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", backend.setCalls)
	}

	backend.failing = false
	changed, err := s.SaveAllWithRetry(ctx, "accounts", &backoff.ZeroBackOff{})
	if err != nil || !changed {
		t.Fatalf("expected success, got %v %v", changed, err)
	}
}

func TestBulkReadsFlushFirst(t *testing.T) {
	backend := &batchBackend{Store: memstore.Open(context.Background())}
	ctx, s := setup(t, backend)

	for i := 1; i <= 4; i++ {
		k, _ := s.InsertNewRecord(ctx, "accounts", nil)
		_ = s.SetValue(ctx, "accounts", k, "balance", value.Int(int64(i)))
	}

	n, err := s.Count(ctx, "accounts", query.Larger("balance", value.Int(2)))
	if err != nil || n != 2 {
		t.Fatalf("expected 2, got %d %v", n, err)
	}
	if backend.batches != 1 {
		t.Fatalf("expected one batched flush, got %d", backend.batches)
	}

	_ = s.SetValue(ctx, "accounts", 1, "balance", value.Int(100))
	sum, err := s.Aggregate(ctx, "accounts", query.Agg(query.Sum, "balance"), nil)
	if err != nil || sum.I64 != 109 {
		t.Fatalf("expected 109, got %v %v", sum, err)
	}

	row, ok, err := s.FindFirstWithData(ctx, "accounts", nil, query.Scope{}.WithOrder(query.Desc("balance")))
	if err != nil || !ok || row["id"].I64 != 1 {
		t.Fatalf("unexpected first row %v %v", row, err)
	}
	if synced, _ := s.IsSynchronized(ctx, "accounts", 1); !synced {
		t.Fatal("scanned rows are cached clean")
	}
}

func TestSetValuesChecks(t *testing.T) {
	ctx, s := setup(t, memstore.Open(context.Background()))
	key, _ := s.InsertNewRecord(ctx, "accounts", nil)

	if err := s.SetValue(ctx, "accounts", key, "balance", value.String("lots")); !errors.Is(err, utils.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	if err := s.SetValue(ctx, "accounts", key, "nope", value.Int(1)); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.SetValue(ctx, "accounts", 999, "balance", value.Int(1)); !errors.Is(err, utils.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
	if err := s.SetValue(ctx, "accounts", key, "id", value.Int(key+1)); !errors.Is(err, utils.ErrUnsupportedShape) {
		t.Fatalf("expected immutable key, got %v", err)
	}
	if _, err := s.GetValue(ctx, "missing", key, "balance"); !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected table not found, got %v", err)
	}
}

func TestDestroyDropsPendingWrites(t *testing.T) {
	ctx, s := setup(t, memstore.Open(context.Background()))
	key, _ := s.InsertNewRecord(ctx, "accounts", nil)
	_ = s.SetValue(ctx, "accounts", key, "balance", value.Int(5))
	if err := s.Destroy(ctx, "accounts", key); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.ContainsRecord(ctx, "accounts", key); ok {
		t.Fatal("record should be gone")
	}
	if n, _ := s.DirtyCount(ctx, "accounts"); n != 0 {
		t.Fatal("destroyed entries are not flushed")
	}
}

func TestCloseFlushes(t *testing.T) {
	backend := &flakyBackend{Store: memstore.Open(context.Background())}
	ctx, s := setup(t, backend)
	key, _ := s.InsertNewRecord(ctx, "accounts", nil)
	_ = s.SetValue(ctx, "accounts", key, "owner", value.String("kim"))

	backend.failing = true
	if err := s.Close(ctx); !errors.Is(err, errFlaky) {
		t.Fatalf("expected close to report the flush failure, got %v", err)
	}
	backend.failing = false
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}
	tbl, err := backend.Store.(*memstore.Store).Engine().Table("accounts")
	if err != nil {
		t.Fatal(err)
	}
	v, _ := tbl.GetValue(key, "owner")
	if v.S != "kim" {
		t.Fatalf("close should flush, backend has %v", v)
	}
}

// readNullKeepsWrite writes balance, reads the null owner, and checks the write survives.
func readNullKeepsWrite(t *testing.T, backend store.Store, mem *memstore.Store) {
	t.Helper()
	ctx, s := setup(t, backend)
	key, err := mem.InsertNewRecord(ctx, "accounts", value.Row{"balance": value.Int(1)})
	if err != nil {
		t.Fatal(err)
	}
	if err = s.SetValue(ctx, "accounts", key, "balance", value.Int(99)); err != nil {
		t.Fatal(err)
	}
	owner, err := s.GetValue(ctx, "accounts", key, "owner")
	if err != nil || !owner.IsNull() {
		t.Fatalf("expected null owner, got %v %v", owner, err)
	}
	v, _ := s.GetValue(ctx, "accounts", key, "balance")
	if v.I64 != 99 {
		t.Fatalf("pending write lost, got %v", v)
	}
	if synced, _ := s.IsSynchronized(ctx, "accounts", key); synced {
		t.Fatal("entry should still be dirty")
	}
	changed, err := s.SaveAll(ctx, "accounts")
	if err != nil || !changed {
		t.Fatalf("SaveAll: %v %v", changed, err)
	}
	stored, _ := mem.GetValue(ctx, "accounts", key, "balance")
	if stored.I64 != 99 {
		t.Fatalf("backend should hold 99, got %v", stored)
	}
}

func TestReadOfNullColumnKeepsPendingWrite(t *testing.T) {
	mem := memstore.Open(context.Background())
	readNullKeepsWrite(t, mem, mem)
}

func TestSparseBackendRowsAreCompletedOnLoad(t *testing.T) {
	mem := memstore.Open(context.Background())
	readNullKeepsWrite(t, &sparseBackend{Store: mem}, mem)
}

func TestFailedDestroyKeepsPendingWrites(t *testing.T) {
	backend := &flakyBackend{Store: memstore.Open(context.Background())}
	ctx, s := setup(t, backend)
	key, _ := s.InsertNewRecord(ctx, "accounts", nil)
	_ = s.SetValue(ctx, "accounts", key, "balance", value.Int(5))

	backend.failing = true
	if err := s.Destroy(ctx, "accounts", key); !errors.Is(err, errFlaky) {
		t.Fatalf("expected backend error, got %v", err)
	}
	v, _ := s.GetValue(ctx, "accounts", key, "balance")
	if v.I64 != 5 {
		t.Fatalf("pending write lost, got %v", v)
	}
	if n, _ := s.DirtyCount(ctx, "accounts"); n != 1 {
		t.Fatalf("expected 1 dirty entry, got %d", n)
	}

	backend.failing = false
	if err := s.Destroy(ctx, "accounts", key); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.ContainsRecord(ctx, "accounts", key); ok {
		t.Fatal("record should be gone")
	}
}
