// Package sqlstore implements store.Store on CockroachDB or Postgres through pgx. Table
// definitions are kept in a catalog table created by the migrations package, so a
// reopened store knows the kinds of every column.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danthegoodman1/recordstore/gologger"
	"github.com/danthegoodman1/recordstore/migrations"
	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/store"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var logger = gologger.NewComponentLogger("sqlstore")

// Store is not internally synchronized for writes; one writer per store is assumed.
type Store struct {
	ID      string
	pool    *pgxpool.Pool
	dialect query.Dialect
	// Now stamps timestamped tables.
	Now func() time.Time

	mu   sync.RWMutex
	defs map[string]schema.TableDef
}

var (
	_ store.Store       = (*Store)(nil)
	_ store.BatchWriter = (*Store)(nil)
)

// Open loads the table catalog. The pool stays owned by the store and is closed by Close.
func Open(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{
		ID:      utils.GenRandomShortID(),
		pool:    pool,
		dialect: query.Postgres,
		Now:     func() time.Time { return time.Now().UTC() },
		defs:    make(map[string]schema.TableDef),
	}
	if err := s.loadCatalog(ctx); err != nil {
		return nil, fmt.Errorf("error in loadCatalog: %w", err)
	}
	logger.Debug().Str("store", s.ID).Int("tables", len(s.defs)).Msg("opened sql store")
	return s, nil
}

func (s *Store) loadCatalog(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT def FROM %s", migrations.CatalogTable))
	if err != nil {
		return translateErr(err)
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var raw []byte
		if err = rows.Scan(&raw); err != nil {
			return err
		}
		var def schema.TableDef
		if err = json.Unmarshal(raw, &def); err != nil {
			return fmt.Errorf("error in json.Unmarshal of table definition: %w", err)
		}
		s.defs[def.Name] = def
	}
	return rows.Err()
}

// translateErr maps backend error codes onto the store's error taxonomy.
func translateErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505", "42P07":
		return fmt.Errorf("%s: %w", pgErr.Message, utils.ErrDuplicateKey)
	case "42P01", "42703":
		return fmt.Errorf("%s: %w", pgErr.Message, utils.ErrNotFound)
	case "22P02", "42804", "42883":
		return fmt.Errorf("%s: %w", pgErr.Message, utils.ErrTypeMismatch)
	}
	return err
}

func (s *Store) CreateTable(ctx context.Context, def schema.TableDef) error {
	def, err := def.Normalize()
	if err != nil {
		return err
	}
	if _, err = s.def(ctx, def.Name); err == nil {
		return fmt.Errorf("table %s already exists: %w", def.Name, utils.ErrDuplicateKey)
	}
	ddl, err := createTableSQL(s.dialect, def)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("error in json.Marshal of table definition: %w", err)
	}

	err = utils.ReliableExecInTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("error creating table: %w", translateErr(err))
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (name, def) VALUES ($1, $2)", migrations.CatalogTable), def.Name, raw)
		if err != nil {
			return fmt.Errorf("error inserting catalog row: %w", translateErr(err))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error in CreateTable: %w", err)
	}

	s.mu.Lock()
	s.defs[def.Name] = def
	s.mu.Unlock()
	logger.Debug().Str("table", def.Name).Msg("created table")
	return nil
}

// def returns a table definition, rereading the catalog for tables another store
// created since Open.
func (s *Store) def(ctx context.Context, table string) (schema.TableDef, error) {
	name := value.CanonicalName(table)
	s.mu.RLock()
	def, ok := s.defs[name]
	s.mu.RUnlock()
	if ok {
		return def, nil
	}

	var raw []byte
	err := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT def FROM %s WHERE name = $1", migrations.CatalogTable), name).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return schema.TableDef{}, fmt.Errorf("table %s: %w", name, utils.ErrNotFound)
	}
	if err != nil {
		return schema.TableDef{}, translateErr(err)
	}
	if err = json.Unmarshal(raw, &def); err != nil {
		return schema.TableDef{}, fmt.Errorf("error in json.Unmarshal of table definition: %w", err)
	}
	s.mu.Lock()
	s.defs[name] = def
	s.mu.Unlock()
	return def, nil
}

func (s *Store) TableDef(ctx context.Context, table string) (schema.TableDef, error) {
	return s.def(ctx, table)
}

func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT name FROM %s ORDER BY name", migrations.CatalogTable))
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err = rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// decodeRow turns driver values into a row of the declared kinds.
func decodeRow(def schema.TableDef, columns []string, raw []any) (value.Row, error) {
	if len(raw) != len(columns) {
		return nil, fmt.Errorf("expected %d columns, got %d", len(columns), len(raw))
	}
	row := make(value.Row, len(columns))
	for i, name := range columns {
		col, err := def.Column(name)
		if err != nil {
			return nil, err
		}
		v, err := value.FromAny(raw[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		if v, err = col.Coerce(v); err != nil {
			return nil, err
		}
		row[col.Name] = v
	}
	return row, nil
}

func (s *Store) Save(context.Context, string, int64) (bool, error) {
	return false, nil
}

func (s *Store) SaveAll(context.Context, string) (bool, error) {
	return false, nil
}

func (s *Store) IsSynchronized(context.Context, string, int64) (bool, error) {
	return true, nil
}

func (s *Store) IsCached() bool {
	return false
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	logger.Debug().Str("store", s.ID).Msg("closed sql store")
	return nil
}
