// Package snapshot exports tables of any store.Store to parquet files and imports them
// back, keeping primary keys. Files go to a Sink on local disk or S3.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/store"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
	"github.com/rs/zerolog"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

type Result struct {
	Table  string `json:"table"`
	File   string `json:"file"`
	Rows   int64  `json:"rows"`
	TimeMS int64  `json:"time_ms"`
}

// Export writes every row of table to a new file named <table>/<ksuid>.parquet. Cached
// stores flush the table as part of the scan.
func Export(ctx context.Context, s store.Store, table string, sink Sink) (Result, error) {
	logger := zerolog.Ctx(ctx)
	start := time.Now()
	def, err := s.TableDef(ctx, table)
	if err != nil {
		return Result{}, err
	}
	parquetSchema, err := SchemaString(def)
	if err != nil {
		return Result{}, err
	}

	var buf bytes.Buffer
	pw, err := writer.NewJSONWriterFromWriter(parquetSchema, &buf, 4)
	if err != nil {
		return Result{}, fmt.Errorf("error creating new JSON writer: %w", err)
	}
	res := Result{Table: def.Name, File: fmt.Sprintf("%s/%s.parquet", def.Name, utils.GenKSortedID(""))}
	err = s.StreamAllWithData(ctx, def.Name, nil, query.Scope{}, func(row value.Row) (bool, error) {
		rowBytes, err := json.Marshal(encodeRow(def, row))
		if err != nil {
			return false, fmt.Errorf("error in json.Marshal of row: %w", err)
		}
		if err = pw.Write(string(rowBytes)); err != nil {
			return false, fmt.Errorf("error in pw.Write for row %s: %w", string(rowBytes), err)
		}
		res.Rows++
		return true, nil
	})
	if err != nil {
		return Result{}, err
	}
	if err = pw.WriteStop(); err != nil {
		return Result{}, fmt.Errorf("error in pw.WriteStop: %w", err)
	}
	if err = sink.Put(ctx, res.File, &buf); err != nil {
		return Result{}, err
	}
	res.TimeMS = time.Since(start).Milliseconds()
	logger.Debug().Interface("result", res).Msg("exported snapshot")
	return res, nil
}

// encodeRow renders a row as the JSON object the parquet writer expects.
func encodeRow(def schema.TableDef, row value.Row) map[string]any {
	out := make(map[string]any, len(def.Columns))
	for _, c := range def.Columns {
		v := row[c.Name]
		if v.IsNull() {
			out[c.Name] = nil
			continue
		}
		if v.Kind == value.KindTime {
			out[c.Name] = v.T.UnixMilli()
			continue
		}
		out[c.Name] = v.Native()
	}
	return out
}

// Import reads file and creates one record per row at the row's primary key. Columns
// the file has but the table does not are ignored.
func Import(ctx context.Context, s store.Store, table, file string, sink Sink) (Result, error) {
	logger := zerolog.Ctx(ctx)
	start := time.Now()
	def, err := s.TableDef(ctx, table)
	if err != nil {
		return Result{}, err
	}
	f, err := sink.Open(ctx, file)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	pr, err := reader.NewParquetReader(f, nil, 4)
	if err != nil {
		return Result{}, fmt.Errorf("error creating parquet reader for %s: %w", file, err)
	}
	defer pr.ReadStop()

	rows, err := pr.ReadByNumber(int(pr.GetNumRows()))
	if err != nil {
		return Result{}, fmt.Errorf("error reading rows of %s: %w", file, err)
	}
	res := Result{Table: def.Name, File: file}
	for _, item := range rows {
		row, err := decodeRow(def, item)
		if err != nil {
			return res, err
		}
		pk, ok := row[def.PrimaryKey]
		if !ok || pk.Kind != value.KindInt {
			return res, fmt.Errorf("row of %s without primary key %s: %w", file, def.PrimaryKey, utils.ErrUnsupportedShape)
		}
		delete(row, def.PrimaryKey)
		if err = s.CreateRecord(ctx, def.Name, pk.I64, row); err != nil {
			return res, fmt.Errorf("error in CreateRecord for %s/%d: %w", def.Name, pk.I64, err)
		}
		res.Rows++
	}
	res.TimeMS = time.Since(start).Milliseconds()
	logger.Debug().Interface("result", res).Msg("imported snapshot")
	return res, nil
}

// decodeRow maps the fields of a struct produced by the parquet reader onto columns.
// Field names are the column names with an upper-cased head.
func decodeRow(def schema.TableDef, item any) (value.Row, error) {
	v := reflect.ValueOf(item)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("parquet row is a %s: %w", v.Kind(), utils.ErrUnsupportedShape)
	}
	typeOf := v.Type()
	row := make(value.Row, v.NumField())
	for i := 0; i < v.NumField(); i++ {
		col, err := def.Column(strings.ToLower(typeOf.Field(i).Name))
		if err != nil {
			continue
		}
		cell, err := value.FromAny(v.Field(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		if col.Kind == value.KindTime && cell.Kind == value.KindInt {
			cell = value.Time(time.UnixMilli(cell.I64))
		}
		if cell, err = col.Coerce(cell); err != nil {
			return nil, err
		}
		row[col.Name] = cell
	}
	return row, nil
}
