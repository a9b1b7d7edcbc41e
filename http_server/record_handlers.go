package http_server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danthegoodman1/gojsonutils"
	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/value"
	"github.com/labstack/echo/v4"
)

type (
	InsertReqBody struct {
		// Line-delimited JSON (NDJSON)
		RowsString *string `json:"rows_string"`
		// Array of JSON
		Rows []map[string]any `json:"rows"`
	}

	InsertStats struct {
		Keys    []int64 `json:"keys"`
		NumRows int64   `json:"num_rows"`
		TimeMS  int64   `json:"time_ms"`
	}

	UpdateReqBody struct {
		Values map[string]any `json:"values" validate:"required"`
	}

	RecordResponse struct {
		Key    int64          `json:"key"`
		Values map[string]any `json:"values"`
		// Synchronized is false while a cached write has not reached the backend.
		Synchronized bool `json:"synchronized"`
	}
)

var (
	ErrNotFlatMap = errors.New("not a flat map")
)

// jsonRow flattens a decoded JSON object and converts each value to its column's kind.
func jsonRow(def schema.TableDef, raw map[string]any) (value.Row, error) {
	flat, err := gojsonutils.Flatten(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("error flattening JSON map: %w", err)
	}
	flatMap, ok := flat.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("got a non flat map %+v: %w", flat, ErrNotFlatMap)
	}
	row := make(value.Row, len(flatMap))
	for name, x := range flatMap {
		col, err := def.Column(name)
		if err != nil {
			return nil, err
		}
		v, err := value.FromJSON(x, col.Kind)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col.Name, err)
		}
		row[col.Name] = v
	}
	return row, nil
}

func parseNDJSON(rows string) ([]map[string]any, error) {
	var out []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(rows))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("error decoding line %q: %s %w", line, err.Error(), utils.ErrUnsupportedShape)
		}
		out = append(out, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error in scanner: %w", err)
	}
	return out, nil
}

// insertRow creates the record at its primary key when the row carries one, and
// otherwise lets the store allocate the key.
func (s *HTTPServer) insertRow(ctx context.Context, def schema.TableDef, row value.Row) (int64, error) {
	pk, ok := row.Lookup(def.PrimaryKey)
	if !ok || pk.IsNull() {
		delete(row, def.PrimaryKey)
		return s.Store.InsertNewRecord(ctx, def.Name, row)
	}
	delete(row, def.PrimaryKey)
	if err := s.Store.CreateRecord(ctx, def.Name, pk.I64, row); err != nil {
		return 0, err
	}
	return pk.I64, nil
}

func (s *HTTPServer) InsertRecords(c *CustomContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*60)
	defer cancel()

	start := time.Now()

	var reqBody InsertReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return err
	}
	def, err := s.Store.TableDef(ctx, c.Param("table"))
	if err != nil {
		return c.StoreError(err, "error getting table")
	}

	raws := reqBody.Rows
	if reqBody.RowsString != nil {
		lines, err := parseNDJSON(*reqBody.RowsString)
		if err != nil {
			return c.StoreError(err, "error parsing rows")
		}
		raws = append(raws, lines...)
	}
	if len(raws) == 0 {
		return c.String(http.StatusBadRequest, "no rows found")
	}

	stats := InsertStats{Keys: make([]int64, 0, len(raws))}
	for _, raw := range raws {
		row, err := jsonRow(def, raw)
		if err != nil {
			return c.StoreError(err, "error converting row")
		}
		key, err := s.insertRow(ctx, def, row)
		if err != nil {
			return c.StoreError(err, "error inserting row")
		}
		stats.Keys = append(stats.Keys, key)
		stats.NumRows++
	}
	stats.TimeMS = time.Since(start).Milliseconds()

	return c.JSON(http.StatusCreated, stats)
}

func (s *HTTPServer) record(ctx context.Context, table string, key int64) (RecordResponse, error) {
	row, err := s.Store.GetValues(ctx, table, key, nil)
	if err != nil {
		return RecordResponse{}, err
	}
	synced, err := s.Store.IsSynchronized(ctx, table, key)
	if err != nil {
		return RecordResponse{}, err
	}
	return RecordResponse{Key: key, Values: row.Natives(), Synchronized: synced}, nil
}

func (s *HTTPServer) GetRecord(c *CustomContext) error {
	key, err := c.Key()
	if err != nil {
		return err
	}
	res, err := s.record(c.Request().Context(), c.Param("table"), key)
	if err != nil {
		return c.StoreError(err, "error getting record")
	}
	return c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) UpdateRecord(c *CustomContext) error {
	key, err := c.Key()
	if err != nil {
		return err
	}
	var reqBody UpdateReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return err
	}
	ctx := c.Request().Context()
	def, err := s.Store.TableDef(ctx, c.Param("table"))
	if err != nil {
		return c.StoreError(err, "error getting table")
	}
	row, err := jsonRow(def, reqBody.Values)
	if err != nil {
		return c.StoreError(err, "error converting values")
	}
	if err = s.Store.SetValues(ctx, def.Name, key, row); err != nil {
		return c.StoreError(err, "error updating record")
	}
	res, err := s.record(ctx, def.Name, key)
	if err != nil {
		return c.StoreError(err, "error getting record")
	}
	return c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) DeleteRecord(c *CustomContext) error {
	key, err := c.Key()
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	table := c.Param("table")
	exists, err := s.Store.ContainsRecord(ctx, table, key)
	if err != nil {
		return c.StoreError(err, "error checking record")
	}
	if !exists {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	if err = s.Store.Destroy(ctx, table, key); err != nil {
		return c.StoreError(err, "error deleting record")
	}
	return c.NoContent(http.StatusNoContent)
}
