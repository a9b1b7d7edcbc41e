package http_server

import (
	"net/http"

	"github.com/danthegoodman1/recordstore/schema"
	"github.com/danthegoodman1/recordstore/writeback"
)

type (
	TableInfo struct {
		schema.TableDef
		Cached bool `json:"cached"`
		// Dirty is the number of cached records waiting for a flush.
		Dirty int `json:"dirty"`
	}
)

func (s *HTTPServer) ListTables(c *CustomContext) error {
	tables, err := s.Store.Tables(c.Request().Context())
	if err != nil {
		return c.StoreError(err, "error listing tables")
	}
	if tables == nil {
		tables = []string{}
	}
	return c.JSON(http.StatusOK, tables)
}

func (s *HTTPServer) CreateTable(c *CustomContext) error {
	var def schema.TableDef
	if err := ValidateRequest(c, &def); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := s.Store.CreateTable(ctx, def); err != nil {
		return c.StoreError(err, "error creating table")
	}
	created, err := s.Store.TableDef(ctx, def.Name)
	if err != nil {
		return c.StoreError(err, "error reading created table")
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *HTTPServer) GetTable(c *CustomContext) error {
	ctx := c.Request().Context()
	def, err := s.Store.TableDef(ctx, c.Param("table"))
	if err != nil {
		return c.StoreError(err, "error getting table")
	}
	info := TableInfo{TableDef: def, Cached: s.Store.IsCached()}
	if wb, ok := s.Store.(*writeback.Store); ok {
		info.Dirty, err = wb.DirtyCount(ctx, def.Name)
		if err != nil {
			return c.StoreError(err, "error counting dirty records")
		}
	}
	return c.JSON(http.StatusOK, info)
}
