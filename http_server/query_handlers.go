package http_server

import (
	"net/http"

	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/value"
)

type (
	QueryResponse struct {
		Rows []map[string]any `json:"rows"`
	}

	CountReqBody struct {
		Where *ConditionSpec `json:"where"`
	}

	CountResponse struct {
		Count int64 `json:"count"`
	}

	AggregateReqBody struct {
		Func   string         `json:"func" validate:"required"`
		Column string         `json:"column" validate:"required"`
		Fn     string         `json:"fn"`
		Where  *ConditionSpec `json:"where"`
	}

	AggregateResponse struct {
		Kind  value.Kind `json:"kind"`
		Value any        `json:"value"`
	}
)

func (s *HTTPServer) QueryRecords(c *CustomContext) error {
	var reqBody ScopeSpec
	if err := ValidateRequest(c, &reqBody); err != nil {
		return err
	}
	ctx := c.Request().Context()
	table := c.Param("table")
	dec := newSpecDecoder(ctx, s.Store)
	def, err := dec.def(table)
	if err != nil {
		return c.StoreError(err, "error getting table")
	}
	if err = def.CheckColumns(reqBody.Columns); err != nil {
		return c.StoreError(err, "error checking columns")
	}
	scope, err := dec.Scope(def.Name, reqBody)
	if err != nil {
		return c.StoreError(err, "error decoding scope")
	}

	res := QueryResponse{Rows: []map[string]any{}}
	err = s.Store.StreamAllWithData(ctx, def.Name, reqBody.Columns, scope, func(row value.Row) (bool, error) {
		res.Rows = append(res.Rows, row.Natives())
		return true, nil
	})
	if err != nil {
		return c.StoreError(err, "error streaming rows")
	}
	return c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) CountRecords(c *CustomContext) error {
	var reqBody CountReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return err
	}
	ctx := c.Request().Context()
	table := c.Param("table")
	cond, err := newSpecDecoder(ctx, s.Store).Condition(table, reqBody.Where)
	if err != nil {
		return c.StoreError(err, "error decoding condition")
	}
	count, err := s.Store.Count(ctx, table, cond)
	if err != nil {
		return c.StoreError(err, "error counting rows")
	}
	return c.JSON(http.StatusOK, CountResponse{Count: count})
}

func (s *HTTPServer) AggregateRecords(c *CustomContext) error {
	var reqBody AggregateReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return err
	}
	ctx := c.Request().Context()
	table := c.Param("table")
	f, err := query.ParseAggregateFunc(reqBody.Func)
	if err != nil {
		return c.StoreError(err, "error parsing aggregate")
	}
	dec := newSpecDecoder(ctx, s.Store)
	src, _, err := dec.source(table, reqBody.Column, reqBody.Fn)
	if err != nil {
		return c.StoreError(err, "error decoding aggregate source")
	}
	cond, err := dec.Condition(table, reqBody.Where)
	if err != nil {
		return c.StoreError(err, "error decoding condition")
	}
	v, err := s.Store.Aggregate(ctx, table, query.Aggregate{Func: f, Source: src}, cond)
	if err != nil {
		return c.StoreError(err, "error aggregating")
	}
	return c.JSON(http.StatusOK, AggregateResponse{Kind: v.Kind, Value: v.Native()})
}
