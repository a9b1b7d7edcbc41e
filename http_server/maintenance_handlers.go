package http_server

import (
	"context"
	"net/http"
	"time"

	"github.com/danthegoodman1/recordstore/snapshot"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/writeback"
	"github.com/labstack/echo/v4"
)

type (
	SaveResponse struct {
		// Changed is true when at least one pending write reached the backend.
		Changed bool `json:"changed"`
	}

	RestoreReqBody struct {
		File string `json:"file" validate:"required"`
	}
)

func (s *HTTPServer) SaveTable(c *CustomContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*60)
	defer cancel()

	table := c.Param("table")
	var (
		changed bool
		err     error
	)
	if wb, ok := s.Store.(*writeback.Store); ok {
		changed, err = wb.SaveAllWithRetry(ctx, table, utils.NewFlushBackOff(ctx, uint64(utils.FLUSH_MAX_RETRIES)))
	} else {
		changed, err = s.Store.SaveAll(ctx, table)
	}
	if err != nil {
		return c.StoreError(err, "error saving table")
	}
	return c.JSON(http.StatusOK, SaveResponse{Changed: changed})
}

func (s *HTTPServer) SnapshotTable(c *CustomContext) error {
	if s.Sink == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "snapshots are not configured")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Minute*5)
	defer cancel()

	res, err := snapshot.Export(ctx, s.Store, c.Param("table"), s.Sink)
	if err != nil {
		return c.StoreError(err, "error exporting snapshot")
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *HTTPServer) RestoreTable(c *CustomContext) error {
	if s.Sink == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "snapshots are not configured")
	}
	var reqBody RestoreReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Minute*5)
	defer cancel()

	res, err := snapshot.Import(ctx, s.Store, c.Param("table"), reqBody.File, s.Sink)
	if err != nil {
		return c.StoreError(err, "error importing snapshot")
	}
	return c.JSON(http.StatusOK, res)
}
