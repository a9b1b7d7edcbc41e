package http_server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/danthegoodman1/recordstore/gologger"
	"github.com/danthegoodman1/recordstore/query"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type CustomContext struct {
	echo.Context
	RequestID string
}

func CreateReqContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		reqID := uuid.NewString()
		ctx := context.WithValue(c.Request().Context(), gologger.ReqIDKey, reqID)
		ctx = logger.WithContext(ctx)
		c.SetRequest(c.Request().WithContext(ctx))
		logger := zerolog.Ctx(ctx)
		logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("reqID", reqID)
		})
		cc := &CustomContext{
			Context:   c,
			RequestID: reqID,
		}
		return next(cc)
	}
}

// Casts to custom context for the handler, so this doesn't have to be done per handler
func ccHandler(h func(*CustomContext) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		return h(c.(*CustomContext))
	}
}

func (c *CustomContext) internalErrorMessage() string {
	return "internal error, request id: " + c.RequestID
}

func (c *CustomContext) InternalError(err error, msg string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		zerolog.Ctx(c.Request().Context()).Warn().CallerSkipFrame(1).Msg(err.Error())
	} else {
		zerolog.Ctx(c.Request().Context()).Error().CallerSkipFrame(1).Err(err).Msg(msg)
	}
	return c.String(http.StatusInternalServerError, c.internalErrorMessage())
}

// StoreError maps the store's error taxonomy onto a status, falling back to InternalError.
func (c *CustomContext) StoreError(err error, msg string) error {
	switch {
	case errors.Is(err, utils.ErrNotFound), errors.Is(err, utils.ErrRecordNotFound):
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, utils.ErrDuplicateKey):
		return c.String(http.StatusConflict, err.Error())
	case errors.Is(err, utils.ErrTypeMismatch), errors.Is(err, utils.ErrUnsupportedShape), errors.Is(err, query.ErrFuncNotFound):
		return c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, utils.ErrClosed):
		return c.String(http.StatusServiceUnavailable, err.Error())
	}
	return c.InternalError(err, msg)
}

// Key parses the :key path param.
func (c *CustomContext) Key() (int64, error) {
	key, err := strconv.ParseInt(c.Param("key"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "key must be an integer")
	}
	return key, nil
}
