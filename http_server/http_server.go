package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/danthegoodman1/recordstore/gologger"
	"github.com/danthegoodman1/recordstore/snapshot"
	"github.com/danthegoodman1/recordstore/store"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
)

var logger = gologger.NewComponentLogger("http_server")

type HTTPServer struct {
	Echo  *echo.Echo
	Store store.Store
	// Sink is where snapshots are written and restored from, nil disables them.
	Sink snapshot.Sink
}

type CustomValidator struct {
	validator *validator.Validate
}

// NewHTTPServer builds the echo instance and its routes without listening.
func NewHTTPServer(st store.Store, sink snapshot.Sink) *HTTPServer {
	s := &HTTPServer{
		Echo:  echo.New(),
		Store: st,
		Sink:  sink,
	}
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.JSONSerializer = &utils.NoEscapeJSONSerializer{}

	s.Echo.Use(CreateReqContext)
	s.Echo.Use(LoggerMiddleware)
	s.Echo.Use(middleware.CORS())
	s.Echo.Validator = &CustomValidator{validator: validator.New()}

	// technical - no auth
	s.Echo.GET("/hc", s.HealthCheck)

	tables := s.Echo.Group("/tables")
	tables.GET("", ccHandler(s.ListTables))
	tables.POST("", ccHandler(s.CreateTable))
	tables.GET("/:table", ccHandler(s.GetTable))

	tables.POST("/:table/records", ccHandler(s.InsertRecords))
	tables.GET("/:table/records/:key", ccHandler(s.GetRecord))
	tables.PATCH("/:table/records/:key", ccHandler(s.UpdateRecord))
	tables.DELETE("/:table/records/:key", ccHandler(s.DeleteRecord))

	tables.POST("/:table/query", ccHandler(s.QueryRecords))
	tables.POST("/:table/count", ccHandler(s.CountRecords))
	tables.POST("/:table/aggregate", ccHandler(s.AggregateRecords))

	tables.POST("/:table/save", ccHandler(s.SaveTable))
	tables.POST("/:table/snapshot", ccHandler(s.SnapshotTable))
	tables.POST("/:table/restore", ccHandler(s.RestoreTable))

	return s
}

func StartHTTPServer(st store.Store, sink snapshot.Sink) *HTTPServer {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", utils.GetEnvOrDefault("HTTP_PORT", "8080")))
	if err != nil {
		logger.Error().Err(err).Msg("error creating tcp listener, exiting")
		os.Exit(1)
	}
	s := NewHTTPServer(st, sink)

	s.Echo.Listener = listener
	go func() {
		logger.Info().Msg("starting h2c server on " + listener.Addr().String())
		err := s.Echo.StartH2CServer("", &http2.Server{})
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("failed to start h2c server, exiting")
			os.Exit(1)
		}
	}()

	return s
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func ValidateRequest(c echo.Context, s interface{}) error {
	if err := c.Bind(s); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(s); err != nil {
		return err
	}
	return nil
}

func (*HTTPServer) HealthCheck(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)
	return err
}

func LoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			// default handler
			c.Error(err)
		}
		stop := time.Since(start)
		logger := zerolog.Ctx(c.Request().Context())
		req := c.Request()
		res := c.Response()

		p := req.URL.Path
		if p == "" {
			p = "/"
		}

		cl := req.Header.Get(echo.HeaderContentLength)
		if cl == "" {
			cl = "0"
		}
		logger.Debug().Str("method", req.Method).Str("remote_ip", c.RealIP()).Str("req_uri", req.RequestURI).Str("handler_path", c.Path()).Str("path", p).Int("status", res.Status).Int64("latency_ns", int64(stop)).Str("protocol", req.Proto).Str("bytes_in", cl).Int64("bytes_out", res.Size).Msg("req recived")
		return nil
	}
}
