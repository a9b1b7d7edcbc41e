package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danthegoodman1/recordstore/crdb"
	"github.com/danthegoodman1/recordstore/gologger"
	"github.com/danthegoodman1/recordstore/http_server"
	"github.com/danthegoodman1/recordstore/memstore"
	"github.com/danthegoodman1/recordstore/migrations"
	"github.com/danthegoodman1/recordstore/snapshot"
	"github.com/danthegoodman1/recordstore/sqlstore"
	"github.com/danthegoodman1/recordstore/store"
	"github.com/danthegoodman1/recordstore/utils"
	"github.com/danthegoodman1/recordstore/writeback"
)

var logger = gologger.NewLogger()

// openBackend opens the store selected by STORE_BACKEND.
func openBackend(ctx context.Context) (store.Store, error) {
	switch utils.STORE_BACKEND {
	case "memory":
		return memstore.Open(ctx), nil
	case "crdb":
		_, err := migrations.RunMigrations(utils.CRDB_DSN)
		if err != nil {
			return nil, fmt.Errorf("error in RunMigrations: %w", err)
		}
		if err = migrations.CheckMigrations(utils.CRDB_DSN); err != nil {
			return nil, fmt.Errorf("error in CheckMigrations: %w", err)
		}
		pool, err := crdb.ConnectToDB(ctx, utils.CRDB_DSN)
		if err != nil {
			return nil, fmt.Errorf("error in ConnectToDB: %w", err)
		}
		return sqlstore.Open(ctx, pool)
	}
	return nil, fmt.Errorf("unknown STORE_BACKEND %q", utils.STORE_BACKEND)
}

// openSink prefers S3 when a bucket is configured and falls back to local disk.
func openSink() (snapshot.Sink, error) {
	if utils.S3_BUCKET_NAME != "" {
		return snapshot.NewS3SinkFromEnv()
	}
	return snapshot.NewDiskSink(utils.SNAPSHOT_DIR)
}

// flushAll saves every table with retries and then closes the store.
func flushAll(ctx context.Context, st *writeback.Store) error {
	tables, err := st.Tables(ctx)
	if err != nil {
		return fmt.Errorf("error in Tables: %w", err)
	}
	for _, table := range tables {
		if _, err := st.SaveAllWithRetry(ctx, table, utils.NewFlushBackOff(ctx, uint64(utils.FLUSH_MAX_RETRIES))); err != nil {
			return fmt.Errorf("error flushing %s: %w", table, err)
		}
	}
	return st.Close(ctx)
}

func main() {
	logger.Debug().Msg("starting record store")
	ctx := logger.WithContext(context.Background())

	backend, err := openBackend(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("error opening store backend")
		os.Exit(1)
	}
	st := writeback.Open(ctx, backend)

	sink, err := openSink()
	if err != nil {
		logger.Error().Err(err).Msg("error opening snapshot sink")
		os.Exit(1)
	}

	httpServer := http_server.StartHTTPServer(st, sink)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Warn().Msg("received shutdown signal!")

	// For AWS ALB needing some time to de-register pod
	sleepTime := utils.GetEnvOrDefaultInt("SHUTDOWN_SLEEP_SEC", 0)
	logger.Info().Msg(fmt.Sprintf("sleeping for %ds before exiting", sleepTime))

	time.Sleep(time.Second * time.Duration(sleepTime))
	logger.Info().Msg(fmt.Sprintf("slept for %ds, exiting", sleepTime))

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown HTTP server")
	} else {
		logger.Info().Msg("successfully shutdown HTTP server")
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, time.Second*30)
	defer flushCancel()
	if err := flushAll(flushCtx, st); err != nil {
		logger.Error().Err(err).Msg("failed to flush pending writes")
		os.Exit(1)
	}
	logger.Info().Msg("flushed pending writes and closed store")
}
