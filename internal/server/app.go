// Package server wires configuration, the backend driver, the catalog
// service and the HTTP API together and runs them until a shutdown signal.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/annachatkara/moviedb/internal/logging"
	"github.com/annachatkara/moviedb/internal/server/backend"
	"github.com/annachatkara/moviedb/internal/server/backend/memory"
	"github.com/annachatkara/moviedb/internal/server/backend/postgres"
	"github.com/annachatkara/moviedb/internal/server/backend/postgrest"
	"github.com/annachatkara/moviedb/internal/server/config"
	"github.com/annachatkara/moviedb/internal/server/httpapi"
	"github.com/annachatkara/moviedb/internal/server/ingest"
	"github.com/annachatkara/moviedb/internal/server/services"
)

type App struct {
	config *config.Config
	logger logging.Logger
	close  func(context.Context) error
	server *httpapi.Server
}

// NewApp validates c and opens the configured backend. Logs go to stdout as
// JSON.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	return newApp(ctx, c, logging.New(os.Stdout, c.LogLevel))
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	b, closeFn, err := openBackend(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("backend init error: %w", err)
	}

	source, err := newSource(ctx, c)
	if err != nil {
		_ = closeFn(ctx)
		return nil, fmt.Errorf("source init error: %w", err)
	}

	svc := services.NewCatalogService(b, source, logger)
	handler := httpapi.NewHandler(svc, httpapi.Options{
		Tables:       c.Tables,
		Secret:       []byte(c.SecretKey),
		MaxBodyBytes: c.MaxBodyBytes,
		Logger:       logger,
	})

	logger.Info(ctx, "backend ready", "driver", c.Driver(), "tables", c.Tables)
	return &App{
		config: c,
		logger: logger,
		close:  closeFn,
		server: httpapi.NewServer(c.ListenAddr, handler, logger),
	}, nil
}

func openBackend(ctx context.Context, c *config.Config) (backend.Backend, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	switch d := c.Driver(); d {
	case config.DriverMemory:
		return memory.New(c.Tables...), noop, nil
	case config.DriverPostgREST:
		client, err := postgrest.New(c.BackendURL, c.BackendKey, nil)
		if err != nil {
			return nil, nil, err
		}
		return client, noop, nil
	case config.DriverPostgres:
		m, err := postgres.Open(ctx, c.DatabaseDSN, c.RunMigrations)
		if err != nil {
			return nil, nil, err
		}
		return m.Backend(), m.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend driver %q", d)
	}
}

// newSource serves bulk-upload file URLs over http(s) and s3.
func newSource(ctx context.Context, c *config.Config) (ingest.Source, error) {
	s3src, err := ingest.NewS3Source(ctx, ingest.S3Options{
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
	})
	if err != nil {
		return nil, err
	}
	httpSrc := ingest.HTTPSource{}
	return ingest.MultiSource{
		"http":  httpSrc,
		"https": httpSrc,
		"s3":    s3src,
	}, nil
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// the HTTP server down within ShutdownTimeout and closes the backend.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.logger.Info(ctx, "Starting app...", "addr", app.config.ListenAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.server.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info(context.Background(), "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
		defer cancel()
		return app.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if cerr := app.close(context.Background()); cerr != nil && err == nil {
		err = fmt.Errorf("close backend: %w", cerr)
	}
	if err != nil {
		app.logger.Error(context.Background(), "app stopped with error", "error", err)
		return err
	}
	app.logger.Info(context.Background(), "app stopped")
	return nil
}
