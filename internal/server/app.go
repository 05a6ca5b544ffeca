// Package server wires the document server: configuration, PostgreSQL
// storage with migrations, the document and export services, and the gRPC
// endpoint. Run blocks until the context is cancelled or the server fails.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/dmitrijs2005/cyclesync/internal/logging"
	"github.com/dmitrijs2005/cyclesync/internal/server/config"
	"github.com/dmitrijs2005/cyclesync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cyclesync/internal/server/services"

	gs "github.com/dmitrijs2005/cyclesync/internal/server/grpc"
)

type App struct {
	config          *config.Config
	logger          logging.Logger
	db              *sql.DB
	documentService *services.DocumentService
	exportService   *services.ExportService
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, "json", c.LogLevel)

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	ds := services.NewDocumentService(db, rm, logger)
	es := services.NewExportService(c)

	return &App{config: c, logger: logger, db: db, documentService: ds, exportService: es}, nil
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.documentService, app.exportService, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "grpc server failed", "error", err)
		cancelFunc()
		return err
	}
	return nil
}

// Run serves until ctx is cancelled and then closes the database.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	var (
		wg     sync.WaitGroup
		runErr error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close failed", "error", err)
	}
	app.logger.Info(ctx, "App stopped")

	return runErr
}
