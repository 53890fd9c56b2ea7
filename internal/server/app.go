// Package server initializes and runs the record integrity server: it opens
// the database, runs migrations, decodes the encryption key, wires the
// services together, and drives the background anchor sweeper until
// shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/lifexhealth/medvault/internal/logging"
	"github.com/lifexhealth/medvault/internal/server/audittrail"
	"github.com/lifexhealth/medvault/internal/server/config"
	"github.com/lifexhealth/medvault/internal/server/credguard"
	"github.com/lifexhealth/medvault/internal/server/ledger"
	"github.com/lifexhealth/medvault/internal/server/records"
	"github.com/lifexhealth/medvault/internal/server/repositories/repomanager"
	"github.com/lifexhealth/medvault/internal/server/vault"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB

	CredGuard *credguard.Service
	Records   *records.Service
	Audit     *audittrail.Service
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	// A missing or malformed key is fatal here: starting without it would
	// make every sealed field in the database unreadable.
	key, err := cfg.DecodeEncryptionKey()
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	db, err := repomanager.OpenDB(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	audit := audittrail.NewService(db, m, logger)
	guard := credguard.NewService(db, m, audit, logger, cfg)

	v := vault.New(key, cfg.MaxCanonicalBytes, logger)
	registry := ledger.NewHTTPRegistry(cfg.RegistryBaseURL, cfg.RegistryTimeout)
	lc := ledger.NewClient(registry, logger, cfg)
	store := records.NewS3ObjectStore(cfg)
	rs := records.NewService(db, m, v, lc, audit, store, logger, cfg)

	return &App{
		config:    cfg,
		logger:    logger,
		db:        db,
		CredGuard: guard,
		Records:   rs,
		Audit:     audit,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Records.RunSweeper(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}

	app.logger.Info(ctx, "app stopped")
}
