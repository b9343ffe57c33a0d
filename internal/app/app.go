// Package app wires the document management services together from
// configuration and exposes them to the CLI.
package app

import (
	"fmt"
	"os"
	"time"

	"dms-go/internal/backup"
	"dms-go/internal/config"
	"dms-go/internal/custody"
	"dms-go/internal/database"
	"dms-go/internal/dms"
	"dms-go/internal/encryption"
	"dms-go/internal/model"
	"dms-go/internal/optimize"
	"dms-go/internal/storage"
	"dms-go/internal/vault"
)

// App is the application layer between the CLI and the services. It
// constructs all dependencies from config and manages the DB and log file
// lifecycle on Close.
type App struct {
	cfg       *config.Config
	db        dms.Database
	files     dms.FileStore
	vault     dms.Vault
	encryptor dms.Encryptor
	logFile   *os.File
	logger    dms.Logger

	Docs      *dms.Service
	Backups   *backup.Service
	Optimizer *optimize.Optimizer
	Custody   *custody.Service
}

// Options tweaks application construction.
type Options struct {
	// Metrics registers Prometheus collectors on the default registry.
	// Only the long-running serve command sets this.
	Metrics bool
}

// NewApp creates a fully wired App from the given config. operation
// identifies the CLI command being run and tags every log line. The caller
// must call Close when done.
func NewApp(cfg *config.Config, operation string, opts Options) (*App, error) {
	opID := time.Now().UTC().Format("20060102T150405Z") + "-" + operation
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	files, err := storage.NewStore(cfg.Storage, logger)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating file store: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	v, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	var backupMetrics *backup.Metrics
	var storageMetrics *optimize.Metrics
	if opts.Metrics {
		backupMetrics = backup.NewMetrics()
		storageMetrics = optimize.NewMetrics()
	}

	clock := dms.RealClock{}
	idgen := dms.UUIDGenerator{}

	docs := dms.NewService(db, files, logger, clock, idgen, cfg.Versioning.MaxVersions)
	backups := backup.NewService(db, files, v, enc, logger, clock, idgen, backupMetrics)
	optimizer := optimize.NewOptimizer(files, db, docs, logger, clock, cfg.Optimize, storageMetrics)
	cust := custody.NewService(files, logger, clock)

	return &App{
		cfg:       cfg,
		db:        db,
		files:     files,
		vault:     v,
		encryptor: enc,
		logFile:   logFile,
		logger:    logger,
		Docs:      docs,
		Backups:   backups,
		Optimizer: optimizer,
		Custody:   cust,
	}, nil
}

// NewBackupScheduler creates the polling scheduler for the serve command,
// wired to this app's backup service and logger.
func (a *App) NewBackupScheduler(interval time.Duration) *backup.Scheduler {
	return backup.NewScheduler(a.Backups, interval, a.logger)
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Encryptor exposes the configured encryptor for key setup and unlocking.
func (a *App) Encryptor() dms.Encryptor {
	return a.encryptor
}

// ValidateVault verifies the backup destination is usable.
func (a *App) ValidateVault() error {
	return a.vault.ValidateSetup()
}

// ListAudit returns the most recent audit entries.
func (a *App) ListAudit(limit int) ([]*model.AuditLog, error) {
	return a.db.ListAudit(limit)
}

// Close releases the database connection and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = err
	}
	if err := a.logFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
