package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kadirbelkuyu/dbclone/internal/config"
	"github.com/kadirbelkuyu/dbclone/internal/database"
	"github.com/kadirbelkuyu/dbclone/internal/transfer"
	"github.com/kadirbelkuyu/dbclone/pkg/logger"
)

type Service struct {
	ShowProgress bool
}

func NewService() *Service {
	return &Service{ShowProgress: true}
}

// Run clones cfg.Source into cfg.Target. Tables that fail are logged in the
// reports and do not make Run fail.
func (s *Service) Run(ctx context.Context, cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log.LogLevel).WithField("run_id", uuid.NewString())
	log.Infof("Starting %s clone from %s to %s", cfg.Technology.Category, cfg.Source.Address(), cfg.Target.Address())
	start := time.Now()

	source, err := s.connect(ctx, cfg, cfg.Source, true)
	if err != nil {
		return fmt.Errorf("failed to connect to source database: %w", err)
	}
	defer source.Close()

	target, err := s.connect(ctx, cfg, cfg.Target, false)
	if err != nil {
		return fmt.Errorf("failed to connect to target database: %w", err)
	}
	defer target.Close()
	log.Debugf("Connected to source %s and target %s", source.GetDatabaseName(), target.GetDatabaseName())

	service, err := transfer.NewService(cfg, source, target, transfer.Options{
		ShowProgress: s.ShowProgress,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize transfer service: %w", err)
	}

	reports, err := service.Execute(ctx)
	if err != nil {
		return err
	}

	failed := 0
	for _, report := range reports {
		failed += len(report.Failures)
	}
	if failed > 0 {
		log.Warnf("Clone finished with %d failed tables in %s", failed, time.Since(start).Round(time.Millisecond))
		return nil
	}

	log.Infof("Clone completed successfully in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// connect pins search_path to pg_catalog on the PostgreSQL source so every
// catalog query resolves the same way whatever the role default is.
func (s *Service) connect(ctx context.Context, cfg *config.Config, db config.DatabaseConfig, isSource bool) (*database.Connection, error) {
	opts := database.Options{
		Category: cfg.Technology.Category,
		Driver:   cfg.Technology.PgDriver,
	}
	if isSource && cfg.IsPostgres() {
		opts.RuntimeParams = map[string]string{"search_path": "pg_catalog"}
	}

	return database.NewConnection(ctx, db, opts)
}
