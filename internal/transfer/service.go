package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirbelkuyu/dbclone/internal/config"
	"github.com/kadirbelkuyu/dbclone/internal/database"
	"github.com/kadirbelkuyu/dbclone/internal/pgdump"
	"github.com/kadirbelkuyu/dbclone/internal/rewrite"
	"github.com/kadirbelkuyu/dbclone/internal/schema"
	"github.com/kadirbelkuyu/dbclone/pkg/logger"
)

type Options struct {
	ShowProgress bool
	Logger       *logger.Logger
}

// Service runs the structure and data phases selected by the
// technology section of the configuration.
type Service struct {
	structure StructureMigrator
	data      DataMigrator
	logger    *logger.Logger
}

func NewService(cfg *config.Config, source, target *database.Connection, options Options) (*Service, error) {
	log := options.Logger
	if log == nil {
		log = logger.NewLogger(cfg.Log.LogLevel)
	}

	service := &Service{logger: log}
	tech := cfg.Technology

	switch cfg.Technology.Category {
	case config.CategoryPostgres:
		rewriter := rewrite.New(target.Schema())
		catalog := schema.NewExtractor(source.DB, target.Schema(), log)

		if tech.UsePgDump {
			runner := pgdump.NewRunner(cfg.Source, cfg.Target, rewriter, log)
			if tech.CopyStructure {
				service.structure = NewDumpStructureMigrator(runner, target.DB, target.Schema(), cfg.Tables.Skip, log)
			}
			if tech.CopyData {
				service.data = NewDumpDataMigrator(runner, target.DB, target.Schema(), cfg.Tables.DataSource, log)
			}
			break
		}

		if tech.CopyStructure {
			targetCatalog := schema.NewExtractor(target.DB, target.Schema(), log)
			service.structure = NewPostgresStructureMigrator(catalog, targetCatalog, target.DB,
				source.Schema(), rewriter, cfg.Tables.Skip, tech.CopyStagingTables, log)
		}
		if tech.CopyData {
			service.data = NewPostgresDataMigrator(catalog, source.DB, target.DB,
				source.Schema(), target.Schema(), cfg.Tables.DataSource, options.ShowProgress, log)
		}
	case config.CategoryMySQL:
		if tech.CopyStructure {
			service.structure = NewMySQLStructureMigrator(source.DB, target, cfg.Tables.Skip, tech.CopyStagingTables, log)
		}
		if tech.CopyData {
			service.data = NewMySQLDataMigrator(source.DB, target, cfg.Tables.DataSource, options.ShowProgress, log)
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", tech.Category)
	}

	return service, nil
}

// Execute runs structure then data. Per-table failures end up in the
// returned reports; only phase-level errors are returned.
func (s *Service) Execute(ctx context.Context) ([]*Report, error) {
	var reports []*Report

	if s.structure == nil && s.data == nil {
		s.logger.Warn("Neither copy_structure nor copy_data is enabled, nothing to do")
		return reports, nil
	}

	if s.structure != nil {
		report, err := s.runPhase(ctx, "structure", s.structure.Migrate)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, fmt.Errorf("structure migration failed: %w", err)
		}
	}

	if s.data != nil {
		report, err := s.runPhase(ctx, "data", s.data.Migrate)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			return reports, fmt.Errorf("data migration failed: %w", err)
		}
	}

	return reports, nil
}

func (s *Service) runPhase(ctx context.Context, phase string, migrate func(context.Context) (*Report, error)) (*Report, error) {
	s.logger.Infof("Starting %s migration", phase)
	start := time.Now()

	report, err := migrate(ctx)
	if report != nil {
		report.Log(s.logger)
	}

	s.logger.Infof("Finished %s migration in %s", phase, time.Since(start).Round(time.Millisecond))
	return report, err
}
