package transfer

import (
	"context"
	"fmt"

	"github.com/kadirbelkuyu/dbclone/internal/database"
	"github.com/kadirbelkuyu/dbclone/internal/pgdump"
	"github.com/kadirbelkuyu/dbclone/internal/rewrite"
	"github.com/kadirbelkuyu/dbclone/pkg/logger"
)

type dumpRunner interface {
	Run(ctx context.Context, options pgdump.Options) error
}

// DumpStructureMigrator restores pg_dump --schema-only output into the
// recreated target schema.
type DumpStructureMigrator struct {
	skipRules

	runner dumpRunner
	target executor
	schema string
	skip   []string
	logger *logger.Logger
}

func NewDumpStructureMigrator(runner dumpRunner, target executor, targetSchema string, skip []string, log *logger.Logger) *DumpStructureMigrator {
	return &DumpStructureMigrator{
		skipRules: newSkipRules(nil, skip, nil, nil, false),
		runner:    runner,
		target:    target,
		schema:    targetSchema,
		skip:      skip,
		logger:    log,
	}
}

// Migrate fails as a whole: pg_dump either restores everything or the
// phase aborts with ErrCommandExecution.
func (m *DumpStructureMigrator) Migrate(ctx context.Context) (*Report, error) {
	report := NewReport("structure")

	if err := recreateSchema(ctx, m.target, m.schema, m.logger); err != nil {
		return report, err
	}

	m.logger.Info("Restoring schema with pg_dump")
	if err := m.runner.Run(ctx, pgdump.Options{SchemaOnly: true, ExcludeTables: m.skip}); err != nil {
		return report, err
	}

	for _, table := range m.skip {
		report.Skip(table)
	}
	return report, nil
}

// DumpDataMigrator copies rows of the configured tables with
// pg_dump --data-only.
type DumpDataMigrator struct {
	runner dumpRunner
	target executor
	schema string
	tables []string
	logger *logger.Logger
}

func NewDumpDataMigrator(runner dumpRunner, target executor, targetSchema string, tables []string, log *logger.Logger) *DumpDataMigrator {
	return &DumpDataMigrator{
		runner: runner,
		target: target,
		schema: targetSchema,
		tables: tables,
		logger: log,
	}
}

func (m *DumpDataMigrator) Migrate(ctx context.Context) (*Report, error) {
	report := NewReport("data")

	var tables []string
	for _, table := range m.tables {
		stmt := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", rewrite.Qualified(m.schema, table))
		m.logger.Debugf("Executing: %s", stmt)
		if _, err := m.target.ExecContext(ctx, stmt); err != nil {
			m.logger.Errorf("Failed to truncate %s: %v", table, err)
			report.Fail(table, database.QueryError(fmt.Sprintf("truncate %s", table), err))
			continue
		}
		tables = append(tables, table)
	}

	if len(tables) == 0 {
		return report, nil
	}

	m.logger.Infof("Copying %d tables with pg_dump", len(tables))
	if err := m.runner.Run(ctx, pgdump.Options{DataOnly: true, Tables: tables}); err != nil {
		return report, err
	}

	for _, table := range tables {
		report.Success(table)
	}
	return report, nil
}
