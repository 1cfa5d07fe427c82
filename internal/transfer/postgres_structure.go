package transfer

import (
	"context"
	"fmt"

	"github.com/kadirbelkuyu/dbclone/internal/database"
	"github.com/kadirbelkuyu/dbclone/internal/rewrite"
	"github.com/kadirbelkuyu/dbclone/internal/schema"
	"github.com/kadirbelkuyu/dbclone/pkg/logger"
)

type postgresCatalog interface {
	sourceCatalog
	ListEnums(ctx context.Context) ([]schema.EnumInfo, error)
	ListTables(ctx context.Context) ([]schema.TableInfo, error)
}

// PostgresStructureMigrator rebuilds the source schema in the target from
// catalog queries.
type PostgresStructureMigrator struct {
	skipRules

	catalog      postgresCatalog
	target       executor
	tables       *TableMigrator
	rewriter     *rewrite.Rewriter
	sourceSchema string
	logger       *logger.Logger
}

func NewPostgresStructureMigrator(catalog postgresCatalog, checker sequenceChecker, target executor, sourceSchema string, rewriter *rewrite.Rewriter, skip []string, copyStaging bool, log *logger.Logger) *PostgresStructureMigrator {
	tables := NewTableMigrator(catalog, checker, target, rewriter, log)
	tables.DeferForeignKeys = true

	return &PostgresStructureMigrator{
		skipRules:    postgresSkipRules(skip, copyStaging),
		catalog:      catalog,
		target:       target,
		tables:       tables,
		rewriter:     rewriter,
		sourceSchema: sourceSchema,
		logger:       log.WithField("schema", sourceSchema),
	}
}

// Migrate recreates the target schema, then enums, then every eligible
// table. Foreign keys go last so that tables may reference each other in
// any order. Only schema and enum failures abort the run.
func (m *PostgresStructureMigrator) Migrate(ctx context.Context) (*Report, error) {
	report := NewReport("structure")

	if err := recreateSchema(ctx, m.target, m.rewriter.Target(), m.logger); err != nil {
		return report, err
	}

	if err := m.migrateEnums(ctx); err != nil {
		return report, err
	}

	tables, err := m.catalog.ListTables(ctx)
	if err != nil {
		return report, err
	}

	type pending struct {
		table       schema.TableInfo
		foreignKeys []schema.ConstraintDDL
	}
	var deferred []pending

	for _, table := range tables {
		if table.Schema != m.sourceSchema || table.IsPartition {
			continue
		}

		if m.excluded(table.Name) {
			m.logger.Debugf("Skipping table %s", table.Name)
			report.Skip(table.Name)
			continue
		}

		foreignKeys, err := m.tables.Migrate(ctx, table)
		if err != nil {
			m.logger.Errorf("Failed to clone table %s: %v", table, err)
			report.Fail(table.Name, err)
			continue
		}

		report.Success(table.Name)
		if len(foreignKeys) > 0 {
			deferred = append(deferred, pending{table: table, foreignKeys: foreignKeys})
		}
	}

	for _, p := range deferred {
		if err := m.tables.ApplyForeignKeys(ctx, p.table, p.foreignKeys); err != nil {
			m.logger.Errorf("Failed to add foreign keys of %s: %v", p.table, err)
			report.Fail(p.table.Name, err)
		}
	}

	return report, nil
}

// migrateEnums recreates every user enum of the source database in the
// target schema, whatever schema it was declared in. When two source enums
// share a name the first one listed wins.
func (m *PostgresStructureMigrator) migrateEnums(ctx context.Context) error {
	enums, err := m.catalog.ListEnums(ctx)
	if err != nil {
		return err
	}

	for _, enum := range enums {
		ddl := schema.BuildEnumDDL(m.rewriter.Target(), enum)
		m.logger.Debugf("Creating enum %s.%s as %s.%s", enum.Schema, enum.Name, m.rewriter.Target(), enum.Name)
		if _, err := m.target.ExecContext(ctx, ddl); err != nil {
			if database.IsAlreadyExists(err) {
				m.logger.Warnf("Enum %s already exists in %s, skipping %s.%s", enum.Name, m.rewriter.Target(), enum.Schema, enum.Name)
				continue
			}
			return database.QueryError(fmt.Sprintf("create enum %s", enum.Name), err)
		}
	}

	return nil
}

// recreateSchema drops the target schema with everything in it and creates
// it empty.
func recreateSchema(ctx context.Context, target executor, name string, log *logger.Logger) error {
	ident := rewrite.Ident(name)
	statements := []string{
		fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE;", ident),
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;", ident),
	}

	log.Infof("Recreating schema %s", name)
	for _, stmt := range statements {
		log.Debugf("Executing: %s", stmt)
		if _, err := target.ExecContext(ctx, stmt); err != nil {
			return database.QueryError(fmt.Sprintf("recreate schema %s", name), err)
		}
	}

	return nil
}
