package transfer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kadirbelkuyu/dbclone/internal/database"
	"github.com/kadirbelkuyu/dbclone/internal/rewrite"
	"github.com/kadirbelkuyu/dbclone/internal/schema"
	"github.com/kadirbelkuyu/dbclone/pkg/logger"
)

// sourceCatalog is the part of schema.Extractor the table migrator reads.
type sourceCatalog interface {
	TableSequences(ctx context.Context, schemaName, table string) ([]schema.SequenceRef, error)
	SequenceDDL(ctx context.Context, ref schema.SequenceRef) (string, error)
	TableDDL(ctx context.Context, table schema.TableInfo) (string, error)
	PartitionDDL(ctx context.Context, schemaName, table string) ([]string, error)
	IndexDDL(ctx context.Context, schemaName, table string) ([]string, error)
	ConstraintDDL(ctx context.Context, schemaName, table string) ([]schema.ConstraintDDL, error)
}

type sequenceChecker interface {
	SequenceExists(ctx context.Context, schemaName, name string) (bool, error)
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// TableMigrator creates one table in the target: sequences, body,
// partitions, indexes and constraints, in that order.
type TableMigrator struct {
	catalog  sourceCatalog
	checker  sequenceChecker
	target   executor
	rewriter *rewrite.Rewriter
	logger   *logger.Logger

	// DeferForeignKeys makes Migrate return foreign keys instead of applying
	// them, so they can be added once every table exists.
	DeferForeignKeys bool
}

func NewTableMigrator(catalog sourceCatalog, checker sequenceChecker, target executor, rewriter *rewrite.Rewriter, logger *logger.Logger) *TableMigrator {
	return &TableMigrator{
		catalog:  catalog,
		checker:  checker,
		target:   target,
		rewriter: rewriter,
		logger:   logger,
	}
}

// Migrate clones table and returns the foreign keys it deferred.
func (m *TableMigrator) Migrate(ctx context.Context, table schema.TableInfo) ([]schema.ConstraintDDL, error) {
	log := m.logger.WithField("table", table.String())
	log.Infof("Cloning table %s", table)

	if err := m.migrateSequences(ctx, log, table); err != nil {
		return nil, err
	}

	if err := m.migrateBody(ctx, log, table); err != nil {
		return nil, err
	}

	if err := m.migratePartitions(ctx, log, table); err != nil {
		return nil, err
	}

	if err := m.migrateIndexes(ctx, log, table); err != nil {
		return nil, err
	}

	deferred, err := m.migrateConstraints(ctx, log, table)
	if err != nil {
		return nil, err
	}

	log.Debugf("Successfully cloned table %s", table)
	return deferred, nil
}

func (m *TableMigrator) migrateSequences(ctx context.Context, log *logger.Logger, table schema.TableInfo) error {
	refs, err := m.catalog.TableSequences(ctx, table.Schema, table.Name)
	if err != nil {
		return err
	}
	log.Debugf("Got %d sequences for table %s", len(refs), table)

	for _, ref := range refs {
		name := cleanSequenceName(ref.Name)
		exists, err := m.checker.SequenceExists(ctx, m.rewriter.Target(), name)
		if err != nil {
			return err
		}
		if exists {
			log.Debugf("Sequence %s.%s already exists, skipping", m.rewriter.Target(), name)
			continue
		}

		ddl, err := m.catalog.SequenceDDL(ctx, schema.SequenceRef{Schema: ref.Schema, Name: name})
		if err != nil {
			return err
		}

		if err := m.exec(ctx, log, "create sequence "+name, m.rewriter.RewriteSchema(ddl, ref.Schema)); err != nil {
			return err
		}
	}

	return nil
}

func (m *TableMigrator) migrateBody(ctx context.Context, log *logger.Logger, table schema.TableInfo) error {
	ddl, err := m.catalog.TableDDL(ctx, table)
	if err != nil {
		return err
	}
	if strings.TrimSpace(ddl) == "" {
		return database.StructureError("empty DDL returned for table %s", table)
	}

	log.Tracef("Original DDL: %s", ddl)
	ddl = m.rewriter.Rewrite(ddl, table.Schema)
	log.Tracef("Modified DDL: %s", ddl)

	return m.exec(ctx, log, "create table "+table.String(), ddl)
}

func (m *TableMigrator) migratePartitions(ctx context.Context, log *logger.Logger, table schema.TableInfo) error {
	ddls, err := m.catalog.PartitionDDL(ctx, table.Schema, table.Name)
	if err != nil {
		return err
	}

	for _, ddl := range ddls {
		if err := m.exec(ctx, log, "create partition of "+table.String(), m.rewriter.RewriteSchema(ddl, table.Schema)); err != nil {
			return err
		}
	}
	return nil
}

func (m *TableMigrator) migrateIndexes(ctx context.Context, log *logger.Logger, table schema.TableInfo) error {
	ddls, err := m.catalog.IndexDDL(ctx, table.Schema, table.Name)
	if err != nil {
		return err
	}

	for _, ddl := range ddls {
		if err := m.exec(ctx, log, "create index on "+table.String(), m.rewriter.RewriteSchema(ddl, table.Schema)); err != nil {
			return err
		}
	}
	return nil
}

func (m *TableMigrator) migrateConstraints(ctx context.Context, log *logger.Logger, table schema.TableInfo) ([]schema.ConstraintDDL, error) {
	constraints, err := m.catalog.ConstraintDDL(ctx, table.Schema, table.Name)
	if err != nil {
		return nil, err
	}

	var deferred []schema.ConstraintDDL
	for _, c := range constraints {
		c.SQL = m.rewriter.RewriteSchema(c.SQL, table.Schema)
		if c.ForeignKey && m.DeferForeignKeys {
			deferred = append(deferred, c)
			continue
		}
		if err := m.applyConstraint(ctx, log, table.Name, c); err != nil {
			return nil, err
		}
	}

	return deferred, nil
}

// ApplyForeignKeys adds constraints previously deferred by Migrate.
func (m *TableMigrator) ApplyForeignKeys(ctx context.Context, table schema.TableInfo, constraints []schema.ConstraintDDL) error {
	log := m.logger.WithField("table", table.String())
	for _, c := range constraints {
		if err := m.applyConstraint(ctx, log, table.Name, c); err != nil {
			return err
		}
	}
	return nil
}

// applyConstraint treats an existing constraint as success.
func (m *TableMigrator) applyConstraint(ctx context.Context, log *logger.Logger, table string, c schema.ConstraintDDL) error {
	name := schema.ExtractConstraintName(c.SQL, table)

	log.Debugf("Creating constraint %s", name)
	if _, err := m.target.ExecContext(ctx, c.SQL); err != nil {
		if database.IsAlreadyExists(err) {
			log.Debugf("Constraint %s already exists, skipping", name)
			return nil
		}
		log.Errorf("Failed to create constraint %s: %v", name, err)
		return database.QueryError(fmt.Sprintf("create constraint %s", name), err)
	}
	return nil
}

func (m *TableMigrator) exec(ctx context.Context, log *logger.Logger, action, ddl string) error {
	log.Debugf("Executing: %s", ddl)
	if _, err := m.target.ExecContext(ctx, ddl); err != nil {
		log.Errorf("Failed to %s: %v", action, err)
		return database.QueryError(action, err)
	}
	return nil
}

// cleanSequenceName strips what is left of a nextval() wrapper.
func cleanSequenceName(name string) string {
	name = strings.ReplaceAll(name, "nextval('", "")
	name = strings.ReplaceAll(name, "'::regclass)", "")
	name = strings.ReplaceAll(name, "'", "")
	return name
}
