package transfer

import (
	"context"
	"fmt"

	"github.com/kadirbelkuyu/dbclone/internal/database"
	"github.com/kadirbelkuyu/dbclone/internal/schema"
	"github.com/kadirbelkuyu/dbclone/pkg/logger"
)

// sessionOpener hands out a dedicated target connection.
type sessionOpener interface {
	Session(ctx context.Context) (database.Session, error)
}

// MySQLStructureMigrator replays SHOW CREATE TABLE output of every source
// table on the target database.
type MySQLStructureMigrator struct {
	skipRules

	source database.Querier
	target sessionOpener
	logger *logger.Logger
}

func NewMySQLStructureMigrator(source database.Querier, target sessionOpener, skip []string, copyStaging bool, log *logger.Logger) *MySQLStructureMigrator {
	return &MySQLStructureMigrator{
		skipRules: mysqlSkipRules(skip, copyStaging),
		source:    source,
		target:    target,
		logger:    log,
	}
}

func (m *MySQLStructureMigrator) Migrate(ctx context.Context) (*Report, error) {
	report := NewReport("structure")

	// FOREIGN_KEY_CHECKS is per session, so every statement goes through one connection.
	conn, err := m.target.Session(ctx)
	if err != nil {
		return report, err
	}
	defer conn.Close()

	if err := setForeignKeyChecks(ctx, conn, false); err != nil {
		return report, err
	}
	defer func() {
		if err := setForeignKeyChecks(context.WithoutCancel(ctx), conn, true); err != nil {
			m.logger.Errorf("Failed to restore foreign key checks: %v", err)
		}
	}()

	if err := m.dropTargetTables(ctx, conn); err != nil {
		return report, err
	}

	tables, err := schema.MySQLTables(ctx, m.source)
	if err != nil {
		return report, err
	}

	for _, table := range tables {
		if m.excluded(table) {
			m.logger.Debugf("Skipping table %s", table)
			report.Skip(table)
			continue
		}

		if err := m.migrateTable(ctx, conn, table); err != nil {
			m.logger.Errorf("Failed to clone table %s: %v", table, err)
			report.Fail(table, err)
			continue
		}
		report.Success(table)
	}

	return report, nil
}

func (m *MySQLStructureMigrator) migrateTable(ctx context.Context, conn database.Querier, table string) error {
	m.logger.Infof("Cloning table %s", table)

	ddl, err := schema.MySQLCreateTable(ctx, m.source, table)
	if err != nil {
		return err
	}

	m.logger.Tracef("DDL: %s", ddl)
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return database.QueryError(fmt.Sprintf("create table %s", table), err)
	}
	return nil
}

// dropTargetTables leaves private tables in place.
func (m *MySQLStructureMigrator) dropTargetTables(ctx context.Context, conn database.Querier) error {
	tables, err := schema.MySQLTables(ctx, conn)
	if err != nil {
		return err
	}

	for _, table := range tables {
		if m.IsPrivateTable(table) {
			continue
		}
		m.logger.Debugf("Dropping target table %s", table)
		if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+schema.MySQLIdent(table)); err != nil {
			return database.QueryError(fmt.Sprintf("drop table %s", table), err)
		}
	}
	return nil
}

func setForeignKeyChecks(ctx context.Context, conn executor, enabled bool) error {
	value := 0
	if enabled {
		value = 1
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET FOREIGN_KEY_CHECKS = %d", value)); err != nil {
		return database.QueryError("set foreign key checks", err)
	}
	return nil
}
