package transfer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kadirbelkuyu/dbclone/internal/database"
	"github.com/kadirbelkuyu/dbclone/internal/schema"
	"github.com/kadirbelkuyu/dbclone/pkg/logger"
	"github.com/kadirbelkuyu/dbclone/pkg/progress"
)

var mysqlEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// MySQLDataMigrator copies rows one INSERT at a time with foreign key
// checks disabled for the whole phase.
type MySQLDataMigrator struct {
	source       database.Querier
	target       sessionOpener
	tables       []string
	showProgress bool
	logger       *logger.Logger
}

func NewMySQLDataMigrator(source database.Querier, target sessionOpener, tables []string, showProgress bool, log *logger.Logger) *MySQLDataMigrator {
	return &MySQLDataMigrator{
		source:       source,
		target:       target,
		tables:       tables,
		showProgress: showProgress,
		logger:       log,
	}
}

func (m *MySQLDataMigrator) Migrate(ctx context.Context) (*Report, error) {
	report := NewReport("data")

	conn, err := m.target.Session(ctx)
	if err != nil {
		return report, err
	}
	defer conn.Close()

	if err := setForeignKeyChecks(ctx, conn, false); err != nil {
		return report, err
	}

	for _, table := range m.tables {
		if err := m.copyTable(ctx, conn, table); err != nil {
			m.logger.Errorf("Failed to copy data of %s: %v", table, err)
			report.Fail(table, err)
			continue
		}
		report.Success(table)
	}

	if err := setForeignKeyChecks(context.WithoutCancel(ctx), conn, true); err != nil {
		return report, err
	}
	return report, nil
}

func (m *MySQLDataMigrator) copyTable(ctx context.Context, conn executor, table string) error {
	log := m.logger.WithField("table", table)

	if _, err := conn.ExecContext(ctx, "TRUNCATE TABLE "+schema.MySQLIdent(table)); err != nil {
		return database.QueryError(fmt.Sprintf("truncate %s", table), err)
	}

	columns, err := schema.MySQLColumns(ctx, m.source, table)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return database.StructureError("no columns found for table %s", table)
	}

	rows, err := m.source.QueryContext(ctx, "SELECT * FROM "+schema.MySQLIdent(table))
	if err != nil {
		return database.QueryError(fmt.Sprintf("select from %s", table), err)
	}
	defer rows.Close()

	var bar *progress.Bar
	if m.showProgress {
		bar = progress.NewBar("data", table)
	}
	defer bar.Finish()

	copied := 0
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return database.QueryError(fmt.Sprintf("read row of %s", table), err)
		}

		insert := BuildMySQLInsert(table, columns, values)
		if _, err := conn.ExecContext(ctx, insert); err != nil {
			return database.QueryError(fmt.Sprintf("insert into %s", table), err)
		}
		copied++
		bar.Increment()
	}
	if err := rows.Err(); err != nil {
		return database.QueryError(fmt.Sprintf("read rows of %s", table), err)
	}

	log.Infof("Copied %d rows into %s", copied, table)
	return nil
}

// BuildMySQLInsert renders a single-row INSERT with every value quoted.
func BuildMySQLInsert(table string, columns []string, values []sql.NullString) string {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = schema.MySQLIdent(col)
	}

	literals := make([]string, len(values))
	for i, value := range values {
		literals[i] = mysqlLiteral(value)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		schema.MySQLIdent(table), strings.Join(names, ", "), strings.Join(literals, ", "))
}

func mysqlLiteral(value sql.NullString) string {
	if !value.Valid {
		return "NULL"
	}
	return "'" + mysqlEscaper.Replace(value.String) + "'"
}
