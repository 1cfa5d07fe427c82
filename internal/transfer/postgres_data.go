package transfer

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/kadirbelkuyu/dbclone/internal/database"
	"github.com/kadirbelkuyu/dbclone/internal/rewrite"
	"github.com/kadirbelkuyu/dbclone/internal/schema"
	"github.com/kadirbelkuyu/dbclone/pkg/logger"
	"github.com/kadirbelkuyu/dbclone/pkg/progress"
)

const idColumn = "id"

var integerTypes = map[string]struct{}{
	"smallint": {},
	"integer":  {},
	"bigint":   {},
}

type columnReader interface {
	DataColumns(ctx context.Context, schemaName, table string) ([]schema.DataColumn, error)
}

// PostgresDataMigrator copies the rows of each configured table with one
// multi-row INSERT, after truncating the target table.
type PostgresDataMigrator struct {
	catalog      columnReader
	source       database.Querier
	target       executor
	sourceSchema string
	targetSchema string
	tables       []string
	showProgress bool
	logger       *logger.Logger
}

func NewPostgresDataMigrator(catalog columnReader, source database.Querier, target executor, sourceSchema, targetSchema string, tables []string, showProgress bool, log *logger.Logger) *PostgresDataMigrator {
	return &PostgresDataMigrator{
		catalog:      catalog,
		source:       source,
		target:       target,
		sourceSchema: sourceSchema,
		targetSchema: targetSchema,
		tables:       tables,
		showProgress: showProgress,
		logger:       log,
	}
}

// Migrate never aborts on a table error; each table is reported on its own.
func (m *PostgresDataMigrator) Migrate(ctx context.Context) (*Report, error) {
	report := NewReport("data")

	for _, table := range m.tables {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := m.copyTable(ctx, table); err != nil {
			m.logger.Errorf("Failed to copy data of %s: %v", table, err)
			report.Fail(table, err)
			continue
		}
		report.Success(table)
	}

	return report, nil
}

func (m *PostgresDataMigrator) copyTable(ctx context.Context, table string) error {
	log := m.logger.WithField("table", table)
	targetTable := rewrite.Qualified(m.targetSchema, table)

	truncate := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", targetTable)
	log.Debugf("Executing: %s", truncate)
	if _, err := m.target.ExecContext(ctx, truncate); err != nil {
		return database.QueryError(fmt.Sprintf("truncate %s", targetTable), err)
	}

	all, err := m.catalog.DataColumns(ctx, m.sourceSchema, table)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		return database.StructureError("no columns found for table %s.%s", m.sourceSchema, table)
	}

	columns := InsertColumns(all)
	if len(columns) == 0 {
		return database.StructureError("no insertable columns in table %s.%s", m.sourceSchema, table)
	}
	log.Debugf("Copying %d of %d columns", len(columns), len(all))

	rows, err := m.readRows(ctx, table, columns)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		log.Infof("Table %s is empty, nothing to copy", table)
		return nil
	}

	insert := BuildInsert(targetTable, columns, rows)
	log.Tracef("Executing: %s", insert)
	if _, err := m.target.ExecContext(ctx, insert); err != nil {
		return database.QueryError(fmt.Sprintf("insert into %s", targetTable), err)
	}

	log.Infof("Copied %d rows into %s", len(rows), targetTable)
	return nil
}

func (m *PostgresDataMigrator) readRows(ctx context.Context, table string, columns []schema.DataColumn) ([][]sql.NullString, error) {
	selects := make([]string, len(columns))
	for i, col := range columns {
		selects[i] = pq.QuoteIdentifier(col.Name) + "::text"
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selects, ", "), rewrite.Qualified(m.sourceSchema, table))

	result, err := m.source.QueryContext(ctx, query)
	if err != nil {
		return nil, database.QueryError(fmt.Sprintf("select from %s.%s", m.sourceSchema, table), err)
	}
	defer result.Close()

	var bar *progress.Bar
	if m.showProgress {
		bar = progress.NewBar("read", table)
	}
	defer bar.Finish()

	var rows [][]sql.NullString
	for result.Next() {
		values := make([]sql.NullString, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := result.Scan(ptrs...); err != nil {
			return nil, database.QueryError(fmt.Sprintf("read row of %s", table), err)
		}

		fillMissingIDs(columns, values, len(rows))
		rows = append(rows, values)
		bar.Increment()
	}
	if err := result.Err(); err != nil {
		return nil, database.QueryError(fmt.Sprintf("read rows of %s", table), err)
	}

	return rows, nil
}

// InsertColumns drops generated columns, and drops id when the target
// assigns it through a default or an identity.
func InsertColumns(columns []schema.DataColumn) []schema.DataColumn {
	var out []schema.DataColumn
	for _, col := range columns {
		if col.IsGenerated {
			continue
		}
		if col.Name == idColumn && (col.HasDefault || col.IsIdentity) {
			continue
		}
		out = append(out, col)
	}
	return out
}

// fillMissingIDs numbers rows with a NULL id from one.
func fillMissingIDs(columns []schema.DataColumn, values []sql.NullString, index int) {
	for i, col := range columns {
		if col.Name == idColumn && !values[i].Valid {
			values[i] = sql.NullString{String: strconv.Itoa(index + 1), Valid: true}
		}
	}
}

// BuildInsert renders one INSERT with a VALUES tuple per row.
func BuildInsert(table string, columns []schema.DataColumn, rows [][]sql.NullString) string {
	names := make([]string, len(columns))
	overriding := false
	for i, col := range columns {
		names[i] = pq.QuoteIdentifier(col.Name)
		overriding = overriding || col.IsIdentity
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s)", table, strings.Join(names, ", "))
	if overriding {
		b.WriteString(" OVERRIDING SYSTEM VALUE")
	}
	b.WriteString(" VALUES ")

	for r, row := range rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for i, value := range row {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(FormatValue(columns[i], value))
		}
		b.WriteByte(')')
	}
	b.WriteByte(';')

	return b.String()
}

// FormatValue renders value as a SQL literal for col.
func FormatValue(col schema.DataColumn, value sql.NullString) string {
	if !value.Valid {
		return "NULL"
	}
	if _, ok := integerTypes[col.DataType]; ok {
		return value.String
	}
	return pq.QuoteLiteral(value.String)
}
