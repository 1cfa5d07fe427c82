package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kadirbelkuyu/dbclone/internal/database"
)

// MySQLIdent backtick-quotes a MySQL identifier.
func MySQLIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// MySQLTables lists base tables of the connected database.
func MySQLTables(ctx context.Context, db database.Querier) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW FULL TABLES WHERE Table_type = 'BASE TABLE'")
	if err != nil {
		return nil, database.QueryError("show tables", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name, tableType string
		if err := rows.Scan(&name, &tableType); err != nil {
			return nil, database.QueryError("read table name", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, database.QueryError("show tables", err)
	}

	return tables, nil
}

// MySQLCreateTable returns the "Create Table" column of SHOW CREATE TABLE.
func MySQLCreateTable(ctx context.Context, db database.Querier, table string) (string, error) {
	var name, ddl string
	err := db.QueryRowContext(ctx, "SHOW CREATE TABLE "+MySQLIdent(table)).Scan(&name, &ddl)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", database.StructureError("no DDL returned for table %s", table)
		}
		return "", database.QueryError(fmt.Sprintf("show create table %s", table), err)
	}
	if strings.TrimSpace(ddl) == "" {
		return "", database.StructureError("empty DDL returned for table %s", table)
	}
	return ddl, nil
}

// MySQLColumns returns the Field column of SHOW COLUMNS in table order.
func MySQLColumns(ctx context.Context, db database.Querier, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW COLUMNS FROM "+MySQLIdent(table))
	if err != nil {
		return nil, database.QueryError(fmt.Sprintf("show columns from %s", table), err)
	}
	defer rows.Close()

	fields, err := rows.Columns()
	if err != nil {
		return nil, database.QueryError("read column metadata", err)
	}

	var columns []string
	for rows.Next() {
		values := make([]sql.NullString, len(fields))
		ptrs := make([]any, len(fields))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, database.QueryError("read column metadata", err)
		}
		columns = append(columns, values[0].String)
	}
	if err := rows.Err(); err != nil {
		return nil, database.QueryError("read column metadata", err)
	}

	return columns, nil
}
