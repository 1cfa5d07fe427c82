package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

var (
	// ErrConnection is terminal for the run.
	ErrConnection = errors.New("connection error")
	// ErrQueryExecution is terminal for the current table.
	ErrQueryExecution = errors.New("query execution error")
	// ErrTableStructure means the catalog returned nothing where DDL was required.
	ErrTableStructure = errors.New("table structure error")
	// ErrCommandExecution covers pg_dump and psql subprocess failures.
	ErrCommandExecution = errors.New("command execution error")
)

// PostgreSQL SQLSTATE codes that report an object collision.
var duplicateCodes = map[string]struct{}{
	"42P07": {}, // duplicate_table
	"42710": {}, // duplicate_object
	"42P06": {}, // duplicate_schema
	"42723": {}, // duplicate_function
	"42P16": {}, // invalid_table_definition, raised for a second primary key
}

// MySQL error numbers for the same situation.
var duplicateNumbers = map[uint16]struct{}{
	1050: {}, // ER_TABLE_EXISTS_ERROR
	1061: {}, // ER_DUP_KEYNAME
	1826: {}, // ER_FK_DUP_NAME
}

// IsAlreadyExists reports whether err means the object being created is
// already present. Driver error codes are checked before the message text.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code) == "42P16" {
			return strings.Contains(pqErr.Message, "multiple primary keys")
		}
		_, ok := duplicateCodes[string(pqErr.Code)]
		return ok
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "42P16" {
			return strings.Contains(pgErr.Message, "multiple primary keys")
		}
		_, ok := duplicateCodes[pgErr.Code]
		return ok
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		_, ok := duplicateNumbers[myErr.Number]
		return ok
	}

	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// QueryError wraps a failed statement with ErrQueryExecution.
func QueryError(action string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrQueryExecution, action, err)
}

func StructureError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTableStructure, fmt.Sprintf(format, args...))
}

func CommandError(command string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCommandExecution, command, err)
}
