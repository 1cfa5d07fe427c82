package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/dbclone/internal/database"
	"github.com/kadirbelkuyu/dbclone/internal/schema"
	"github.com/kadirbelkuyu/dbclone/pkg/logger"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var noRows = sqlmock.NewResult(0, 0)

func failedTables(report *Report) []string {
	var tables []string
	for _, failure := range report.Failures {
		tables = append(tables, failure.Table)
	}
	return tables
}

func TestPostgresDataMigratorCopiesEachTable(t *testing.T) {
	source, mock := newMockDB(t)
	catalog := &fakeCatalog{dataColumns: map[string][]schema.DataColumn{
		"users":  {{Name: "id", DataType: "bigint", HasDefault: true}, {Name: "email", DataType: "text"}},
		"broken": {{Name: "note", DataType: "text"}},
		"drafts": {{Name: "id", DataType: "integer"}, {Name: "body", DataType: "text"}},
	}}

	mock.ExpectQuery(`SELECT "email"::text FROM app.users`).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("a'b").AddRow("c").AddRow(nil))
	mock.ExpectQuery(`SELECT "note"::text FROM app.broken`).
		WillReturnError(errors.New("permission denied for table broken"))
	mock.ExpectQuery(`SELECT "id"::text, "body"::text FROM app.drafts`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}))

	target := &fakeExecutor{}
	m := NewPostgresDataMigrator(catalog, source, target, "app", "app_clone",
		[]string{"users", "broken", "drafts"}, false, logger.Discard())

	report, err := m.Migrate(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"users", "drafts"}, report.Successes)
	assert.Equal(t, []string{"broken"}, failedTables(report))
	assert.ErrorIs(t, report.Failures[0].Err, database.ErrQueryExecution)

	assert.Equal(t, []string{
		"TRUNCATE TABLE app_clone.users RESTART IDENTITY CASCADE",
		`INSERT INTO app_clone.users ("email") VALUES ('a''b'), ('c'), (NULL);`,
		"TRUNCATE TABLE app_clone.broken RESTART IDENTITY CASCADE",
		"TRUNCATE TABLE app_clone.drafts RESTART IDENTITY CASCADE",
	}, target.statements)
}

func TestPostgresDataMigratorSkipsReadWhenTruncateFails(t *testing.T) {
	source, mock := newMockDB(t)
	catalog := &fakeCatalog{dataColumns: map[string][]schema.DataColumn{
		"users":  {{Name: "email", DataType: "text"}},
		"drafts": {{Name: "body", DataType: "text"}},
	}}
	mock.ExpectQuery(`SELECT "body"::text FROM app.drafts`).
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow("x"))

	target := &fakeExecutor{failOn: map[string]error{
		"TRUNCATE TABLE app_clone.users": errors.New(`relation "app_clone.users" does not exist`),
	}}
	m := NewPostgresDataMigrator(catalog, source, target, "app", "app_clone",
		[]string{"users", "drafts"}, false, logger.Discard())

	report, err := m.Migrate(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"users"}, failedTables(report))
	assert.Equal(t, []string{"drafts"}, report.Successes)
	assert.Equal(t, -1, target.indexOf("INSERT INTO app_clone.users"))
	assert.Greater(t, target.indexOf(`INSERT INTO app_clone.drafts ("body") VALUES ('x');`), target.indexOf("TRUNCATE TABLE app_clone.drafts"))
}

func TestPostgresDataMigratorStopsOnCancelledContext(t *testing.T) {
	source, mock := newMockDB(t)
	target := &fakeExecutor{}
	m := NewPostgresDataMigrator(&fakeCatalog{}, source, target, "app", "app_clone",
		[]string{"users"}, false, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Migrate(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, target.statements)
	require.NoError(t, mock.ExpectationsWereMet())
}

func showTables(names ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"Tables_in_appdb", "Table_type"})
	for _, name := range names {
		rows.AddRow(name, "BASE TABLE")
	}
	return rows
}

func showColumns(names ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"})
	for _, name := range names {
		rows.AddRow(name, "varchar(255)", "YES", "", nil, "")
	}
	return rows
}

const usersCreateTable = "CREATE TABLE `users` (\n  `id` int NOT NULL AUTO_INCREMENT,\n  `email` varchar(255) DEFAULT NULL,\n  PRIMARY KEY (`id`)\n) ENGINE=InnoDB"

func TestMySQLStructureMigratorRecreatesTablesWithChecksOff(t *testing.T) {
	source, sourceMock := newMockDB(t)
	target, targetMock := newMockDB(t)

	targetMock.ExpectExec("SET FOREIGN_KEY_CHECKS = 0").WillReturnResult(noRows)
	targetMock.ExpectQuery("SHOW FULL TABLES WHERE Table_type = 'BASE TABLE'").
		WillReturnRows(showTables("users", "schema_migrations"))
	targetMock.ExpectExec("DROP TABLE IF EXISTS `users`").WillReturnResult(noRows)
	targetMock.ExpectExec(usersCreateTable).WillReturnResult(noRows)
	targetMock.ExpectExec("SET FOREIGN_KEY_CHECKS = 1").WillReturnResult(noRows)

	sourceMock.ExpectQuery("SHOW FULL TABLES WHERE Table_type = 'BASE TABLE'").
		WillReturnRows(showTables("users", "orders_2023_01", "schema_migrations", "broken"))
	sourceMock.ExpectQuery("SHOW CREATE TABLE `users`").
		WillReturnRows(sqlmock.NewRows([]string{"Table", "Create Table"}).AddRow("users", usersCreateTable))
	sourceMock.ExpectQuery("SHOW CREATE TABLE `broken`").
		WillReturnError(errors.New("Table 'appdb.broken' doesn't exist"))

	m := NewMySQLStructureMigrator(source, &database.Connection{DB: target}, nil, false, logger.Discard())
	report, err := m.Migrate(context.Background())
	require.NoError(t, err)

	require.NoError(t, sourceMock.ExpectationsWereMet())
	require.NoError(t, targetMock.ExpectationsWereMet())

	assert.Equal(t, []string{"users"}, report.Successes)
	assert.Equal(t, []string{"orders_2023_01", "schema_migrations"}, report.Skipped)
	assert.Equal(t, []string{"broken"}, failedTables(report))
}

func TestMySQLStructureMigratorRestoresChecksWhenDropFails(t *testing.T) {
	source, sourceMock := newMockDB(t)
	target, targetMock := newMockDB(t)

	targetMock.ExpectExec("SET FOREIGN_KEY_CHECKS = 0").WillReturnResult(noRows)
	targetMock.ExpectQuery("SHOW FULL TABLES WHERE Table_type = 'BASE TABLE'").
		WillReturnRows(showTables("users"))
	targetMock.ExpectExec("DROP TABLE IF EXISTS `users`").WillReturnError(errors.New("lock wait timeout exceeded"))
	targetMock.ExpectExec("SET FOREIGN_KEY_CHECKS = 1").WillReturnResult(noRows)

	m := NewMySQLStructureMigrator(source, &database.Connection{DB: target}, nil, false, logger.Discard())
	_, err := m.Migrate(context.Background())
	require.ErrorIs(t, err, database.ErrQueryExecution)

	require.NoError(t, sourceMock.ExpectationsWereMet())
	require.NoError(t, targetMock.ExpectationsWereMet())
}

func TestMySQLDataMigratorCopiesRowsWithChecksOff(t *testing.T) {
	source, sourceMock := newMockDB(t)
	target, targetMock := newMockDB(t)

	targetMock.ExpectExec("SET FOREIGN_KEY_CHECKS = 0").WillReturnResult(noRows)
	targetMock.ExpectExec("TRUNCATE TABLE `users`").WillReturnResult(noRows)
	targetMock.ExpectExec("INSERT INTO `users` (`id`, `email`) VALUES ('1', 'a\\'b')").WillReturnResult(noRows)
	targetMock.ExpectExec("INSERT INTO `users` (`id`, `email`) VALUES ('2', NULL)").WillReturnResult(noRows)
	targetMock.ExpectExec("TRUNCATE TABLE `broken`").WillReturnError(errors.New("Table 'appdb.broken' doesn't exist"))
	targetMock.ExpectExec("TRUNCATE TABLE `drafts`").WillReturnResult(noRows)
	targetMock.ExpectExec("SET FOREIGN_KEY_CHECKS = 1").WillReturnResult(noRows)

	sourceMock.ExpectQuery("SHOW COLUMNS FROM `users`").WillReturnRows(showColumns("id", "email"))
	sourceMock.ExpectQuery("SELECT * FROM `users`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow("1", "a'b").AddRow("2", nil))
	sourceMock.ExpectQuery("SHOW COLUMNS FROM `drafts`").WillReturnRows(showColumns("body"))
	sourceMock.ExpectQuery("SELECT * FROM `drafts`").WillReturnRows(sqlmock.NewRows([]string{"body"}))

	m := NewMySQLDataMigrator(source, &database.Connection{DB: target},
		[]string{"users", "broken", "drafts"}, false, logger.Discard())
	report, err := m.Migrate(context.Background())
	require.NoError(t, err)

	require.NoError(t, sourceMock.ExpectationsWereMet())
	require.NoError(t, targetMock.ExpectationsWereMet())

	assert.Equal(t, []string{"users", "drafts"}, report.Successes)
	assert.Equal(t, []string{"broken"}, failedTables(report))
}

type unavailableTarget struct{}

func (unavailableTarget) Session(context.Context) (database.Session, error) {
	return nil, fmt.Errorf("%w: too many connections", database.ErrConnection)
}

func TestMySQLMigratorsNeedATargetSession(t *testing.T) {
	source, _ := newMockDB(t)

	_, err := NewMySQLStructureMigrator(source, unavailableTarget{}, nil, false, logger.Discard()).Migrate(context.Background())
	assert.ErrorIs(t, err, database.ErrConnection)

	_, err = NewMySQLDataMigrator(source, unavailableTarget{}, []string{"users"}, false, logger.Discard()).Migrate(context.Background())
	assert.ErrorIs(t, err, database.ErrConnection)
}
