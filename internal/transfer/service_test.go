package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/dbclone/internal/config"
	"github.com/kadirbelkuyu/dbclone/internal/database"
	"github.com/kadirbelkuyu/dbclone/pkg/logger"
)

func testConfig(category string) *config.Config {
	return &config.Config{
		Source: config.DatabaseConfig{Host: "src", Port: 5432, Database: "appdb", Schema: "app"},
		Target: config.DatabaseConfig{Host: "dst", Port: 5432, Database: "appdb", Schema: "app_clone"},
		Tables: config.TablesConfig{DataSource: []string{"users"}},
		Technology: config.TechnologyConfig{
			Category:      category,
			CopyStructure: true,
			CopyData:      true,
		},
	}
}

func newTestService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()

	source := &database.Connection{Config: cfg.Source}
	target := &database.Connection{Config: cfg.Target}
	service, err := NewService(cfg, source, target, Options{Logger: logger.Discard()})
	require.NoError(t, err)
	return service
}

func TestNewServiceSelectsMigrators(t *testing.T) {
	service := newTestService(t, testConfig(config.CategoryPostgres))
	assert.IsType(t, &PostgresStructureMigrator{}, service.structure)
	assert.IsType(t, &PostgresDataMigrator{}, service.data)

	cfg := testConfig(config.CategoryPostgres)
	cfg.Technology.UsePgDump = true
	service = newTestService(t, cfg)
	assert.IsType(t, &DumpStructureMigrator{}, service.structure)
	assert.IsType(t, &DumpDataMigrator{}, service.data)

	service = newTestService(t, testConfig(config.CategoryMySQL))
	assert.IsType(t, &MySQLStructureMigrator{}, service.structure)
	assert.IsType(t, &MySQLDataMigrator{}, service.data)
}

func TestNewServiceTakesSchemasFromConnections(t *testing.T) {
	service := newTestService(t, testConfig(config.CategoryPostgres))

	structure := service.structure.(*PostgresStructureMigrator)
	assert.Equal(t, "app", structure.sourceSchema)
	assert.Equal(t, "app_clone", structure.rewriter.Target())

	data := service.data.(*PostgresDataMigrator)
	assert.Equal(t, "app", data.sourceSchema)
	assert.Equal(t, "app_clone", data.targetSchema)
}

func TestNewServiceHonoursCopyFlags(t *testing.T) {
	cfg := testConfig(config.CategoryPostgres)
	cfg.Technology.CopyStructure = false

	service := newTestService(t, cfg)
	assert.Nil(t, service.structure)
	assert.NotNil(t, service.data)
}

func TestNewServiceRejectsUnknownCategory(t *testing.T) {
	conn := &database.Connection{}
	_, err := NewService(testConfig("oracle"), conn, conn, Options{Logger: logger.Discard()})
	require.Error(t, err)
}

type fakeMigrator struct {
	report *Report
	err    error
	calls  int
}

func (f *fakeMigrator) Migrate(context.Context) (*Report, error) {
	f.calls++
	return f.report, f.err
}

func (f *fakeMigrator) IsPrivateTable(string) bool { return false }

func (f *fakeMigrator) SkipTable(string) bool { return false }

func TestServiceExecuteRunsPhasesInOrder(t *testing.T) {
	structure := &fakeMigrator{report: NewReport("structure")}
	data := &fakeMigrator{report: NewReport("data")}
	data.report.Fail("users", errors.New("boom"))

	service := &Service{structure: structure, data: data, logger: logger.Discard()}
	reports, err := service.Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, reports, 2)
	assert.Equal(t, "structure", reports[0].Phase)
	assert.Equal(t, "data", reports[1].Phase)
	assert.True(t, reports[1].HasFailures())
}

func TestServiceExecuteStopsOnPhaseError(t *testing.T) {
	structure := &fakeMigrator{report: NewReport("structure"), err: database.CommandError("pg_dump", errors.New("exit status 1"))}
	data := &fakeMigrator{report: NewReport("data")}

	service := &Service{structure: structure, data: data, logger: logger.Discard()}
	reports, err := service.Execute(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrCommandExecution)
	assert.Len(t, reports, 1)
	assert.Zero(t, data.calls)
}

func TestServiceExecuteWithNothingEnabled(t *testing.T) {
	service := &Service{logger: logger.Discard()}
	reports, err := service.Execute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reports)
}
