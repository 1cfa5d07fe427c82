package transfer

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/kadirbelkuyu/dbclone/internal/pgdump"
	"github.com/kadirbelkuyu/dbclone/internal/schema"
	"github.com/kadirbelkuyu/dbclone/pkg/logger"
)

type fakeExecutor struct {
	statements []string
	failOn     map[string]error
}

func (f *fakeExecutor) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	f.statements = append(f.statements, query)
	for fragment, err := range f.failOn {
		if strings.Contains(query, fragment) {
			return nil, err
		}
	}
	return driver.RowsAffected(0), nil
}

func (f *fakeExecutor) indexOf(fragment string) int {
	for i, stmt := range f.statements {
		if strings.Contains(stmt, fragment) {
			return i
		}
	}
	return -1
}

type fakeCatalog struct {
	enums       []schema.EnumInfo
	tables      []schema.TableInfo
	sequences   map[string][]schema.SequenceRef
	sequenceDDL map[string]string
	tableDDL    map[string]string
	tableErr    map[string]error
	partitions  map[string][]string
	indexes     map[string][]string
	constraints map[string][]schema.ConstraintDDL
	dataColumns map[string][]schema.DataColumn
}

func (f *fakeCatalog) ListEnums(context.Context) ([]schema.EnumInfo, error) {
	return f.enums, nil
}

func (f *fakeCatalog) ListTables(context.Context) ([]schema.TableInfo, error) {
	return f.tables, nil
}

func (f *fakeCatalog) TableSequences(_ context.Context, _, table string) ([]schema.SequenceRef, error) {
	return f.sequences[table], nil
}

func (f *fakeCatalog) SequenceDDL(_ context.Context, ref schema.SequenceRef) (string, error) {
	return f.sequenceDDL[ref.Name], nil
}

func (f *fakeCatalog) TableDDL(_ context.Context, table schema.TableInfo) (string, error) {
	if err := f.tableErr[table.Name]; err != nil {
		return "", err
	}
	return f.tableDDL[table.Name], nil
}

func (f *fakeCatalog) PartitionDDL(_ context.Context, _, table string) ([]string, error) {
	return f.partitions[table], nil
}

func (f *fakeCatalog) IndexDDL(_ context.Context, _, table string) ([]string, error) {
	return f.indexes[table], nil
}

func (f *fakeCatalog) ConstraintDDL(_ context.Context, _, table string) ([]schema.ConstraintDDL, error) {
	return f.constraints[table], nil
}

func (f *fakeCatalog) DataColumns(_ context.Context, _, table string) ([]schema.DataColumn, error) {
	return f.dataColumns[table], nil
}

type fakeChecker struct {
	existing map[string]bool
}

func (f fakeChecker) SequenceExists(_ context.Context, schemaName, name string) (bool, error) {
	return f.existing[schemaName+"."+name], nil
}

type fakeRunner struct {
	calls []pgdump.Options
	err   error
}

func (f *fakeRunner) Run(_ context.Context, options pgdump.Options) error {
	f.calls = append(f.calls, options)
	return f.err
}

func newHookedLogger() (*logger.Logger, *test.Hook) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.TraceLevel)
	hook := test.NewLocal(log)
	return &logger.Logger{Entry: logrus.NewEntry(log)}, hook
}
