package transfer

import (
	"context"
	"regexp"
)

// StructureMigrator recreates the source schema in the target.
type StructureMigrator interface {
	Migrate(ctx context.Context) (*Report, error)
	IsPrivateTable(name string) bool
	SkipTable(name string) bool
}

// DataMigrator copies rows of the configured tables.
type DataMigrator interface {
	Migrate(ctx context.Context) (*Report, error)
}

var (
	// defaultSkipPattern matches dated or numbered copies such as
	// orders_2023, orders_2023_01 and orders_2023_01_backup.
	defaultSkipPattern = regexp.MustCompile(`^\w+_\d+(_\d+)?(_\w+)?$`)
	// stagingPattern is the narrower PostgreSQL variant.
	stagingPattern = regexp.MustCompile(`^\w+_\d+(_\d+)?$`)
)

// mysqlPrivateTables are Rails bookkeeping tables left untouched in the target.
var mysqlPrivateTables = []string{"schema_migrations", "ar_internal_metadata"}

type skipRules struct {
	private     map[string]struct{}
	configured  map[string]struct{}
	pattern     *regexp.Regexp
	literals    map[string]struct{}
	copyStaging bool
}

func newSkipRules(private, configured []string, pattern *regexp.Regexp, literals []string, copyStaging bool) skipRules {
	return skipRules{
		private:     toSet(private),
		configured:  toSet(configured),
		pattern:     pattern,
		literals:    toSet(literals),
		copyStaging: copyStaging,
	}
}

func postgresSkipRules(configured []string, copyStaging bool) skipRules {
	return newSkipRules(nil, configured, stagingPattern, []string{"test_tab"}, copyStaging)
}

func mysqlSkipRules(configured []string, copyStaging bool) skipRules {
	return newSkipRules(mysqlPrivateTables, configured, defaultSkipPattern, nil, copyStaging)
}

func (r skipRules) IsPrivateTable(name string) bool {
	_, ok := r.private[name]
	return ok
}

// SkipTable applies the configured list first, then the staging rules
// unless copy_staging_tables is set.
func (r skipRules) SkipTable(name string) bool {
	if _, ok := r.configured[name]; ok {
		return true
	}
	if r.copyStaging {
		return false
	}
	if _, ok := r.literals[name]; ok {
		return true
	}
	return r.pattern != nil && r.pattern.MatchString(name)
}

func (r skipRules) excluded(name string) bool {
	return r.IsPrivateTable(name) || r.SkipTable(name)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
