package transfer

import (
	"github.com/dustin/go-humanize/english"

	"github.com/kadirbelkuyu/dbclone/pkg/logger"
)

type Failure struct {
	Table string
	Err   error
}

// Report collects per-table outcomes of one phase. A table is in at most
// one of Successes, Skipped and Failures.
type Report struct {
	Phase     string
	Successes []string
	Skipped   []string
	Failures  []Failure
}

func NewReport(phase string) *Report {
	return &Report{Phase: phase}
}

func (r *Report) Success(table string) {
	r.Successes = append(r.Successes, table)
}

func (r *Report) Skip(table string) {
	r.Skipped = append(r.Skipped, table)
}

// Fail records err for table, withdrawing an earlier success.
func (r *Report) Fail(table string, err error) {
	for i, name := range r.Successes {
		if name == table {
			r.Successes = append(r.Successes[:i], r.Successes[i+1:]...)
			break
		}
	}
	r.Failures = append(r.Failures, Failure{Table: table, Err: err})
}

func (r *Report) HasFailures() bool {
	return len(r.Failures) > 0
}

func (r *Report) Log(log *logger.Logger) {
	log.Infof("%s finished: %s migrated, %s skipped, %s failed",
		r.Phase,
		english.Plural(len(r.Successes), "table", ""),
		english.Plural(len(r.Skipped), "table", ""),
		english.Plural(len(r.Failures), "table", ""),
	)

	for _, table := range r.Skipped {
		log.Warnf("%s: skipped table %s", r.Phase, table)
	}

	for _, failure := range r.Failures {
		log.Errorf("%s: table %s failed: %v", r.Phase, failure.Table, failure.Err)
	}
}
