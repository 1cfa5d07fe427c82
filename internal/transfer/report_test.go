package transfer

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportFailWithdrawsSuccess(t *testing.T) {
	report := NewReport("structure")
	report.Success("users")
	report.Success("orders")
	report.Fail("orders", errors.New("boom"))

	assert.Equal(t, []string{"users"}, report.Successes)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "orders", report.Failures[0].Table)
	assert.True(t, report.HasFailures())
}

func TestReportLog(t *testing.T) {
	log, hook := newHookedLogger()

	report := NewReport("structure")
	report.Success("users")
	report.Skip("events_2024")
	report.Skip("events_2024_01")
	report.Fail("orders", errors.New("boom"))
	report.Log(log)

	entries := hook.AllEntries()
	require.Len(t, entries, 4)

	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, "structure finished: 1 table migrated, 2 tables skipped, 1 table failed", entries[0].Message)
	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
	assert.Equal(t, "structure: skipped table events_2024", entries[1].Message)
	assert.Equal(t, logrus.WarnLevel, entries[2].Level)
	assert.Equal(t, logrus.ErrorLevel, entries[3].Level)
	assert.Equal(t, "structure: table orders failed: boom", entries[3].Message)
}
