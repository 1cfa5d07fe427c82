package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := map[string]logrus.Level{
		"Trace":   logrus.TraceLevel,
		"Debug":   logrus.DebugLevel,
		"Info":    logrus.InfoLevel,
		"Warn":    logrus.WarnLevel,
		"Error":   logrus.ErrorLevel,
		"verbose": logrus.InfoLevel,
	}

	for level, want := range cases {
		log := newLogger(&bytes.Buffer{}, level)
		assert.Equal(t, want, log.Entry.Logger.GetLevel(), level)
	}
}

func TestWithFieldKeepsFields(t *testing.T) {
	var out bytes.Buffer
	log := newLogger(&out, "Info").WithField("run_id", "abc").WithField("table", "users")

	log.Info("cloned")

	assert.Contains(t, out.String(), "run_id=abc")
	assert.Contains(t, out.String(), "table=users")
	assert.Contains(t, out.String(), "cloned")
}
