package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger carries a logrus entry so fields such as the run id follow every
// line written through it.
type Logger struct {
	*logrus.Entry
}

// NewLogger builds a text logger at level (Trace, Debug, Info, Warn or
// Error). Unknown levels fall back to Info.
func NewLogger(level string) *Logger {
	return newLogger(os.Stdout, level)
}

func newLogger(out io.Writer, level string) *Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   true,
	})

	parsed, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)

	return &Logger{Entry: logrus.NewEntry(log)}
}

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	return newLogger(io.Discard, "error")
}

func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}
