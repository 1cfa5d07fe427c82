package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar is a spinner counting the rows of one table in one phase. The total is
// never known up front. A nil *Bar is valid and does nothing.
type Bar struct {
	bar  *progressbar.ProgressBar
	rows int64
}

// NewBar writes to stderr so it never mixes with piped log output.
func NewBar(phase, table string) *Bar {
	return newBar(os.Stderr, phase, table)
}

func newBar(w io.Writer, phase, table string) *Bar {
	return &Bar{
		bar: progressbar.NewOptions64(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(describe(phase, table)),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("rows"),
			progressbar.OptionShowIts(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		),
	}
}

// describe is the label shown in front of the spinner, e.g. "[data] users".
func describe(phase, table string) string {
	return fmt.Sprintf("[%s] %s", phase, table)
}

func (b *Bar) Increment() {
	if b == nil {
		return
	}
	b.rows++
	_ = b.bar.Add(1)
}

func (b *Bar) Finish() {
	if b == nil {
		return
	}
	_ = b.bar.Finish()
}
