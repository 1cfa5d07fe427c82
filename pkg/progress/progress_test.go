package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilBarIsSafe(t *testing.T) {
	var bar *Bar

	assert.NotPanics(t, func() {
		bar.Increment()
		bar.Finish()
	})
}

func TestBarCountsRows(t *testing.T) {
	var out bytes.Buffer
	bar := newBar(&out, "data", "users")

	for i := 0; i < 3; i++ {
		bar.Increment()
	}
	bar.Finish()

	assert.Equal(t, int64(3), bar.rows)
}

func TestDescribeLabelsPhaseAndTable(t *testing.T) {
	assert.Equal(t, "[data] users", describe("data", "users"))
	assert.Equal(t, "[read] app.orders", describe("read", "app.orders"))
}
