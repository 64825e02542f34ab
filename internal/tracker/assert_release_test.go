//go:build !debug

package tracker

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Not parallel: swaps the package log writers.
func TestOutOfRangeAssignmentIsSkipped(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	p := newTestProcessor(t)
	cycle(p, batchAt(t0, carAt(0, 0)))
	require.Equal(t, 1, p.Len())

	b := batchAt(t0.Add(100*time.Millisecond), carAt(0, 0))
	p.Update(b, ego, []int{0, 0})
	p.Update(b, ego, []int{5})
	assert.Equal(t, 0, p.Spawn(b, ego, nil))

	tr := p.Tracks()[0]
	assert.Equal(t, 1, tr.UpdateCount)
	assert.Equal(t, 0, tr.MissCount)
	assert.Equal(t, 1, p.Len())
	assert.Contains(t, ops.String(), "invariant violated")
}
