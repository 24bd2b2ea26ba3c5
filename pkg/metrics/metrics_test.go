package metrics_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/metrics"
)

func TestRegistryCounters(t *testing.T) {
	t.Parallel()

	reg := metrics.New("cdxt_test")
	reg.LinesProcessed.Add(3)
	reg.LinesDropped.Add(1)
	reg.ChunksWritten.Add(2)
	reg.ShardsWritten.Add(1)
	reg.Errors.Add(1)

	var buf bytes.Buffer
	require.NoError(t, reg.DumpText(&buf))

	out := buf.String()
	assert.Contains(t, out, "cdxt_test_lines_processed_total 3")
	assert.Contains(t, out, "cdxt_test_lines_dropped_total 1")
	assert.Contains(t, out, "cdxt_test_chunks_written_total 2")
	assert.Contains(t, out, "cdxt_test_shards_written_total 1")
	assert.Contains(t, out, "cdxt_test_errors_total 1")
	assert.Equal(t, 5, strings.Count(out, "\n"))
}

func TestRegistryZeroValue(t *testing.T) {
	t.Parallel()

	reg := metrics.New("cdxt_test_zero")

	var buf bytes.Buffer
	require.NoError(t, reg.DumpText(&buf))

	assert.Contains(t, buf.String(), "cdxt_test_zero_errors_total 0")
}
