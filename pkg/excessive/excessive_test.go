package excessive_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/excessive"
)

func testCtx() context.Context {
	return zerolog.New(io.Discard).WithContext(context.Background())
}

func TestFindThresholdTwo(t *testing.T) {
	t.Parallel()

	ctx := testCtx()

	var input strings.Builder
	for i := 0; i < 5; i++ {
		input.WriteString("pt,trap)/loop 20240101000000 {}\n")
	}
	input.WriteString("pt,ok)/ 20240101000000 {}\n")

	var out bytes.Buffer

	entries, err := excessive.Find(ctx, strings.NewReader(input.String()), &out, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pt,trap)/loop", entries[0].Key)
	assert.EqualValues(t, 5, entries[0].Count)

	want := "pt,trap)/loop\t5\n# Found 1 URLs with > 2 occurrences\n"
	assert.Equal(t, want, out.String())
}

func TestRemoveDropsListedKeys(t *testing.T) {
	t.Parallel()

	ctx := testCtx()

	keys, err := excessive.LoadKeySet(strings.NewReader("pt,trap)/loop\t5\n# comment\n"))
	require.NoError(t, err)

	input := "pt,trap)/loop 1 {}\npt,ok)/ 1 {}\n"

	var out bytes.Buffer

	stats, err := excessive.Remove(ctx, strings.NewReader(input), &out, keys)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Kept)
	assert.EqualValues(t, 1, stats.Dropped)
	assert.Equal(t, "pt,ok)/ 1 {}\n", out.String())
}

func TestAutoModeRejectsStdin(t *testing.T) {
	t.Parallel()

	_, err := excessive.Auto(testCtx(), "-", io.Discard, excessive.DefaultThreshold)
	require.ErrorIs(t, err, excessive.ErrStdinRequiresTwoPasses)
}

func TestAutoModeTwoPass(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "in.cdxj")

	var input strings.Builder
	for i := 0; i < 3; i++ {
		input.WriteString("pt,trap)/loop 1 {}\n")
	}
	input.WriteString("pt,ok)/ 1 {}\n")

	require.NoError(t, os.WriteFile(path, []byte(input.String()), 0o644))

	var out bytes.Buffer

	stats, err := excessive.Auto(testCtx(), path, &out, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Kept)
	assert.EqualValues(t, 3, stats.Dropped)
	assert.Equal(t, "pt,ok)/ 1 {}\n", out.String())
}
