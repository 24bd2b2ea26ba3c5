package blocklist_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/blocklist"
)

func testCtx() context.Context {
	return zerolog.New(io.Discard).WithContext(context.Background())
}

func TestBlocklistDropsSpamPrefix(t *testing.T) {
	t.Parallel()

	ctx := testCtx()

	f, err := blocklist.LoadPatterns(ctx, strings.NewReader("^pt,spam,\n# a comment\n\n"))
	require.NoError(t, err)

	input := strings.NewReader(
		"pt,good)/ 20240101000000 {\"s\":200}\n" +
			"pt,spam,www)/ 20240101000000 {\"s\":200}\n" +
			"pt,zoo)/ 20240101000000 {\"s\":200}\n")

	var out bytes.Buffer

	stats, err := f.Apply(ctx, input, &out)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Kept)
	assert.EqualValues(t, 1, stats.Dropped)

	want := "pt,good)/ 20240101000000 {\"s\":200}\n" +
		"pt,zoo)/ 20240101000000 {\"s\":200}\n"
	assert.Equal(t, want, out.String())
}

func TestBlocklistSkipsBadPatternWithWarning(t *testing.T) {
	t.Parallel()

	ctx := testCtx()

	f, err := blocklist.LoadPatterns(ctx, strings.NewReader("(unclosed\n^ok,\n"))
	require.NoError(t, err)

	assert.True(t, f.Matches([]byte("ok,example)/ 1 {}")))
}

func TestBlocklistEmptyIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := testCtx()

	f, err := blocklist.LoadPatterns(ctx, strings.NewReader("\n# only comments\n"))
	require.NoError(t, err)

	input := strings.NewReader("com,a)/ 1 {}\n")

	var out bytes.Buffer

	stats, err := f.Apply(ctx, input, &out)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Kept)
	assert.Equal(t, "com,a)/ 1 {}\n", out.String())
}

func TestBlocklistIdempotent(t *testing.T) {
	t.Parallel()

	ctx := testCtx()

	f, err := blocklist.LoadPatterns(ctx, strings.NewReader("^pt,spam,\n"))
	require.NoError(t, err)

	input := "pt,good)/ 1 {}\npt,spam,x)/ 1 {}\n"

	var once bytes.Buffer

	_, err = f.Apply(ctx, strings.NewReader(input), &once)
	require.NoError(t, err)

	var twice bytes.Buffer

	_, err = f.Apply(ctx, strings.NewReader(once.String()), &twice)
	require.NoError(t, err)

	assert.Equal(t, once.String(), twice.String())
}
