package addfield_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/addfield"
)

func testCtx() context.Context {
	return zerolog.New(io.Discard).WithContext(context.Background())
}

func TestApplyConstants(t *testing.T) {
	t.Parallel()

	input := strings.NewReader("com,a)/ 20230101000000 {\"status\":\"200\"}\n")

	var out bytes.Buffer

	stats, err := addfield.Apply(testCtx(), input, &out, addfield.Config{
		Constants: map[string]string{"collection": "demo"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Transformed)
	assert.Contains(t, out.String(), `"collection":"demo"`)
}

func TestApplyConfigErrorBothSet(t *testing.T) {
	t.Parallel()

	_, err := addfield.Apply(testCtx(), strings.NewReader(""), io.Discard, addfield.Config{
		Constants:     map[string]string{"a": "b"},
		TransformName: "strip-query",
	})
	require.ErrorIs(t, err, addfield.ErrConfig)
}

func TestApplyConfigErrorNeitherSet(t *testing.T) {
	t.Parallel()

	_, err := addfield.Apply(testCtx(), strings.NewReader(""), io.Discard, addfield.Config{})
	require.ErrorIs(t, err, addfield.ErrConfig)
}

func TestApplyRegisteredTransform(t *testing.T) {
	t.Parallel()

	input := strings.NewReader("com,a)/ 20230101000000 {\"url\":\"http://a.com/x?y=1\"}\n")

	var out bytes.Buffer

	_, err := addfield.Apply(testCtx(), input, &out, addfield.Config{TransformName: "strip-query"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"url":"http://a.com/x"`)
}

func TestApplyIdempotentConstants(t *testing.T) {
	t.Parallel()

	cfg := addfield.Config{Constants: map[string]string{"collection": "demo"}}
	input := "com,a)/ 1 {\"status\":\"200\"}\n"

	var once bytes.Buffer
	_, err := addfield.Apply(testCtx(), strings.NewReader(input), &once, cfg)
	require.NoError(t, err)

	var twice bytes.Buffer
	_, err = addfield.Apply(testCtx(), strings.NewReader(once.String()), &twice, cfg)
	require.NoError(t, err)

	assert.Equal(t, once.String(), twice.String())
}

func TestApplyLenientSkipsMalformed(t *testing.T) {
	t.Parallel()

	input := strings.NewReader("not-a-valid-line\ncom,a)/ 1 {}\n")

	var out bytes.Buffer

	stats, err := addfield.Apply(testCtx(), input, &out, addfield.Config{Constants: map[string]string{"a": "b"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Skipped)
	assert.EqualValues(t, 1, stats.Transformed)
}
