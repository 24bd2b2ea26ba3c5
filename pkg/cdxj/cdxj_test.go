package cdxj_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/cdxj"
)

func TestParseStrict(t *testing.T) {
	t.Parallel()

	rec, err := cdxj.Parse([]byte(`com,example)/ 20230101000000 {"status":"200"}`+"\n"), true)
	require.NoError(t, err)
	assert.Equal(t, "com,example)/", rec.SURT)
	assert.Equal(t, "20230101000000", rec.Timestamp)
	assert.Equal(t, "200", rec.JSON["status"])
}

func TestParseStrictMissingJSON(t *testing.T) {
	t.Parallel()

	_, err := cdxj.Parse([]byte(`com,example)/ 20230101000000`), true)
	require.ErrorIs(t, err, cdxj.ErrMalformedLine)
}

func TestParseLenientMissingJSON(t *testing.T) {
	t.Parallel()

	rec, err := cdxj.Parse([]byte(`com,example)/ 20230101000000`), false)
	require.NoError(t, err)
	assert.Empty(t, rec.JSON)
}

func TestParseStrictNoSeparators(t *testing.T) {
	t.Parallel()

	_, err := cdxj.Parse([]byte(`com,example)/`), true)
	require.ErrorIs(t, err, cdxj.ErrMalformedLine)
}

func TestFormatRoundTrip(t *testing.T) {
	t.Parallel()

	line, err := cdxj.Format("com,example)/", "20230101000000", map[string]any{"status": "200"})
	require.NoError(t, err)

	rec, err := cdxj.Parse([]byte(line), true)
	require.NoError(t, err)
	assert.Equal(t, "com,example)/", rec.SURT)
	assert.Equal(t, "20230101000000", rec.Timestamp)
	assert.Equal(t, "200", rec.JSON["status"])
}

func TestCompareOrdering(t *testing.T) {
	t.Parallel()

	a := []byte("com,a)/ 20230101000000 {}")
	b := []byte("com,a)/ 20230201000000 {}")
	c := []byte("com,b)/ 20230101000000 {}")

	assert.Negative(t, cdxj.Compare(a, b))
	assert.Negative(t, cdxj.Compare(b, c))
	assert.True(t, cdxj.Less(a, b))
}
