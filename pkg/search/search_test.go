package search_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/search"
	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/zipnum"
)

func writeFlat(t *testing.T, lines []string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "data.cdxj")

	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "")), 0o644))

	return path
}

func sampleLines() []string {
	return []string{
		"com,a)/ 20200101000000 {\"status\":\"200\"}\n",
		"com,a)/ 20210101000000 {\"status\":\"404\"}\n",
		"com,a)/x 20200101000000 {\"status\":\"200\"}\n",
		"com,b)/ 20200101000000 {\"status\":\"200\"}\n",
		"com,c)/ 20200101000000 {\"status\":\"200\"}\n",
	}
}

func TestFlatFileExactMatch(t *testing.T) {
	t.Parallel()

	path := writeFlat(t, sampleLines())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []string

	err = search.FlatFile(context.Background(), f, search.Query{SearchKey: "com,a)/"}, func(line []byte) error {
		got = append(got, string(line))

		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFlatFilePrefixMatch(t *testing.T) {
	t.Parallel()

	path := writeFlat(t, sampleLines())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []string

	err = search.FlatFile(context.Background(), f, search.Query{SearchKey: "com,a)", PrefixMatch: true}, func(line []byte) error {
		got = append(got, string(line))

		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestFlatFileNoMatch(t *testing.T) {
	t.Parallel()

	path := writeFlat(t, sampleLines())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []string

	err = search.FlatFile(context.Background(), f, search.Query{SearchKey: "com,zzz)/"}, func(line []byte) error {
		got = append(got, string(line))

		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestZipNumSearchMatchesFlatResults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := filepath.Join(dir, "demo")

	lines := sampleLines()

	_, err := zipnum.Encode(context.Background(), strings.NewReader(strings.Join(lines, "")), zipnum.EncodeConfig{
		BaseName:   base,
		ChunkLines: 2,
	})
	require.NoError(t, err)

	var got []string

	err = search.ZipNumSearch(context.Background(), base+".idx", search.Query{SearchKey: "com,a)", PrefixMatch: true}, nil, func(line []byte) error {
		got = append(got, string(line))

		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestTimestampRangeContains(t *testing.T) {
	t.Parallel()

	r := search.TimestampRange{From: "2020", To: "2020"}
	assert.True(t, r.Contains("20200615120000"))
	assert.False(t, r.Contains("20210101000000"))
}

func TestPredicateEquals(t *testing.T) {
	t.Parallel()

	p, err := search.CompilePredicate("status=200")
	require.NoError(t, err)
	assert.True(t, p.Match(map[string]any{"status": "200"}))
	assert.False(t, p.Match(map[string]any{"status": "404"}))
}

func TestPredicateNotEquals(t *testing.T) {
	t.Parallel()

	p, err := search.CompilePredicate("status!=200")
	require.NoError(t, err)
	assert.False(t, p.Match(map[string]any{"status": "200"}))
}

func TestPredicateMissingFieldIsEmptyString(t *testing.T) {
	t.Parallel()

	p, err := search.CompilePredicate("mime=")
	require.NoError(t, err)
	assert.True(t, p.Match(map[string]any{}))
}

func TestApplyRunsFilterSortDedupeLimit(t *testing.T) {
	t.Parallel()

	lines := [][]byte{
		[]byte("com,a)/ 1 {\"status\":\"200\"}\n"),
		[]byte("com,a)/ 1 {\"status\":\"200\"}\n"),
		[]byte("com,b)/ 1 {\"status\":\"404\"}\n"),
	}

	pred, err := search.CompilePredicate("status=200")
	require.NoError(t, err)

	out, err := search.Apply(lines, search.PostOps{
		Preds:  []search.Predicate{pred},
		Sort:   true,
		Dedupe: true,
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, string(out[0]), "com,a)/")
}

func TestRunStreamsWhenNoPostOps(t *testing.T) {
	t.Parallel()

	path := writeFlat(t, sampleLines())

	var got [][]byte

	n, err := search.Run(context.Background(), search.Target{FlatPath: path}, search.Query{SearchKey: "com,a)/"}, search.PostOps{}, func(line []byte) error {
		got = append(got, line)

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, got, 2)
}
