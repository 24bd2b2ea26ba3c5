package merge_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/merge"
)

func TestMergeTwoStreams(t *testing.T) {
	t.Parallel()

	a := strings.NewReader(
		"com,a)/ 20230101000000 {\"s\":200}\n" +
			"com,b)/ 20230101000000 {\"s\":200}\n")
	b := strings.NewReader(
		"com,a)/ 20230201000000 {\"s\":200}\n" +
			"com,c)/ 20230101000000 {\"s\":200}\n")

	var out bytes.Buffer

	stats, err := merge.Merge(context.Background(), []merge.Source{
		{Name: "a", R: a},
		{Name: "b", R: b},
	}, &out)
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.LinesWritten)

	want := "com,a)/ 20230101000000 {\"s\":200}\n" +
		"com,a)/ 20230201000000 {\"s\":200}\n" +
		"com,b)/ 20230101000000 {\"s\":200}\n" +
		"com,c)/ 20230101000000 {\"s\":200}\n"
	assert.Equal(t, want, out.String())
}

func TestMergeDetectsUnsortedInput(t *testing.T) {
	t.Parallel()

	bad := strings.NewReader(
		"com,b)/ 20230101000000 {}\n" +
			"com,a)/ 20230101000000 {}\n")

	var out bytes.Buffer

	_, err := merge.Merge(context.Background(), []merge.Source{{Name: "bad", R: bad}}, &out)
	require.Error(t, err)

	var unsorted *merge.UnsortedInputError
	require.ErrorAs(t, err, &unsorted)
	assert.Equal(t, "bad", unsorted.Source)
}

func TestMergeOrdersEqualKeysByFullLine(t *testing.T) {
	t.Parallel()

	a := strings.NewReader("com,a)/ 20230101000000 {\"src\":\"a\"}\n")
	b := strings.NewReader("com,a)/ 20230101000000 {\"src\":\"b\"}\n")

	var out bytes.Buffer

	_, err := merge.Merge(context.Background(), []merge.Source{
		{Name: "a", R: a},
		{Name: "b", R: b},
	}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"src":"a"`)
	assert.Contains(t, lines[1], `"src":"b"`)
}

func TestMergeToWriterStagesFanIn(t *testing.T) {
	t.Parallel()

	var sources []merge.Source

	for i := 0; i < 10; i++ {
		line := strings.Repeat("z", 0) + keyFor(i) + " 20230101000000 {}\n"
		sources = append(sources, merge.Source{Name: keyFor(i), R: strings.NewReader(line)})
	}

	var out bytes.Buffer

	stats, err := merge.MergeToWriter(context.Background(), sources, &out, merge.Options{MaxFanIn: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 10, stats.LinesWritten)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.True(t, sortedLines(lines))
}

func keyFor(i int) string {
	return "com,host" + string(rune('a'+i)) + ")/"
}

func sortedLines(lines []string) bool {
	for i := 1; i < len(lines); i++ {
		if lines[i-1] > lines[i] {
			return false
		}
	}

	return true
}
