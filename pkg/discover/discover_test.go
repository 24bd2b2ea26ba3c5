package discover_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/discover"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFilesWalksDirectoriesAndFilters(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.cdxj"), "com,a)/ 20230101000000 {}\n")
	writeFile(t, filepath.Join(dir, "sub", "b.cdxj"), "com,b)/ 20230101000000 {}\n")
	writeFile(t, filepath.Join(dir, "sub", "spam.cdxj"), "com,c)/ 20230101000000 {}\n")
	writeFile(t, filepath.Join(dir, "ignore.txt"), "not cdxj\n")

	files, err := discover.Files([]string{dir}, discover.Options{Exclude: []string{"spam.cdxj"}})
	require.NoError(t, err)
	assert.Len(t, files, 2)

	for _, f := range files {
		assert.NotContains(t, f, "spam.cdxj")
	}
}

func TestFilesStdinAlone(t *testing.T) {
	t.Parallel()

	files, err := discover.Files([]string{"-"}, discover.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"-"}, files)
}

func TestFilesStdinRejectsCombination(t *testing.T) {
	t.Parallel()

	_, err := discover.Files([]string{"-", "other.cdxj"}, discover.Options{})
	require.Error(t, err)
}

func TestSniffByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cdxj := filepath.Join(dir, "a.cdxj")
	writeFile(t, cdxj, "com,a)/ 20230101000000 {}\n")

	ft, err := discover.Sniff(cdxj)
	require.NoError(t, err)
	assert.Equal(t, discover.TypeCDXJ, ft)
}

func TestSniffContentFallback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ambiguous := filepath.Join(dir, "data.dat")
	writeFile(t, ambiguous, "key1\tshard1\t0\t100\t0\n")

	ft, err := discover.Sniff(ambiguous)
	require.NoError(t, err)
	assert.Equal(t, discover.TypeZipNumIndex, ft)
}
