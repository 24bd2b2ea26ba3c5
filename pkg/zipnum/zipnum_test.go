package zipnum_test

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

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/zipnum"
)

func testCtx() context.Context {
	return zerolog.New(io.Discard).WithContext(context.Background())
}

func sampleCDXJ() string {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		b.WriteString("com,example)/" + string(rune('a'+i)) + " 2024010100000" + string(rune('0'+i%10)) + " {\"status\":\"200\"}\n")
	}

	return b.String()
}

func TestEncodeSingleShardThenDecodeRoundTrips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := filepath.Join(dir, "demo")

	input := sampleCDXJ()

	stats, err := zipnum.Encode(testCtx(), strings.NewReader(input), zipnum.EncodeConfig{
		BaseName:  base,
		ChunkLines: 3,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 10, stats.Lines)
	assert.Equal(t, 4, stats.Chunks) // 3+3+3+1

	_, statErr := os.Stat(base + ".cdx.gz")
	require.NoError(t, statErr, "single-shard output should use the bare base name")

	idxBytes, err := os.ReadFile(base + ".idx")
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(idxBytes), "\n"))

	var out bytes.Buffer
	dstats, err := zipnum.Decode(testCtx(), &out, zipnum.DecodeConfig{IndexPath: base + ".idx"})
	require.NoError(t, err)
	assert.Equal(t, 4, dstats.Chunks)
	assert.Equal(t, input, out.String())
}

func TestEncodeMultiShardNaming(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := filepath.Join(dir, "demo")

	input := sampleCDXJ()

	// Force a shard rotation after every chunk by setting a tiny byte budget.
	_, err := zipnum.Encode(testCtx(), strings.NewReader(input), zipnum.EncodeConfig{
		BaseName:       base,
		ChunkLines:     2,
		ShardSizeBytes: 1,
	})
	require.NoError(t, err)

	_, statErr := os.Stat(base + "-00000.cdx.gz")
	require.NoError(t, statErr)
	_, statErr = os.Stat(base + "-00001.cdx.gz")
	require.NoError(t, statErr)

	var out bytes.Buffer
	_, err = zipnum.Decode(testCtx(), &out, zipnum.DecodeConfig{IndexPath: base + ".idx"})
	require.NoError(t, err)
	assert.Equal(t, input, out.String())
}

func TestEncodeRejectsUnsortedInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := filepath.Join(dir, "demo")

	input := "com,b)/ 1 {}\ncom,a)/ 1 {}\n"

	_, err := zipnum.Encode(testCtx(), strings.NewReader(input), zipnum.EncodeConfig{BaseName: base})
	require.Error(t, err)
}

func TestEncodeEmptyInputProducesEmptyArtifacts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := filepath.Join(dir, "demo")

	stats, err := zipnum.Encode(testCtx(), strings.NewReader(""), zipnum.EncodeConfig{BaseName: base})
	require.NoError(t, err)
	assert.Zero(t, stats.Lines)
	assert.Zero(t, stats.Shards)

	_, statErr := os.Stat(base + ".cdx.gz")
	assert.True(t, os.IsNotExist(statErr))

	idxBytes, err := os.ReadFile(base + ".idx")
	require.NoError(t, err)
	assert.Empty(t, idxBytes)
}

func TestIndexReadWriteRoundTrip(t *testing.T) {
	t.Parallel()

	entries := []zipnum.IndexEntry{
		{FirstKey: "com,a)/", ShardName: "demo.cdx.gz", Offset: 0, Length: 100, ShardNum: 0},
		{FirstKey: "com,b)/", ShardName: "demo.cdx.gz", Offset: 100, Length: 50, ShardNum: 0},
	}

	var buf bytes.Buffer
	require.NoError(t, zipnum.WriteIndex(&buf, entries))

	got, err := zipnum.ReadIndex(&buf)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestLocReadWriteRoundTrip(t *testing.T) {
	t.Parallel()

	entries := []zipnum.LocEntry{{ShardName: "demo.cdx.gz", Location: "demo.cdx.gz"}}

	var buf bytes.Buffer
	require.NoError(t, zipnum.WriteLoc(&buf, entries))

	got, err := zipnum.ReadLoc(&buf)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"demo.cdx.gz": "demo.cdx.gz"}, got)
}
