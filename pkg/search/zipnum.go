package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/zipnum"
)

// ZipNumSearch performs the index-driven chunk lookup: binary-search
// the ".idx" entries by FirstKey to find the candidate chunk range,
// then run the flat-search scan inside each candidate chunk's
// decompressed bytes, in index order, stopping once a chunk's FirstKey
// moves past the match range.
func ZipNumSearch(ctx context.Context, idxPath string, q Query, source zipnum.ShardSource, emit func([]byte) error) error {
	idxFile, err := os.Open(idxPath)
	if err != nil {
		return err
	}
	defer idxFile.Close()

	entries, err := zipnum.ReadIndex(idxFile)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		return nil
	}

	locs, err := loadLocFile(idxPath)
	if err != nil {
		return err
	}

	if source == nil {
		source = zipnum.NewShardSource(filepath.Dir(idxPath))
	}

	// Last chunk whose FirstKey <= search_key.
	start := sort.Search(len(entries), func(i int) bool {
		return entries[i].FirstKey > q.SearchKey
	}) - 1
	if start < 0 {
		start = 0
	}

	for i := start; i < len(entries); i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		e := entries[i]

		// Once this chunk's FirstKey itself is past the match range (and
		// it isn't the start chunk, which must always be scanned as the
		// possible start of the range), no later chunk can contain a match
		// either.
		if i > start && !keyMayStillMatch(e.FirstKey, q) {
			break
		}

		location, ok := locs[e.ShardName]
		if !ok {
			location = e.ShardName
		}

		raw, err := source.Fetch(ctx, location, e.Offset, e.Length)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", zipnum.ErrShardMissing, e.ShardName, err)
		}

		gr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return err
		}

		decompressed, err := io.ReadAll(gr)
		if err != nil {
			return err
		}

		stop, err := scanChunkBytes(ctx, decompressed, q, emit)
		if err != nil {
			return err
		}

		if stop {
			break
		}
	}

	zerolog.Ctx(ctx).Debug().Str("search_key", q.SearchKey).Msg("zipnum search complete")

	return nil
}

func loadLocFile(idxPath string) (map[string]string, error) {
	base := idxPath

	if ext := filepath.Ext(base); ext == ".idx" {
		base = base[:len(base)-len(ext)]
	}

	f, err := os.Open(base + ".loc")
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}

		return nil, err
	}
	defer f.Close()

	return zipnum.ReadLoc(f)
}

func keyMayStillMatch(firstKey string, q Query) bool {
	if q.PrefixMatch {
		if len(firstKey) >= len(q.SearchKey) {
			return firstKey[:len(q.SearchKey)] <= q.SearchKey
		}

		return q.SearchKey[:len(firstKey)] <= firstKey
	}

	return firstKey <= q.SearchKey
}

// scanChunkBytes runs the flat scanner's linear match+emit logic over
// an in-memory decompressed chunk, reporting whether the caller should
// stop scanning further chunks.
func scanChunkBytes(ctx context.Context, data []byte, q Query, emit func([]byte) error) (bool, error) {
	return scanFrom(ctx, bytes.NewReader(data), 0, q, emit)
}
