package search

import (
	"context"
	"os"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/zipnum"
)

// Target selects which on-disk artifact Run searches.
type Target struct {
	// FlatPath, when set, searches a sorted flat CDXJ file.
	FlatPath string
	// IdxPath, when set, searches a ZipNum index (FlatPath and IdxPath
	// are mutually exclusive).
	IdxPath string
	Source  zipnum.ShardSource
}

// Run performs bisection/index search against target, then applies
// ops. When ops requests none of sort/dedupe/limit, results stream
// directly to emit (the timestamp range and predicates are checked line
// by line), preserving O(log N + M) complexity; otherwise the
// match set is materialized so it can be re-sorted, deduplicated, or
// truncated, trading memory for those opt-in conveniences
//
func Run(ctx context.Context, target Target, q Query, ops PostOps, emit func([]byte) error) (int, error) {
	streaming := !ops.Sort && !ops.Dedupe && ops.Limit <= 0

	if streaming {
		count := 0

		err := search(ctx, target, q, func(line []byte) error {
			kept, ferr := Apply([][]byte{line}, ops)
			if ferr != nil {
				return ferr
			}

			if len(kept) == 0 {
				return nil
			}

			count++

			return emit(line)
		})

		return count, err
	}

	var lines [][]byte

	if err := search(ctx, target, q, func(line []byte) error {
		cp := make([]byte, len(line))
		copy(cp, line)
		lines = append(lines, cp)

		return nil
	}); err != nil {
		return 0, err
	}

	filtered, err := Apply(lines, ops)
	if err != nil {
		return 0, err
	}

	for _, line := range filtered {
		if err := emit(line); err != nil {
			return 0, err
		}
	}

	return len(filtered), nil
}

func search(ctx context.Context, target Target, q Query, emit func([]byte) error) error {
	if target.IdxPath != "" {
		return ZipNumSearch(ctx, target.IdxPath, q, target.Source, emit)
	}

	f, err := os.Open(target.FlatPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return FlatFile(ctx, f, q, emit)
}
