package merge

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/atomicfile"
)

// DefaultMaxFanIn bounds the number of sources merged directly by a
// single heap pass, to respect the open file descriptor budget: merges
// beyond the cap are staged as intermediate merges instead.
const DefaultMaxFanIn = 64

// Options configures a staged, file-backed merge.
type Options struct {
	MaxFanIn int // 0 means DefaultMaxFanIn
}

func (o Options) maxFanIn() int {
	if o.MaxFanIn <= 0 {
		return DefaultMaxFanIn
	}

	return o.MaxFanIn
}

// MergeToWriter merges sources, staging through temporary intermediate
// files when len(sources) exceeds opts.maxFanIn(), and writes the final
// sorted stream to w.
func MergeToWriter(ctx context.Context, sources []Source, w io.Writer, opts Options) (Stats, error) {
	if err := ValidateSources(sources); err != nil {
		return Stats{}, err
	}

	maxFanIn := opts.maxFanIn()
	if len(sources) <= maxFanIn {
		return Merge(ctx, sources, w)
	}

	var tmpPaths []string

	defer func() {
		for _, p := range tmpPaths {
			os.Remove(p)
		}
	}()

	var stats Stats

	cur := sources

	for len(cur) > maxFanIn {
		var next []Source

		for i := 0; i < len(cur); i += maxFanIn {
			end := i + maxFanIn
			if end > len(cur) {
				end = len(cur)
			}

			group := cur[i:end]

			tmp, err := os.CreateTemp("", "cdxj-merge-stage-*.cdxj")
			if err != nil {
				return stats, err
			}

			tmpPaths = append(tmpPaths, tmp.Name())

			if _, err := Merge(ctx, group, tmp); err != nil {
				tmp.Close()

				return stats, fmt.Errorf("staged merge: %w", err)
			}

			if err := tmp.Close(); err != nil {
				return stats, err
			}

			f, err := os.Open(tmp.Name())
			if err != nil {
				return stats, err
			}

			next = append(next, Source{Name: tmp.Name(), R: f})
		}

		cur = next
	}

	return Merge(ctx, cur, w)
}

// MergeToPath is the CLI entry point: resolves output to either "-"
// (stdout, unbuffered temp-and-rename not applicable) or a file path
// (written atomically via atomicfile so a failure never leaves a
// partial output visible).
func MergeToPath(ctx context.Context, sources []Source, outputPath string, opts Options) (Stats, error) {
	if outputPath == "-" {
		return MergeToWriter(ctx, sources, os.Stdout, opts)
	}

	aw, err := atomicfile.New(outputPath, 0o644)
	if err != nil {
		return Stats{}, err
	}

	stats, err := MergeToWriter(ctx, sources, aw, opts)
	if err != nil {
		aw.Abort()

		return stats, err
	}

	return stats, aw.Commit()
}
