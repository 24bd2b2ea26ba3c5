package zipnum

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DecodeConfig controls how Decode resolves and fetches shards.
type DecodeConfig struct {
	// IndexPath is the ".idx" file to decode.
	IndexPath string

	// LocPath overrides the default "<index-without-.idx>.loc" sibling.
	LocPath string

	// Source overrides shard resolution; when nil, NewShardSource is used
	// with IndexPath's directory as the base.
	Source ShardSource

	// Workers bounds the decompression worker pool. Zero uses
	// DefaultWorkers.
	Workers int

	// SkipErrors causes a shard fetch/decompress failure to be logged and
	// skipped rather than aborting the whole decode.
	SkipErrors bool
}

// DecodeStats reports what Decode reconstructed.
type DecodeStats struct {
	Chunks  int
	Skipped int
}

type fetchJob struct {
	seq    int
	entry  IndexEntry
	result chan fetchResult
}

type fetchResult struct {
	decompressed []byte
	err          error
}

// Decode reads a ZipNum ".idx" file, resolves each referenced shard
// range via cfg.Source (or a default derived from the index's
// directory and an adjacent ".loc" file), decompresses every
// independent gzip chunk, and writes the reconstructed CDXJ stream to
// w in original order.
func Decode(ctx context.Context, w io.Writer, cfg DecodeConfig) (DecodeStats, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	idxFile, err := os.Open(cfg.IndexPath)
	if err != nil {
		return DecodeStats{}, err
	}
	defer idxFile.Close()

	entries, err := ReadIndex(idxFile)
	if err != nil {
		return DecodeStats{}, err
	}

	locs, err := loadLocs(cfg)
	if err != nil {
		return DecodeStats{}, err
	}

	source := cfg.Source
	if source == nil {
		source = NewShardSource(filepath.Dir(cfg.IndexPath))
	}

	return decodeEntries(ctx, w, entries, locs, source, cfg)
}

func loadLocs(cfg DecodeConfig) (map[string]string, error) {
	locPath := cfg.LocPath
	if locPath == "" {
		base := cfg.IndexPath

		if ext := filepath.Ext(base); ext == ".idx" {
			base = base[:len(base)-len(ext)]
		}

		locPath = base + ".loc"
	}

	f, err := os.Open(locPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}

		return nil, err
	}
	defer f.Close()

	return ReadLoc(f)
}

func decodeEntries(
	ctx context.Context,
	w io.Writer,
	entries []IndexEntry,
	locs map[string]string,
	source ShardSource,
	cfg DecodeConfig,
) (DecodeStats, error) {
	log := zerolog.Ctx(ctx)

	g, gctx := errgroup.WithContext(ctx)

	jobs := make(chan *fetchJob, 2*cfg.Workers)
	order := make(chan *fetchJob, 2*cfg.Workers)

	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			return fetchWorker(gctx, jobs, locs, source)
		})
	}

	var stats DecodeStats

	g.Go(func() error {
		var werr error
		stats, werr = writeDecoded(gctx, w, order, cfg.SkipErrors, log)

		return werr
	})

	for i, e := range entries {
		job := &fetchJob{seq: i, entry: e, result: make(chan fetchResult, 1)}

		select {
		case jobs <- job:
		case <-gctx.Done():
			close(jobs)
			close(order)
			g.Wait() //nolint:errcheck

			return stats, gctx.Err()
		}

		select {
		case order <- job:
		case <-gctx.Done():
			close(jobs)
			close(order)
			g.Wait() //nolint:errcheck

			return stats, gctx.Err()
		}
	}

	close(jobs)
	close(order)

	if err := g.Wait(); err != nil {
		return stats, err
	}

	return stats, nil
}

func fetchWorker(ctx context.Context, jobs <-chan *fetchJob, locs map[string]string, source ShardSource) error {
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return nil
			}

			location, ok := locs[job.entry.ShardName]
			if !ok {
				location = job.entry.ShardName
			}

			raw, err := source.Fetch(ctx, location, job.entry.Offset, job.entry.Length)
			if err != nil {
				job.result <- fetchResult{err: fmt.Errorf("%w: %s: %w", ErrShardMissing, job.entry.ShardName, err)}

				continue
			}

			gr, err := gzip.NewReader(bytes.NewReader(raw))
			if err != nil {
				job.result <- fetchResult{err: err}

				continue
			}

			data, err := io.ReadAll(gr)
			if err != nil {
				job.result <- fetchResult{err: err}

				continue
			}

			job.result <- fetchResult{decompressed: data}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeDecoded(ctx context.Context, w io.Writer, order <-chan *fetchJob, skipErrors bool, log *zerolog.Logger) (DecodeStats, error) {
	var stats DecodeStats

	for {
		select {
		case job, ok := <-order:
			if !ok {
				return stats, nil
			}

			select {
			case res := <-job.result:
				if res.err != nil {
					if skipErrors {
						stats.Skipped++

						log.Warn().Err(res.err).Str("shard", job.entry.ShardName).Msg("skipping unreadable shard chunk")

						continue
					}

					return stats, res.err
				}

				if _, err := w.Write(res.decompressed); err != nil {
					return stats, err
				}

				stats.Chunks++
			case <-ctx.Done():
				return stats, ctx.Err()
			}
		case <-ctx.Done():
			return stats, ctx.Err()
		}
	}
}
