package zipnum

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/atomicfile"
	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/cdxj"
)

// EncodeConfig controls chunking, shard rotation and compression
// concurrency.
type EncodeConfig struct {
	// BaseName is the shard/index/loc base path, e.g. "/out/demo" produces
	// demo.idx, demo.loc and demo.cdx.gz (or demo-NNNNN.cdx.gz).
	BaseName string

	// ChunkLines is the number of CDXJ lines per gzip member. Zero uses
	// DefaultChunkLines.
	ChunkLines int

	// ShardSizeBytes bounds a shard's compressed size; a shard rotates to
	// a new file once appending the next chunk would exceed it, unless
	// the shard is still empty (a single oversized chunk is never split).
	// Zero uses DefaultShardSizeBytes.
	ShardSizeBytes int64

	// CompressionLevel is passed to gzip.NewWriterLevel. Zero uses
	// gzip.DefaultCompression.
	CompressionLevel int

	// Workers bounds the compression worker pool. Zero uses
	// DefaultWorkers.
	Workers int
}

const (
	// DefaultChunkLines is the default CDXJ lines per gzip member.
	DefaultChunkLines = 3000
	// DefaultShardSizeBytes is the default compressed-size shard budget.
	DefaultShardSizeBytes = 100 << 20
	// DefaultWorkers bounds concurrent chunk compression when unset.
	DefaultWorkers = 4
)

func (c EncodeConfig) withDefaults() EncodeConfig {
	if c.ChunkLines <= 0 {
		c.ChunkLines = DefaultChunkLines
	}

	if c.ShardSizeBytes <= 0 {
		c.ShardSizeBytes = DefaultShardSizeBytes
	}

	if c.CompressionLevel == 0 {
		c.CompressionLevel = gzip.DefaultCompression
	}

	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}

	return c
}

// EncodeStats reports what Encode produced.
type EncodeStats struct {
	Lines  int64
	Chunks int
	Shards int
}

type sealedChunk struct {
	seq      int
	firstKey string
	data     []byte
	result   chan compressResult
}

type compressResult struct {
	compressed []byte
	err        error
}

// Encode reads a sorted CDXJ stream from r and writes a ZipNum shard
// set rooted at cfg.BaseName: one or more "*.cdx.gz" shard files, a
// "<base>.idx" summary index, and a "<base>.loc" location file. All
// three kinds of output file are written via atomicfile, and the idx
// and loc files are only written once every shard is durable, so a
// reader never observes an index referencing a shard that isn't there
// yet.
func Encode(ctx context.Context, r io.Reader, cfg EncodeConfig) (EncodeStats, error) {
	cfg = cfg.withDefaults()

	log := zerolog.Ctx(ctx)

	g, gctx := errgroup.WithContext(ctx)

	jobs := make(chan *sealedChunk, 2*cfg.Workers)
	order := make(chan *sealedChunk, 2*cfg.Workers)

	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			return compressWorker(gctx, jobs, cfg.CompressionLevel)
		})
	}

	var (
		shardWriters []*atomicfile.Writer
		shardSizes   []int64
		indexEntries []IndexEntry
	)

	g.Go(func() error {
		var werr error
		indexEntries, werr = writeShards(gctx, order, cfg, &shardWriters, &shardSizes)

		return werr
	})

	stats, scanErr := scanChunks(gctx, r, cfg, jobs, order)

	close(jobs)
	close(order)

	if waitErr := g.Wait(); waitErr != nil {
		abortAll(shardWriters)

		return stats, waitErr
	}

	if scanErr != nil {
		abortAll(shardWriters)

		return stats, scanErr
	}

	stats.Shards = len(shardWriters)

	for i, entry := range indexEntries {
		indexEntries[i].ShardName = shardFinalName(cfg.BaseName, entry.ShardNum, stats.Shards)
	}

	for i, w := range shardWriters {
		w.SetDest(shardFinalName(cfg.BaseName, i, stats.Shards))

		if err := w.Commit(); err != nil {
			return stats, fmt.Errorf("commit shard %d: %w", i, err)
		}
	}

	if err := writeIndexAndLoc(cfg, indexEntries, stats.Shards); err != nil {
		return stats, err
	}

	log.Info().
		Int64("lines", stats.Lines).
		Int("chunks", stats.Chunks).
		Int("shards", stats.Shards).
		Msg("zipnum encode complete")

	return stats, nil
}

func abortAll(writers []*atomicfile.Writer) {
	for _, w := range writers {
		w.Abort()
	}
}

// scanChunks is the single sequential producer: it reads lines,
// validates sort order, and seals chunks of cfg.ChunkLines lines (or a
// shorter final chunk) onto both the compression-job channel and the
// write-order channel.
func scanChunks(ctx context.Context, r io.Reader, cfg EncodeConfig, jobs, order chan<- *sealedChunk) (EncodeStats, error) {
	var stats EncodeStats

	br := bufio.NewReaderSize(r, 1<<20)

	var (
		buf      bytes.Buffer
		lineNo   int
		firstKey string
		lastLine []byte
		seq      int
	)

	flush := func() error {
		if buf.Len() == 0 {
			return nil
		}

		data := make([]byte, buf.Len())
		copy(data, buf.Bytes())

		job := &sealedChunk{seq: seq, firstKey: firstKey, data: data, result: make(chan compressResult, 1)}
		seq++

		select {
		case jobs <- job:
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case order <- job:
		case <-ctx.Done():
			return ctx.Err()
		}

		stats.Chunks++
		buf.Reset()
		lineNo = 0
		firstKey = ""

		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		raw, rerr := br.ReadBytes('\n')
		if len(raw) > 0 {
			rec, perr := cdxj.Parse(raw, true)
			if perr != nil {
				return stats, perr
			}

			if lastLine != nil && cdxj.Compare(lastLine, raw) > 0 {
				return stats, fmt.Errorf("zipnum encode: %w at line %d", errUnsorted, stats.Lines+1)
			}

			lastLine = append(lastLine[:0], raw...)

			if lineNo == 0 {
				firstKey = rec.SURT
			}

			buf.Write(raw)
			lineNo++
			stats.Lines++

			if lineNo >= cfg.ChunkLines {
				if err := flush(); err != nil {
					return stats, err
				}
			}
		}

		if rerr != nil {
			if rerr == io.EOF {
				break
			}

			return stats, rerr
		}
	}

	if err := flush(); err != nil {
		return stats, err
	}

	return stats, nil
}

func compressWorker(ctx context.Context, jobs <-chan *sealedChunk, level int) error {
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return nil
			}

			var buf bytes.Buffer

			gw, err := gzip.NewWriterLevel(&buf, level)
			if err != nil {
				job.result <- compressResult{err: err}

				continue
			}

			if _, err := gw.Write(job.data); err != nil {
				job.result <- compressResult{err: err}

				continue
			}

			if err := gw.Close(); err != nil {
				job.result <- compressResult{err: err}

				continue
			}

			job.result <- compressResult{compressed: buf.Bytes()}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writeShards is the single serializing consumer: it drains order
// strictly in sequence, rotating shard files by cfg.ShardSizeBytes, and
// returns the accumulated index entries (shard names are provisional;
// the caller fixes them up once the final shard count is known).
func writeShards(
	ctx context.Context,
	order <-chan *sealedChunk,
	cfg EncodeConfig,
	writers *[]*atomicfile.Writer,
	sizes *[]int64,
) ([]IndexEntry, error) {
	var entries []IndexEntry

	currentShard := -1

	openShard := func() error {
		idx := len(*writers)
		tmpDest := fmt.Sprintf("%s-%05d.cdx.gz", cfg.BaseName, idx)

		w, err := atomicfile.New(tmpDest, 0o644)
		if err != nil {
			return err
		}

		*writers = append(*writers, w)
		*sizes = append(*sizes, 0)
		currentShard = idx

		return nil
	}

	for {
		select {
		case job, ok := <-order:
			if !ok {
				return entries, nil
			}

			select {
			case res := <-job.result:
				if res.err != nil {
					return entries, res.err
				}

				if currentShard == -1 {
					if err := openShard(); err != nil {
						return entries, err
					}
				} else if (*sizes)[currentShard] > 0 && (*sizes)[currentShard]+int64(len(res.compressed)) > cfg.ShardSizeBytes {
					if err := openShard(); err != nil {
						return entries, err
					}
				}

				w := (*writers)[currentShard]
				offset := (*sizes)[currentShard]

				if _, err := w.Write(res.compressed); err != nil {
					return entries, err
				}

				(*sizes)[currentShard] += int64(len(res.compressed))

				entries = append(entries, IndexEntry{
					FirstKey: job.firstKey,
					ShardNum: currentShard,
					Offset:   offset,
					Length:   int64(len(res.compressed)),
				})
			case <-ctx.Done():
				return entries, ctx.Err()
			}
		case <-ctx.Done():
			return entries, ctx.Err()
		}
	}
}

func writeIndexAndLoc(cfg EncodeConfig, entries []IndexEntry, totalShards int) error {
	idxPath := cfg.BaseName + ".idx"

	idxW, err := atomicfile.New(idxPath, 0o644)
	if err != nil {
		return err
	}

	if err := WriteIndex(idxW, entries); err != nil {
		idxW.Abort()

		return err
	}

	if err := idxW.Commit(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, totalShards)

	var locEntries []LocEntry

	for _, e := range entries {
		if _, ok := seen[e.ShardName]; ok {
			continue
		}

		seen[e.ShardName] = struct{}{}
		locEntries = append(locEntries, LocEntry{ShardName: e.ShardName, Location: filepath.Base(e.ShardName)})
	}

	locPath := cfg.BaseName + ".loc"

	locW, err := atomicfile.New(locPath, 0o644)
	if err != nil {
		return err
	}

	if err := WriteLoc(locW, locEntries); err != nil {
		locW.Abort()

		return err
	}

	return locW.Commit()
}
