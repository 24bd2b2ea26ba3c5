package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/helper"
	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/metrics"
	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/zipnum"
)

func zipnumEncodeCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:      "zipnum-encode",
		Usage:     "compress a sorted CDXJ stream into a ZipNum shard set",
		ArgsUsage: "<input.cdxj>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "base",
				Usage:    "Base path for the .idx/.loc/shard files, e.g. /out/demo",
				Sources:  flagSources("zipnum.base", "CDXT_ZIPNUM_BASE"),
				Required: true,
			},
			&cli.IntFlag{
				Name:    "chunk-lines",
				Usage:   "CDXJ lines per gzip chunk",
				Sources: flagSources("zipnum.chunk-lines", "CDXT_ZIPNUM_CHUNK_LINES"),
				Value:   zipnum.DefaultChunkLines,
			},
			&cli.StringFlag{
				Name:    "shard-size",
				Usage:   "Compressed-byte budget per shard before rotation, e.g. 100M, 2G",
				Sources: flagSources("zipnum.shard-size", "CDXT_ZIPNUM_SHARD_SIZE"),
				Value:   "100M",
			},
		},
		Action: zipnumEncodeAction(),
	}
}

func zipnumEncodeAction() cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		log := zerolog.Ctx(ctx).With().Str("cmd", "zipnum-encode").Logger()
		ctx = log.WithContext(ctx)

		shardSize, err := helper.ParseSize(cmd.String("shard-size"))
		if err != nil {
			return fmt.Errorf("zipnum-encode: --shard-size: %w", err)
		}

		in, closeIn, err := openInput(inputArg(cmd))
		if err != nil {
			return fmt.Errorf("zipnum-encode: %w", err)
		}
		defer closeIn()

		stats, err := zipnum.Encode(ctx, in, zipnum.EncodeConfig{
			BaseName:       cmd.String("base"),
			ChunkLines:     int(cmd.Int("chunk-lines")),
			ShardSizeBytes: int64(shardSize),
			Workers:        int(cmd.Int("workers")),
		})
		if err != nil {
			return fmt.Errorf("zipnum-encode: %w", err)
		}

		log.Info().
			Int64("lines", stats.Lines).
			Int("chunks", stats.Chunks).
			Int("shards", stats.Shards).
			Msg("zipnum-encode complete")

		reg := metrics.New("cdxt_zipnum_encode")
		reg.LinesProcessed.Add(float64(stats.Lines))
		reg.ChunksWritten.Add(float64(stats.Chunks))
		reg.ShardsWritten.Add(float64(stats.Shards))
		reportMetrics(ctx, cmd, reg)

		return nil
	}
}

func zipnumDecodeCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:      "zipnum-decode",
		Usage:     "reconstruct a sorted CDXJ stream from a ZipNum index",
		ArgsUsage: "<index.idx>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "loc",
				Usage:   "Override the .loc file (defaults to the index's sibling)",
				Sources: flagSources("zipnum.loc", "CDXT_ZIPNUM_LOC"),
			},
			&cli.BoolFlag{
				Name:    "skip-errors",
				Usage:   "Skip shards that cannot be fetched/decompressed instead of failing",
				Sources: flagSources("zipnum.skip-errors", "CDXT_ZIPNUM_SKIP_ERRORS"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output path, or \"-\" for stdout",
				Sources: flagSources("zipnum.output", "CDXT_ZIPNUM_OUTPUT"),
				Value:   "-",
			},
		},
		Action: zipnumDecodeAction(),
	}
}

func zipnumDecodeAction() cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		log := zerolog.Ctx(ctx).With().Str("cmd", "zipnum-decode").Logger()
		ctx = log.WithContext(ctx)

		out, closeOut, err := openOutput(cmd.String("output"))
		if err != nil {
			return fmt.Errorf("zipnum-decode: %w", err)
		}
		defer closeOut()

		stats, err := zipnum.Decode(ctx, out, zipnum.DecodeConfig{
			IndexPath:  inputArg(cmd),
			LocPath:    cmd.String("loc"),
			Workers:    int(cmd.Int("workers")),
			SkipErrors: cmd.Bool("skip-errors"),
		})
		if err != nil {
			return fmt.Errorf("zipnum-decode: %w", err)
		}

		log.Info().Int("chunks", stats.Chunks).Int("skipped", stats.Skipped).Msg("zipnum-decode complete")

		reg := metrics.New("cdxt_zipnum_decode")
		reg.ChunksWritten.Add(float64(stats.Chunks))
		reg.Errors.Add(float64(stats.Skipped))
		reportMetrics(ctx, cmd, reg)

		return nil
	}
}
