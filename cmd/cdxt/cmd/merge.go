package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/merge"
	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/metrics"
)

func mergeCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:      "merge",
		Usage:     "k-way merge sorted CDXJ files into one sorted stream",
		ArgsUsage: "<input.cdxj>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output path, or \"-\" for stdout",
				Sources: flagSources("merge.output", "CDXT_MERGE_OUTPUT"),
				Value:   "-",
			},
			&cli.IntFlag{
				Name:    "max-fan-in",
				Usage:   "Maximum sources merged in one pass before staging",
				Sources: flagSources("merge.max-fan-in", "CDXT_MERGE_MAX_FAN_IN"),
				Value:   merge.DefaultMaxFanIn,
			},
		},
		Action: mergeAction(),
	}
}

func mergeAction() cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		log := zerolog.Ctx(ctx).With().Str("cmd", "merge").Logger()
		ctx = log.WithContext(ctx)

		paths := cmd.Args().Slice()
		if len(paths) == 0 {
			return fmt.Errorf("merge: at least one input file is required")
		}

		sources := make([]merge.Source, 0, len(paths))

		for _, p := range paths {
			f, _, err := openInput(p)
			if err != nil {
				return fmt.Errorf("merge: opening %s: %w", p, err)
			}

			defer f.Close()

			sources = append(sources, merge.Source{Name: p, R: f})
		}

		stats, err := merge.MergeToPath(ctx, sources, cmd.String("output"), merge.Options{MaxFanIn: int(cmd.Int("max-fan-in"))})
		if err != nil {
			return fmt.Errorf("merge: %w", err)
		}

		merge.LogSummary(ctx, stats)

		reg := metrics.New("cdxt_merge")
		reg.LinesProcessed.Add(float64(stats.LinesWritten))
		reportMetrics(ctx, cmd, reg)

		return nil
	}
}

