package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/blocklist"
	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/metrics"
)

func blocklistCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:      "filter-blocklist",
		Usage:     "drop CDXJ lines whose raw bytes match a blocklist pattern",
		ArgsUsage: "<input.cdxj>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "patterns",
				Usage:    "Path to the blocklist patterns file (one regex per line)",
				Sources:  flagSources("blocklist.patterns", "CDXT_BLOCKLIST_PATTERNS"),
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output path, or \"-\" for stdout",
				Sources: flagSources("blocklist.output", "CDXT_BLOCKLIST_OUTPUT"),
				Value:   "-",
			},
		},
		Action: blocklistAction(),
	}
}

func blocklistAction() cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		log := zerolog.Ctx(ctx).With().Str("cmd", "filter-blocklist").Logger()
		ctx = log.WithContext(ctx)

		patFile, err := os.Open(cmd.String("patterns"))
		if err != nil {
			return fmt.Errorf("filter-blocklist: opening patterns: %w", err)
		}
		defer patFile.Close()

		filter, err := blocklist.LoadPatterns(ctx, patFile)
		if err != nil {
			return fmt.Errorf("filter-blocklist: %w", err)
		}

		in, closeIn, err := openInput(inputArg(cmd))
		if err != nil {
			return fmt.Errorf("filter-blocklist: opening input: %w", err)
		}
		defer closeIn()

		out, closeOut, err := openOutput(cmd.String("output"))
		if err != nil {
			return fmt.Errorf("filter-blocklist: opening output: %w", err)
		}
		defer closeOut()

		stats, err := filter.Apply(ctx, in, out)
		if err != nil {
			return fmt.Errorf("filter-blocklist: %w", err)
		}

		log.Info().Int64("kept", stats.Kept).Int64("dropped", stats.Dropped).Msg("filter-blocklist complete")

		reg := metrics.New("cdxt_blocklist")
		reg.LinesProcessed.Add(float64(stats.Kept + stats.Dropped))
		reg.LinesDropped.Add(float64(stats.Dropped))
		reportMetrics(ctx, cmd, reg)

		return nil
	}
}

func inputArg(cmd *cli.Command) string {
	args := cmd.Args().Slice()
	if len(args) == 0 {
		return "-"
	}

	return args[0]
}
