package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/excessive"
	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/metrics"
)

func excessiveCommand(flagSources flagSourcesFn) *cli.Command {
	thresholdFlag := &cli.IntFlag{
		Name:    "threshold",
		Usage:   "Maximum occurrences of a SURT key before it is excessive",
		Sources: flagSources("excessive.threshold", "CDXT_EXCESSIVE_THRESHOLD"),
		Value:   excessive.DefaultThreshold,
	}

	outputFlag := &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Output path, or \"-\" for stdout",
		Sources: flagSources("excessive.output", "CDXT_EXCESSIVE_OUTPUT"),
		Value:   "-",
	}

	return &cli.Command{
		Name:  "filter-excessive-urls",
		Usage: "find, remove, or auto-filter SURT keys exceeding a cardinality cap",
		Commands: []*cli.Command{
			{
				Name:      "find",
				Usage:     "report SURT keys occurring more than --threshold times",
				ArgsUsage: "<input.cdxj>",
				Flags:     []cli.Flag{thresholdFlag, outputFlag},
				Action:    excessiveFindAction(),
			},
			{
				Name:      "remove",
				Usage:     "drop lines whose SURT key is listed in --keys",
				ArgsUsage: "<input.cdxj>",
				Flags: []cli.Flag{
					outputFlag,
					&cli.StringFlag{
						Name:     "keys",
						Usage:    "Path to the find-mode output listing excessive keys",
						Sources:  flagSources("excessive.keys", "CDXT_EXCESSIVE_KEYS"),
						Required: true,
					},
				},
				Action: excessiveRemoveAction(),
			},
			{
				Name:      "auto",
				Usage:     "find then remove over the same file in one invocation",
				ArgsUsage: "<input.cdxj>",
				Flags:     []cli.Flag{thresholdFlag, outputFlag},
				Action:    excessiveAutoAction(),
			},
		},
	}
}

func excessiveFindAction() cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		log := zerolog.Ctx(ctx).With().Str("cmd", "filter-excessive-urls.find").Logger()
		ctx = log.WithContext(ctx)

		in, closeIn, err := openInput(inputArg(cmd))
		if err != nil {
			return fmt.Errorf("filter-excessive-urls find: %w", err)
		}
		defer closeIn()

		out, closeOut, err := openOutput(cmd.String("output"))
		if err != nil {
			return fmt.Errorf("filter-excessive-urls find: %w", err)
		}
		defer closeOut()

		entries, err := excessive.Find(ctx, in, out, cmd.Int("threshold"))
		if err != nil {
			return fmt.Errorf("filter-excessive-urls find: %w", err)
		}

		reg := metrics.New("cdxt_excessive_find")
		reg.Errors.Add(float64(len(entries)))
		reportMetrics(ctx, cmd, reg)

		return nil
	}
}

func excessiveRemoveAction() cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		log := zerolog.Ctx(ctx).With().Str("cmd", "filter-excessive-urls.remove").Logger()
		ctx = log.WithContext(ctx)

		keysFile, err := os.Open(cmd.String("keys"))
		if err != nil {
			return fmt.Errorf("filter-excessive-urls remove: opening keys: %w", err)
		}
		defer keysFile.Close()

		keys, err := excessive.LoadKeySet(keysFile)
		if err != nil {
			return fmt.Errorf("filter-excessive-urls remove: %w", err)
		}

		in, closeIn, err := openInput(inputArg(cmd))
		if err != nil {
			return fmt.Errorf("filter-excessive-urls remove: %w", err)
		}
		defer closeIn()

		out, closeOut, err := openOutput(cmd.String("output"))
		if err != nil {
			return fmt.Errorf("filter-excessive-urls remove: %w", err)
		}
		defer closeOut()

		stats, err := excessive.Remove(ctx, in, out, keys)
		if err != nil {
			return fmt.Errorf("filter-excessive-urls remove: %w", err)
		}

		log.Info().Int64("kept", stats.Kept).Int64("dropped", stats.Dropped).Msg("filter-excessive-urls remove complete")

		reg := metrics.New("cdxt_excessive_remove")
		reg.LinesProcessed.Add(float64(stats.Kept + stats.Dropped))
		reg.LinesDropped.Add(float64(stats.Dropped))
		reportMetrics(ctx, cmd, reg)

		return nil
	}
}

func excessiveAutoAction() cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		log := zerolog.Ctx(ctx).With().Str("cmd", "filter-excessive-urls.auto").Logger()
		ctx = log.WithContext(ctx)

		path := inputArg(cmd)

		out, closeOut, err := openOutput(cmd.String("output"))
		if err != nil {
			return fmt.Errorf("filter-excessive-urls auto: %w", err)
		}
		defer closeOut()

		stats, err := excessive.Auto(ctx, path, out, cmd.Int("threshold"))
		if err != nil {
			return fmt.Errorf("filter-excessive-urls auto: %w", err)
		}

		log.Info().Int64("kept", stats.Kept).Int64("dropped", stats.Dropped).Msg("filter-excessive-urls auto complete")

		reg := metrics.New("cdxt_excessive_auto")
		reg.LinesProcessed.Add(float64(stats.Kept + stats.Dropped))
		reg.LinesDropped.Add(float64(stats.Dropped))
		reportMetrics(ctx, cmd, reg)

		return nil
	}
}
