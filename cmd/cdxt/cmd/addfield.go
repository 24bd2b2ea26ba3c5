package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/addfield"
	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/metrics"
)

func addfieldCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:      "addfield",
		Usage:     "merge constant fields or run a named transform over each line's JSON payload",
		ArgsUsage: "<input.cdxj>",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "set",
				Usage:   "key=value pairs to merge into every record (repeatable)",
				Sources: flagSources("addfield.set", "CDXT_ADDFIELD_SET"),
			},
			&cli.StringFlag{
				Name:    "transform",
				Usage:   "Name of a registered transform to run instead of --set",
				Sources: flagSources("addfield.transform", "CDXT_ADDFIELD_TRANSFORM"),
			},
			&cli.BoolFlag{
				Name:    "strict",
				Usage:   "Fail on malformed lines instead of passing them through unchanged",
				Sources: flagSources("addfield.strict", "CDXT_ADDFIELD_STRICT"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output path, or \"-\" for stdout",
				Sources: flagSources("addfield.output", "CDXT_ADDFIELD_OUTPUT"),
				Value:   "-",
			},
		},
		Action: addfieldAction(),
	}
}

func addfieldAction() cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		log := zerolog.Ctx(ctx).With().Str("cmd", "addfield").Logger()
		ctx = log.WithContext(ctx)

		cfg := addfield.Config{
			TransformName: cmd.String("transform"),
			Strict:        cmd.Bool("strict"),
		}

		if pairs := cmd.StringSlice("set"); len(pairs) > 0 {
			cfg.Constants = make(map[string]string, len(pairs))

			for _, kv := range pairs {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("addfield: invalid --set %q, want key=value", kv)
				}

				cfg.Constants[k] = v
			}
		}

		in, closeIn, err := openInput(inputArg(cmd))
		if err != nil {
			return fmt.Errorf("addfield: %w", err)
		}
		defer closeIn()

		out, closeOut, err := openOutput(cmd.String("output"))
		if err != nil {
			return fmt.Errorf("addfield: %w", err)
		}
		defer closeOut()

		stats, err := addfield.Apply(ctx, in, out, cfg)
		if err != nil {
			return fmt.Errorf("addfield: %w", err)
		}

		log.Info().Int64("transformed", stats.Transformed).Int64("skipped", stats.Skipped).Msg("addfield complete")

		reg := metrics.New("cdxt_addfield")
		reg.LinesProcessed.Add(float64(stats.Transformed + stats.Skipped))
		reg.Errors.Add(float64(stats.Skipped))
		reportMetrics(ctx, cmd, reg)

		return nil
	}
}
