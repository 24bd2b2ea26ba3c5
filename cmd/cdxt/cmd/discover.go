package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/discover"
	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/metrics"
)

func discoverCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:      "discover",
		Usage:     "resolve a mix of files and directories into a sorted .cdxj file list",
		ArgsUsage: "<path>...",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "exclude",
				Usage:   "Glob pattern to exclude (doublestar syntax, repeatable)",
				Sources: flagSources("discover.exclude", "CDXT_DISCOVER_EXCLUDE"),
			},
			&cli.BoolFlag{
				Name:    "sniff",
				Usage:   "Also print each file's sniffed type",
				Sources: flagSources("discover.sniff", "CDXT_DISCOVER_SNIFF"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output path, or \"-\" for stdout",
				Sources: flagSources("discover.output", "CDXT_DISCOVER_OUTPUT"),
				Value:   "-",
			},
		},
		Action: discoverAction(),
	}
}

func discoverAction() cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		log := zerolog.Ctx(ctx).With().Str("cmd", "discover").Logger()

		paths := cmd.Args().Slice()
		if len(paths) == 0 {
			return fmt.Errorf("discover: at least one path argument is required")
		}

		files, err := discover.Files(paths, discover.Options{Exclude: cmd.StringSlice("exclude")})
		if err != nil {
			return fmt.Errorf("discover: %w", err)
		}

		out, closeOut, err := openOutput(cmd.String("output"))
		if err != nil {
			return fmt.Errorf("discover: %w", err)
		}
		defer closeOut()

		sniff := cmd.Bool("sniff")

		for _, f := range files {
			if !sniff {
				if _, err := fmt.Fprintln(out, f); err != nil {
					return fmt.Errorf("discover: %w", err)
				}

				continue
			}

			ft, err := discover.Sniff(f)
			if err != nil {
				return fmt.Errorf("discover: sniffing %s: %w", f, err)
			}

			if _, err := fmt.Fprintf(out, "%s\t%s\n", f, fileTypeName(ft)); err != nil {
				return fmt.Errorf("discover: %w", err)
			}
		}

		log.Info().Int("files", len(files)).Msg("discover complete")

		reg := metrics.New("cdxt_discover")
		reg.LinesProcessed.Add(float64(len(files)))
		reportMetrics(ctx, cmd, reg)

		return nil
	}
}

func fileTypeName(t discover.FileType) string {
	switch t {
	case discover.TypeCDXJ:
		return "cdxj"
	case discover.TypeZipNumIndex:
		return "zipnum-index"
	case discover.TypeZipNumShard:
		return "zipnum-shard"
	default:
		return "unknown"
	}
}
