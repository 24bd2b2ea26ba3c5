package cmd

import (
	"bufio"
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/metrics"
	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/search"
	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/surt"
)

func searchCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "binary-search a sorted CDXJ file or ZipNum index",
		ArgsUsage: "<url-or-surt>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Usage:   "Sorted flat CDXJ file to search (mutually exclusive with --index)",
				Sources: flagSources("search.file", "CDXT_SEARCH_FILE"),
			},
			&cli.StringFlag{
				Name:    "index",
				Usage:   "ZipNum .idx file to search (mutually exclusive with --file)",
				Sources: flagSources("search.index", "CDXT_SEARCH_INDEX"),
			},
			&cli.StringFlag{
				Name:    "match-type",
				Usage:   "exact, prefix, host, or domain",
				Sources: flagSources("search.match-type", "CDXT_SEARCH_MATCH_TYPE"),
				Value:   string(surt.Exact),
			},
			&cli.StringFlag{
				Name:    "from",
				Usage:   "Timestamp range lower bound (flexible precision)",
				Sources: flagSources("search.from", "CDXT_SEARCH_FROM"),
			},
			&cli.StringFlag{
				Name:    "to",
				Usage:   "Timestamp range upper bound (flexible precision)",
				Sources: flagSources("search.to", "CDXT_SEARCH_TO"),
			},
			&cli.StringSliceFlag{
				Name:    "filter",
				Usage:   "Field predicate(s): field=value, field!=value, field~re, field!~re (repeatable, AND-combined)",
				Sources: flagSources("search.filter", "CDXT_SEARCH_FILTER"),
			},
			&cli.BoolFlag{
				Name:    "sort",
				Usage:   "Re-sort the result set by (surt, timestamp); forces materialization",
				Sources: flagSources("search.sort", "CDXT_SEARCH_SORT"),
			},
			&cli.BoolFlag{
				Name:    "dedupe",
				Usage:   "Remove consecutive duplicate (surt, timestamp) pairs; forces materialization",
				Sources: flagSources("search.dedupe", "CDXT_SEARCH_DEDUPE"),
			},
			&cli.IntFlag{
				Name:    "limit",
				Usage:   "Truncate the result set to N lines; forces materialization",
				Sources: flagSources("search.limit", "CDXT_SEARCH_LIMIT"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output path, or \"-\" for stdout",
				Sources: flagSources("search.output", "CDXT_SEARCH_OUTPUT"),
				Value:   "-",
			},
		},
		Action: searchAction(),
	}
}

func searchAction() cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		log := zerolog.Ctx(ctx).With().Str("cmd", "search").Logger()
		ctx = log.WithContext(ctx)

		args := cmd.Args().Slice()
		if len(args) == 0 {
			return fmt.Errorf("search: a URL or SURT argument is required")
		}

		matchType := surt.MatchType(cmd.String("match-type"))

		searchKey, prefixMatch, err := surt.Expand(args[0], matchType)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		target := search.Target{FlatPath: cmd.String("file"), IdxPath: cmd.String("index")}
		if (target.FlatPath == "") == (target.IdxPath == "") {
			return fmt.Errorf("search: exactly one of --file or --index is required")
		}

		ops, err := buildPostOps(cmd)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		out, closeOut, err := openOutput(cmd.String("output"))
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		defer closeOut()

		bw := bufio.NewWriterSize(out, 1<<20)
		defer bw.Flush()

		n, err := search.Run(ctx, target, search.Query{SearchKey: searchKey, PrefixMatch: prefixMatch}, ops, func(line []byte) error {
			_, werr := bw.Write(ensureNL(line))

			return werr
		})
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		if err := bw.Flush(); err != nil {
			return fmt.Errorf("search: %w", err)
		}

		log.Info().Int("matches", n).Msg("search complete")

		reg := metrics.New("cdxt_search")
		reg.LinesProcessed.Add(float64(n))
		reportMetrics(ctx, cmd, reg)

		return nil
	}
}

func buildPostOps(cmd *cli.Command) (search.PostOps, error) {
	var ops search.PostOps

	if from, to := cmd.String("from"), cmd.String("to"); from != "" || to != "" {
		ops.Range = &search.TimestampRange{From: from, To: to}
	}

	for _, expr := range cmd.StringSlice("filter") {
		p, err := search.CompilePredicate(expr)
		if err != nil {
			return ops, err
		}

		ops.Preds = append(ops.Preds, p)
	}

	ops.Sort = cmd.Bool("sort")
	ops.Dedupe = cmd.Bool("dedupe")
	ops.Limit = int(cmd.Int("limit"))

	return ops, nil
}

func ensureNL(b []byte) []byte {
	if len(b) == 0 || b[len(b)-1] != '\n' {
		return append(append([]byte(nil), b...), '\n')
	}

	return b
}
