// Package cmd assembles the cdxt CLI: a urfave/cli/v3 root command with
// one subcommand per pipeline operation, config-file/env/flag layering
// via urfave/cli-altsrc, and a zerolog logger attached to the command
// context in Before.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/json"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/arquivo/replay-cdxj-indexing-tools/pkg/metrics"
)

// Version is set via ldflags at build time.
//
//nolint:gochecknoglobals
var Version = "dev"

type flagSourcesFn func(configFileKey, envVar string) cli.ValueSourceChain

// New builds the root cdxt command.
func New() *cli.Command {
	var configPath string

	flagSources := func(configFileKey, envVar string) cli.ValueSourceChain {
		return cli.NewValueSourceChain(
			toml.TOML(configFileKey, altsrc.NewStringPtrSourcer(&configPath)),
			yaml.YAML(configFileKey, altsrc.NewStringPtrSourcer(&configPath)),
			json.JSON(configFileKey, altsrc.NewStringPtrSourcer(&configPath)),
			cli.EnvVar(envVar),
		)
	}

	return &cli.Command{
		Name:    "cdxt",
		Usage:   "CDXJ merge, filter, ZipNum index, and search toolkit",
		Version: Version,
		Before:  rootBefore(flagSources),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Set the log level (debug, info, warn, error)",
				Sources: flagSources("log.level", "CDXT_LOG_LEVEL"),
				Value:   "info",
				Validator: func(lvl string) error {
					_, err := zerolog.ParseLevel(lvl)

					return err
				},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Raise log level to debug and emit per-stage summary counters",
				Sources: flagSources("verbose", "CDXT_VERBOSE"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Worker pool size for ZipNum encode/decode (0 = default of 4)",
				Sources: flagSources("workers", "CDXT_WORKERS"),
			},
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Path to the configuration file (toml, yaml, json)",
				Sources:     cli.EnvVars("CDXT_CONFIG_FILE"),
				Destination: &configPath,
			},
		},
		Commands: []*cli.Command{
			mergeCommand(flagSources),
			blocklistCommand(flagSources),
			excessiveCommand(flagSources),
			addfieldCommand(flagSources),
			zipnumEncodeCommand(flagSources),
			zipnumDecodeCommand(flagSources),
			searchCommand(flagSources),
			discoverCommand(flagSources),
		},
	}
}

func rootBefore(_ flagSourcesFn) cli.BeforeFunc {
	return func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		logLvl := cmd.String("log-level")
		if cmd.Bool("verbose") {
			logLvl = "debug"
		}

		lvl, err := zerolog.ParseLevel(logLvl)
		if err != nil {
			return ctx, fmt.Errorf("parsing log-level %q: %w", logLvl, err)
		}

		var output zerolog.ConsoleWriter
		useConsole := term.IsTerminal(int(os.Stderr.Fd()))

		var logger zerolog.Logger
		if useConsole {
			output = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
			logger = zerolog.New(output)
		} else {
			logger = zerolog.New(os.Stderr)
		}

		ctx = logger.Level(lvl).With().Timestamp().Logger().WithContext(ctx)

		return ctx, nil
	}
}

// reportMetrics dumps reg's counters to stderr as plain text when
// --verbose is set. A dump failure is logged, not returned: a
// metrics-reporting glitch should never fail an otherwise successful run.
func reportMetrics(ctx context.Context, cmd *cli.Command, reg *metrics.Registry) {
	if !cmd.Bool("verbose") {
		return
	}

	if err := reg.DumpText(os.Stderr); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("dumping metrics")
	}
}

// openInput resolves "-" to stdin, otherwise opens path for reading.
func openInput(path string) (*os.File, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	return f, func() { f.Close() }, nil
}

// openOutput resolves "-" to stdout, otherwise opens path for writing
// (truncating). Subcommands that need atomic-rename semantics use
// pkg/atomicfile directly instead of this helper.
func openOutput(path string) (*os.File, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}

	return f, func() { f.Close() }, nil
}
