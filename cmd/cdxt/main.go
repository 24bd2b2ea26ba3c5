// Command cdxt is the CLI front-end for the CDXJ merge/filter/ZipNum
// pipeline: one subcommand per operation, config-file and
// environment-variable layering via urfave/cli-altsrc, and structured
// zerolog output.
package main

import (
	"context"
	"log"
	"os"

	_ "go.uber.org/automaxprocs" // container-aware GOMAXPROCS before flags parse

	"github.com/arquivo/replay-cdxj-indexing-tools/cmd/cdxt/cmd"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	if err := cmd.New().Run(context.Background(), os.Args); err != nil {
		log.Printf("error running cdxt: %s", err)

		return 1
	}

	return 0
}
