// Command rtagsd is the indexing daemon: it owns the project registry,
// the preprocess and local-worker pools, the peer transport, and the
// scheduler that ties them together (spec §2). Flag parsing, config
// loading, and component wiring live in internal/cli's "run" command;
// this file is only the process entry point.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/rosrad/rtagsd/internal/cli"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
