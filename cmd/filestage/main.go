// Package main provides the filestage command line: a server staging the output files
// of executions for download, and an offline resolver for trying declarations out.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/filestage/pkg/log"
)

func main() {
	logger := log.WithModule("filestage")

	cmd := &cli.Command{
		Name:                  "filestage",
		Usage:                 "Collect and serve the output files of script executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"))

			return ctx, nil
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewResolveCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
