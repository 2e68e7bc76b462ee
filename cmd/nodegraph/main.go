// Package main provides the nodegraph editor server and its tooling.
package main

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/dukex/nodegraph/pkg/log"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("nodegraph")

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Failed to load .env file", "error", err)
	}

	command := NewRootCommand()

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "nodegraph",
		Usage:                 "Edit node graphs and submit them for execution",
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
			NewRunCommand(),
			NewExportCommand(),
			NewValidateCommand(),
		},
	}
}
