package main

import (
	"context"
	"fmt"

	"github.com/dukex/nodegraph/pkg/registry"
	cli "github.com/urfave/cli/v3"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate a YAML node catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "registry-path",
				Usage:    "Path to the YAML node catalog",
				Required: true,
				Sources:  cli.EnvVars("REGISTRY_PATH"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.String("registry-path")
			out := command.Root().Writer

			defs, err := registry.ParseFile(path)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(out, "%s: %d node types\n", path, len(defs))

			for _, def := range defs {
				_, _ = fmt.Fprintf(out, "  %-24s %s.%s (%d params)\n", def.Type, def.Module, def.Action, len(def.Leaves()))
			}

			return nil
		},
	}
}
