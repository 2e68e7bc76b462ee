package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dukex/nodegraph/pkg/graph"
	"github.com/dukex/nodegraph/pkg/models"
	cli "github.com/urfave/cli/v3"
)

func NewExportCommand() *cli.Command {
	return &cli.Command{
		Name:    "export",
		Aliases: []string{"e"},
		Usage:   "Print the execution document of a saved graph",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "graph",
				Aliases:  []string{"g"},
				Usage:    "Path to a graph JSON file ({nodes, edges})",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "sid",
				Usage: "Session id written into the document",
				Value: "cli",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			return exportGraph(ctx, command.String("graph"), command.String("sid"), command.Root().Writer)
		},
	}
}

// exportGraph loads the graph at path through a store, so dangling and
// duplicate edges are dropped exactly as in an editor session.
func exportGraph(ctx context.Context, path, sid string, out io.Writer) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read graph: %w", err)
	}

	var g models.Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return fmt.Errorf("failed to parse graph %s: %w", path, err)
	}

	store := graph.NewStore(sid, nil, nil)
	if err := store.Restore(ctx, g); err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(store.Export())
}
