package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dukex/stockflow/pkg/cmd"
	"github.com/dukex/stockflow/pkg/registry"
	"github.com/urfave/cli/v3"
)

func NewActionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "actions",
		Usage: "List the actions automated steps can execute",
		Action: func(_ context.Context, _ *cli.Command) error {
			listActions(os.Stdout, cmd.NewRegistry(slog.New(slog.DiscardHandler)))

			return nil
		},
	}
}

func listActions(w io.Writer, reg *registry.Registry) {
	for _, factory := range reg.Actions() {
		_, _ = fmt.Fprintf(w, "%-14s %s\n", factory.ID(), factory.Description())
	}
}
