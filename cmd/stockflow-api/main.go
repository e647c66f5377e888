package main

import (
	"context"
	"os"

	"github.com/dukex/stockflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("api")

	cmd := &cli.Command{
		Name:                  "stockflow-api",
		Usage:                 "Serve the stockflow approval workflow API",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			RunAPICommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("stockflow-api failed", "error", err)
		os.Exit(1)
	}
}
