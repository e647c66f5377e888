package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dukex/stockflow/pkg/cmd"
	"github.com/dukex/stockflow/pkg/config"
	"github.com/dukex/stockflow/pkg/definition"
	"github.com/dukex/stockflow/pkg/models"
	"github.com/urfave/cli/v3"
)

var ErrInvalidChain = errors.New("chain definition is invalid")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate a chain definition against the schema and the governance limits",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Chain definition file (YAML or JSON)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "governance-config",
				Usage:   "Path to the governance YAML file",
				Sources: cli.EnvVars("GOVERNANCE_CONFIG"),
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			return validateDefinition(os.Stdout, command.String("file"), command.String("governance-config"))
		},
	}
}

// validateDefinition prints every violation of the definition and returns
// ErrInvalidChain when there is at least one.
func validateDefinition(w io.Writer, path, governancePath string) error {
	governanceConfig, err := config.LoadOrDefault(governancePath)
	if err != nil {
		return err
	}

	def, err := definition.LoadFile(path)
	if err != nil {
		var schemaErr *definition.SchemaError
		if !errors.As(err, &schemaErr) {
			return err
		}

		return report(w, path, schemaErr.Errors)
	}

	violations := governanceConfig.Validator().ValidateChain(def.Chain()).Violations
	violations = append(violations, unknownActions(def)...)

	return report(w, path, violations)
}

// unknownActions lists execute actions that name no registered action.
func unknownActions(def *definition.Definition) []string {
	reg := cmd.NewRegistry(slog.New(slog.DiscardHandler))
	known := make(map[string]bool)

	for _, factory := range reg.Actions() {
		known[factory.ID()] = true
	}

	var violations []string

	for _, step := range def.Steps {
		for _, action := range step.Actions {
			if action.Type == models.ActionTypeExecute && !known[action.Target] {
				violations = append(violations, fmt.Sprintf("Step %q executes unknown action %q", step.Name, action.Target))
			}
		}
	}

	return violations
}

func report(w io.Writer, path string, violations []string) error {
	if len(violations) == 0 {
		_, _ = fmt.Fprintf(w, "%s: valid\n", path)

		return nil
	}

	_, _ = fmt.Fprintf(w, "%s: %d violation(s)\n", path, len(violations))
	for _, violation := range violations {
		_, _ = fmt.Fprintf(w, "  - %s\n", violation)
	}

	return ErrInvalidChain
}
