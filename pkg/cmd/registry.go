package cmd

import (
	"log/slog"

	"github.com/dukex/stockflow/pkg/actions/httprequest"
	"github.com/dukex/stockflow/pkg/registry"
)

// NewRegistry returns the default registry plus the actions that reach
// external systems.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewDefaultRegistry(logger)
	reg.RegisterAction(httprequest.NewActionFactory())

	return reg
}
