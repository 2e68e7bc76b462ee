package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/nodegraph/pkg/registry"
)

// NewRegistry loads the static catalog at path, then merges the execution
// service's catalog when workerURL is set. A failed fetch is logged; the
// static catalog still serves. A non-empty refresh schedule keeps the
// fetched catalog current.
func NewRegistry(ctx context.Context, log *slog.Logger, path, workerURL, refresh string) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	if path != "" {
		if err := reg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if workerURL == "" {
		return reg, nil
	}

	if err := reg.Fetch(ctx, workerURL); err != nil {
		log.Warn("Failed to fetch node catalog, using static catalog", "url", workerURL, "error", err)
	}

	if refresh != "" {
		if err := reg.StartRefresh(workerURL, refresh); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
