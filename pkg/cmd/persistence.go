// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dukex/nodegraph/pkg/persistence"
	"github.com/dukex/nodegraph/pkg/persistence/cache"
	"github.com/dukex/nodegraph/pkg/persistence/file"
	"github.com/dukex/nodegraph/pkg/persistence/postgresql"
	"github.com/dukex/nodegraph/pkg/persistence/remote"
	"github.com/dukex/nodegraph/pkg/persistence/s3"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql", "s3", "http", "https"}

// NewPersistence picks a gateway from the scheme of databaseURL. A bare
// path is a file store. When redisURL is set, documents are cached in
// Redis in front of the gateway.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL, redisURL string) (persistence.Gateway, error) {
	gateway, err := newGateway(ctx, logger, databaseURL)
	if err != nil {
		return nil, err
	}

	if redisURL == "" {
		return gateway, nil
	}

	cached, err := cache.NewPersistence(ctx, logger, redisURL, gateway)
	if err != nil {
		_ = gateway.Close(ctx)

		return nil, err
	}

	return cached, nil
}

func newGateway(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Gateway, error) {
	switch provider := parsePersistenceProvider(databaseURL); provider {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)

	case "s3":
		opts, err := parseS3URL(databaseURL)
		if err != nil {
			return nil, err
		}

		return s3.NewPersistence(ctx, logger, opts)

	case "http", "https":
		return remote.NewPersistence(databaseURL), nil

	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}

// parseS3URL reads s3://bucket/prefix?region=...&endpoint=...
func parseS3URL(raw string) (s3.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return s3.Options{}, fmt.Errorf("invalid s3 url: %w", err)
	}

	if u.Host == "" {
		return s3.Options{}, fmt.Errorf("invalid s3 url %q: missing bucket", raw)
	}

	q := u.Query()

	return s3.Options{
		Bucket:   u.Host,
		Prefix:   strings.Trim(u.Path, "/"),
		Region:   q.Get("region"),
		Endpoint: q.Get("endpoint"),
	}, nil
}
