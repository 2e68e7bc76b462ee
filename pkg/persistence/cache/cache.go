// Package cache provides a read-through redis cache in front of another
// persistence gateway. Documents are stored as snappy-compressed JSON and
// only loads fill the cache; writes evict.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/persistence"
	"github.com/golang/snappy"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultTTL = 10 * time.Minute
	keyPrefix  = "nodegraph:node:"
)

// Client is the subset of redis commands the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Persistence decorates a gateway with a document cache. Cache failures are
// logged and never fail the underlying operation.
type Persistence struct {
	next   persistence.Gateway
	client Client
	ttl    time.Duration
	logger *slog.Logger
	closer func() error
}

// NewPersistence connects to redisURL and wraps next.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string, next persistence.Gateway) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rc := redis.NewClient(opts)
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()

		return nil, fmt.Errorf("%w: redis ping: %w", persistence.ErrUnreachable, err)
	}

	p := NewWithClient(logger, rc, next, DefaultTTL)
	p.closer = rc.Close

	return p, nil
}

// NewWithClient wraps next using an existing redis client.
func NewWithClient(logger *slog.Logger, client Client, next persistence.Gateway, ttl time.Duration) *Persistence {
	return &Persistence{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.With("module", "persistence_cache"),
	}
}

func key(nodeID string) string {
	return keyPrefix + nodeID
}

// SaveNodeData writes through to the backing gateway and evicts the entry,
// so concurrent saves can never leave an older document cached.
func (p *Persistence) SaveNodeData(ctx context.Context, nodeID string, doc *models.NodeDocument) error {
	err := p.next.SaveNodeData(ctx, nodeID, doc)
	p.evict(ctx, nodeID)

	return err
}

func (p *Persistence) LoadNodeData(ctx context.Context, nodeID string) (*models.NodeDocument, error) {
	raw, err := p.client.Get(ctx, key(nodeID)).Bytes()

	switch {
	case err == nil:
		doc, decodeErr := decode(raw)
		if decodeErr == nil {
			return doc, nil
		}

		p.logger.Warn("Discarding unreadable cache entry", "node_id", nodeID, "error", decodeErr)
		p.evict(ctx, nodeID)
	case !errors.Is(err, redis.Nil):
		p.logger.Warn("Cache read failed", "node_id", nodeID, "error", err)
	}

	doc, err := p.next.LoadNodeData(ctx, nodeID)
	if err != nil {
		return nil, err
	}

	if doc != nil {
		p.store(ctx, nodeID, doc)
	}

	return doc, nil
}

func (p *Persistence) DeleteNodeData(ctx context.Context, nodeID string) error {
	p.evict(ctx, nodeID)

	return p.next.DeleteNodeData(ctx, nodeID)
}

func (p *Persistence) SaveNodeFile(ctx context.Context, nodeID, fileName string, data []byte) (string, error) {
	return p.next.SaveNodeFile(ctx, nodeID, fileName, data)
}

func (p *Persistence) LoadNodeFile(ctx context.Context, nodeID, fileName string) ([]byte, error) {
	return p.next.LoadNodeFile(ctx, nodeID, fileName)
}

func (p *Persistence) DeleteNodeFile(ctx context.Context, nodeID, fileName string) error {
	return p.next.DeleteNodeFile(ctx, nodeID, fileName)
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %w", persistence.ErrUnreachable, err)
	}

	return p.next.HealthCheck(ctx)
}

func (p *Persistence) Close(ctx context.Context) error {
	var errs []error

	if p.closer != nil {
		errs = append(errs, p.closer())
	}

	errs = append(errs, p.next.Close(ctx))

	return errors.Join(errs...)
}

func (p *Persistence) store(ctx context.Context, nodeID string, doc *models.NodeDocument) {
	raw, err := encode(doc)
	if err != nil {
		p.logger.Warn("Failed to encode cache entry", "node_id", nodeID, "error", err)

		return
	}

	if err := p.client.Set(ctx, key(nodeID), raw, p.ttl).Err(); err != nil {
		p.logger.Warn("Cache write failed", "node_id", nodeID, "error", err)
	}
}

func (p *Persistence) evict(ctx context.Context, nodeID string) {
	if err := p.client.Del(ctx, key(nodeID)).Err(); err != nil {
		p.logger.Warn("Cache eviction failed", "node_id", nodeID, "error", err)
	}
}

func encode(doc *models.NodeDocument) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	return snappy.Encode(nil, data), nil
}

func decode(raw []byte) (*models.NodeDocument, error) {
	data, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil, err
	}

	var doc models.NodeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	return &doc, nil
}
