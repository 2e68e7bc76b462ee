// Package registry holds the catalog of node type definitions: a static
// catalog loaded from YAML plus entries fetched from the execution service.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dukex/nodegraph/pkg/models"
	"github.com/gofiber/fiber/v3/client"
	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidCatalog = errors.New("invalid node catalog")
	ErrEmptyCatalog   = errors.New("node catalog is empty")
)

// Catalog is the serialized catalog shared by the YAML file and the
// execution service's /nodes endpoint.
type Catalog struct {
	Nodes []models.RawNodeDefinition `json:"nodes" yaml:"nodes"`
}

type Registry struct {
	logger *slog.Logger
	client *client.Client

	mu      sync.RWMutex
	static  map[string]models.NodeDefinition
	fetched map[string]models.NodeDefinition

	cron *cron.Cron
}

func NewRegistry(log *slog.Logger) *Registry {
	cc := client.New()
	cc.SetTimeout(15 * time.Second)

	return &Registry{
		logger:  log.With("module", "registry"),
		client:  cc,
		static:  make(map[string]models.NodeDefinition),
		fetched: make(map[string]models.NodeDefinition),
	}
}

// Register adds a static definition, replacing any static entry of the
// same type.
func (r *Registry) Register(def models.NodeDefinition) error {
	if strings.TrimSpace(def.Type) == "" {
		return fmt.Errorf("%w: definition without type", ErrInvalidCatalog)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.static[def.Type] = def

	return nil
}

// Definition returns the definition of nodeType. Fetched entries take
// precedence over static ones.
func (r *Registry) Definition(nodeType string) (models.NodeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.fetched[nodeType]; ok {
		return def, true
	}

	def, ok := r.static[nodeType]

	return def, ok
}

// Schema returns the flattened parameter schema of nodeType. An unknown
// type yields an empty schema.
func (r *Registry) Schema(nodeType string) models.ParameterSchemaMap {
	def, ok := r.Definition(nodeType)
	if !ok {
		r.logger.Debug("Unknown node type, using empty schema", "type", nodeType)

		return models.ParameterSchemaMap{}
	}

	return def.Leaves()
}

// Types returns the known node types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.static)+len(r.fetched))
	for t := range r.static {
		types = append(types, t)
	}

	for t := range r.fetched {
		if _, dup := r.static[t]; !dup {
			types = append(types, t)
		}
	}

	slices.Sort(types)

	return types
}

// Definitions returns every effective definition sorted by type.
func (r *Registry) Definitions() []models.NodeDefinition {
	types := r.Types()
	defs := make([]models.NodeDefinition, 0, len(types))

	for _, t := range types {
		if def, ok := r.Definition(t); ok {
			defs = append(defs, def)
		}
	}

	return defs
}

// LoadFile reads a YAML catalog and registers its entries as static
// definitions.
func (r *Registry) LoadFile(path string) error {
	defs, err := ParseFile(path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	for _, def := range defs {
		r.static[def.Type] = def
	}
	r.mu.Unlock()

	r.logger.Info("Loaded node catalog", "path", path, "count", len(defs))

	return nil
}

// Fetch downloads the catalog from {baseURL}/nodes and replaces all
// previously fetched entries. On error the current entries are kept.
func (r *Registry) Fetch(ctx context.Context, baseURL string) error {
	target := strings.TrimRight(baseURL, "/") + "/nodes"

	resp, err := r.client.R().SetContext(ctx).Get(target)
	if err != nil {
		return fmt.Errorf("failed to fetch catalog from %s: %w", target, err)
	}
	defer resp.Close()

	if resp.StatusCode() >= 400 {
		return fmt.Errorf("failed to fetch catalog from %s: status %d", target, resp.StatusCode())
	}

	defs, err := ParseJSON(resp.Body())
	if err != nil {
		return err
	}

	fetched := make(map[string]models.NodeDefinition, len(defs))
	for _, def := range defs {
		fetched[def.Type] = def
	}

	r.mu.Lock()
	r.fetched = fetched
	r.mu.Unlock()

	r.logger.Info("Fetched node catalog", "url", target, "count", len(defs))

	return nil
}

// StartRefresh re-fetches the catalog on the given cron spec until Stop is
// called.
func (r *Registry) StartRefresh(baseURL, spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return errors.New("catalog refresh already running")
	}

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := r.Fetch(ctx, baseURL); err != nil {
			r.logger.Warn("Catalog refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule catalog refresh: %w", err)
	}

	c.Start()
	r.cron = c

	r.logger.Info("Catalog refresh scheduled", "schedule", spec)

	return nil
}

// Stop halts the refresh job and waits for a running fetch to finish.
func (r *Registry) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

func (r *Registry) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.static) == 0 && len(r.fetched) == 0 {
		return ErrEmptyCatalog
	}

	return nil
}
