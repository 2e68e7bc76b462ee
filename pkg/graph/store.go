// Package graph implements the node graph store: connection rules, value
// propagation, execution path export and persistence synchronization.
package graph

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dukex/nodegraph/pkg/metrics"
	"github.com/dukex/nodegraph/pkg/models"
	"github.com/dukex/nodegraph/pkg/otelhelper"
	"github.com/dukex/nodegraph/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// SchemaSource resolves node type definitions.
type SchemaSource interface {
	Definition(nodeType string) (models.NodeDefinition, bool)
}

// Store owns the graph of one editor session. Writers are serialized and
// publish a fresh snapshot on every mutation, so readers never see a
// partially applied change. Persistence runs in the background and never
// blocks further edits.
type Store struct {
	sid      string
	schemas  SchemaSource
	gateway  persistence.Gateway
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics.Registry
	validate *validator.Validate
	onChange ChangeHandler

	mu     sync.Mutex
	state  atomic.Pointer[state]
	writes sync.WaitGroup

	// pending holds the completion of the last queued write per node id.
	qmu     sync.Mutex
	pending map[string]chan struct{}
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) { s.tracer = tracer }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(s *Store) { s.metrics = m }
}

// WithChangeHandler registers fn to be called after every committed change.
func WithChangeHandler(fn ChangeHandler) Option {
	return func(s *Store) { s.onChange = fn }
}

func NewStore(sid string, schemas SchemaSource, gateway persistence.Gateway, opts ...Option) *Store {
	s := &Store{
		sid:      strings.Clone(sid),
		schemas:  schemas,
		gateway:  gateway,
		logger:   slog.Default(),
		tracer:   otelhelper.DefaultTracer(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		pending:  make(map[string]chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("module", "graph", "session", s.sid)
	s.state.Store(emptyState())

	return s
}

func (s *Store) SessionID() string {
	return s.sid
}

// update runs fn on a transaction and swaps in the result. Document writes
// are queued in commit order; change handlers run after the new state is
// published.
func (s *Store) update(ctx context.Context, fn func(t *txn) error) error {
	s.mu.Lock()

	t := newTxn(s.state.Load())
	if err := fn(t); err != nil {
		s.mu.Unlock()

		return err
	}

	next := t.commit()
	s.state.Store(next)

	for _, id := range t.persist {
		if n, ok := next.node(id); ok {
			s.persist(ctx, id, models.DocumentFromNode(n))
		}
	}

	for _, id := range t.drop {
		s.enqueue(ctx, id, func(ctx context.Context) {
			if err := s.deleteDocument(ctx, id); err != nil {
				s.logger.Warn("Failed to delete removed node document", "node_id", id, "error", err)
			}
		})
	}

	s.mu.Unlock()

	s.metrics.SetGraphSize(s.sid, len(next.order), len(next.edges))

	if s.onChange != nil {
		for _, c := range t.changes {
			s.onChange(c)
		}
	}

	return nil
}

// persist writes doc in the background. Failures are logged; the in-memory
// graph stays authoritative.
func (s *Store) persist(ctx context.Context, nodeID string, doc *models.NodeDocument) {
	nodeID = strings.Clone(nodeID)

	s.enqueue(ctx, nodeID, func(ctx context.Context) {
		if err := s.saveDocument(ctx, nodeID, doc); err != nil {
			s.logger.Warn("Failed to persist node", "node_id", nodeID, "error", err)
		}
	})
}

// enqueue runs fn in the background after every write queued earlier for
// the same node. Callers hold s.mu so queue order follows commit order.
func (s *Store) enqueue(ctx context.Context, nodeID string, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	done := make(chan struct{})

	s.qmu.Lock()
	prev := s.pending[nodeID]
	s.pending[nodeID] = done
	s.qmu.Unlock()

	s.writes.Add(1)

	go func() {
		defer s.writes.Done()

		if prev != nil {
			<-prev
		}

		fn(ctx)
		close(done)

		s.qmu.Lock()
		if s.pending[nodeID] == done {
			delete(s.pending, nodeID)
		}
		s.qmu.Unlock()
	}()
}

// settle waits for the writes already queued for nodeID.
func (s *Store) settle(nodeID string) {
	s.qmu.Lock()
	last := s.pending[nodeID]
	s.qmu.Unlock()

	if last != nil {
		<-last
	}
}

// Flush waits for every in-flight persistence call.
func (s *Store) Flush() {
	s.writes.Wait()
}

func newNodeID(nodeType string) string {
	prefix := strings.TrimSpace(nodeType)
	if prefix == "" {
		prefix = "node"
	}

	return prefix + "-" + uuid.NewString()[:8]
}

func newEdgeID() string {
	return "edge-" + uuid.NewString()
}
