package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/nodegraph/pkg/eventbus"
	"github.com/dukex/nodegraph/pkg/events"
	"github.com/dukex/nodegraph/pkg/graph"
	"github.com/dukex/nodegraph/pkg/metrics"
	"github.com/dukex/nodegraph/pkg/persistence"
	"github.com/dukex/nodegraph/pkg/transport"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"
)

// Session is one open editor graph.
type Session struct {
	Store  *graph.Store
	Bridge *transport.Bridge

	cancel    context.CancelFunc
	listening sync.WaitGroup
}

// Sessions owns every open editor session. Each session gets its own
// graph store; nothing is shared between them but the gateway and the
// schema source.
type Sessions struct {
	schemas   graph.SchemaSource
	gateway   persistence.Gateway
	publisher eventbus.EventPublisher
	executor  *transport.Executor
	logger    *slog.Logger
	metrics   *metrics.Registry
	tracer    trace.Tracer
	validate  *validator.Validate

	mu       sync.Mutex
	sessions map[string]*Session
}

type Option func(*Sessions)

// WithPublisher relays graph changes and execution results as events.
func WithPublisher(p eventbus.EventPublisher) Option {
	return func(s *Sessions) { s.publisher = p }
}

// WithExecutor enables Run and keeps a push channel open per session.
func WithExecutor(e *transport.Executor) Option {
	return func(s *Sessions) { s.executor = e }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sessions) { s.logger = logger }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(s *Sessions) { s.metrics = m }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Sessions) { s.tracer = tracer }
}

func NewSessions(schemas graph.SchemaSource, gateway persistence.Gateway, opts ...Option) *Sessions {
	s := &Sessions{
		schemas:  schemas,
		gateway:  gateway,
		logger:   slog.Default(),
		validate: validator.New(),
		sessions: make(map[string]*Session),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("module", "sessions")

	return s
}

func (s *Sessions) validateID(op, sid string) error {
	if err := s.validate.Var(sid, "required,max=128,printascii,excludesall=/?# "); err != nil {
		return NewValidationError(op, "INVALID_SESSION_ID", fmt.Sprintf("invalid session id %q", sid), ErrInvalidSessionID)
	}

	return nil
}

// Open returns the session for sid, creating it on first use.
func (s *Sessions) Open(sid string) (*Session, error) {
	if err := s.validateID("open", sid); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[sid]; ok {
		return session, nil
	}

	sid = strings.Clone(sid)

	session := s.newSession(sid)
	s.sessions[sid] = session

	s.logger.Info("Session opened", "session", sid)

	return session, nil
}

func (s *Sessions) newSession(sid string) *Session {
	opts := []graph.Option{
		graph.WithLogger(s.logger),
		graph.WithMetrics(s.metrics),
	}

	if s.tracer != nil {
		opts = append(opts, graph.WithTracer(s.tracer))
	}

	if s.publisher != nil {
		opts = append(opts, graph.WithChangeHandler(s.relay(sid)))
	}

	session := &Session{Store: graph.NewStore(sid, s.schemas, s.gateway, opts...)}
	var bridgeOpts []transport.BridgeOption
	if s.tracer != nil {
		bridgeOpts = append(bridgeOpts, transport.WithBridgeTracer(s.tracer))
	}

	session.Bridge = transport.NewBridge(session.Store, s.publisher, s.logger, s.metrics, bridgeOpts...)

	if s.executor == nil {
		return session
	}

	url, err := s.executor.StreamURL(sid)
	if err != nil {
		s.logger.Warn("Push channel disabled", "session", sid, "error", err)

		return session
	}

	ctx, cancel := context.WithCancel(context.Background())
	session.cancel = cancel
	listener := transport.NewListener(url, session.Bridge, s.logger)

	session.listening.Add(1)

	go func() {
		defer session.listening.Done()

		_ = listener.Run(ctx)
	}()

	return session
}

// relay publishes every committed change of session sid.
func (s *Sessions) relay(sid string) graph.ChangeHandler {
	return func(c graph.Change) {
		event := events.GraphChanged{
			BaseEvent: events.NewBaseEvent(events.GraphChangedEvent, sid),
			Change:    string(c.Kind),
			NodeID:    c.NodeID,
			EdgeID:    c.EdgeID,
			Param:     c.Param,
		}

		if err := s.publisher.Publish(context.Background(), sid, event); err != nil {
			s.logger.Warn("Failed to publish graph change", "session", sid, "change", c.Kind, "error", err)
		}
	}
}

// Get returns an open session.
func (s *Sessions) Get(sid string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sid]
	if !ok {
		return nil, &ServiceError{Op: "get", Code: "SESSION_NOT_FOUND", Message: fmt.Sprintf("session %q not found", sid), Err: ErrSessionNotFound}
	}

	return session, nil
}

// IDs lists open sessions in lexical order.
func (s *Sessions) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Close tears down the session: the push channel is closed and pending
// writes are flushed.
func (s *Sessions) Close(sid string) error {
	s.mu.Lock()
	session, ok := s.sessions[sid]
	delete(s.sessions, sid)
	s.mu.Unlock()

	if !ok {
		return &ServiceError{Op: "close", Code: "SESSION_NOT_FOUND", Message: fmt.Sprintf("session %q not found", sid), Err: ErrSessionNotFound}
	}

	s.teardown(session)
	s.logger.Info("Session closed", "session", sid)

	return nil
}

func (s *Sessions) teardown(session *Session) {
	if session.cancel != nil {
		session.cancel()
	}

	session.listening.Wait()
	session.Store.Flush()
	s.metrics.ForgetSession(session.Store.SessionID())
}

// Shutdown closes every session.
func (s *Sessions) Shutdown() {
	s.mu.Lock()
	open := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range open {
		s.teardown(session)
	}
}

// Run exports the session's graph and submits it for execution.
func (s *Sessions) Run(ctx context.Context, sid string) (*transport.RunResult, error) {
	if s.executor == nil {
		return nil, ErrExecutionDisabled
	}

	session, err := s.Get(sid)
	if err != nil {
		return nil, err
	}

	export := session.Store.Export()
	if len(export.Paths) == 0 {
		return nil, NewValidationError("run", "NOTHING_TO_RUN", "graph has no executable path", ErrNothingToRun)
	}

	// The execution service addresses results by the id it assigned.
	if remote := session.Bridge.RemoteSID(); remote != "" {
		export.SID = remote
	}

	result, err := s.executor.Run(ctx, export)
	if err != nil {
		return nil, fmt.Errorf("failed to run graph: %w", err)
	}

	s.logger.InfoContext(ctx, "Graph submitted", "session", sid, "paths", len(export.Paths), "run_id", result.ID)

	return result, nil
}

// HealthCheck reports the gateway's health.
func (s *Sessions) HealthCheck(ctx context.Context) error {
	if err := s.gateway.HealthCheck(ctx); err != nil {
		return errors.Join(errors.New("persistence unhealthy"), err)
	}

	return nil
}
