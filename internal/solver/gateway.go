package solver

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/nkarpov/solvd/internal/config"
	"github.com/nkarpov/solvd/internal/engine"
)

// Gateway is the single point of contact with the inference engine. The
// orchestrator depends on this interface so it can be tested with a fake.
type Gateway interface {
	// Initialize ensures the model artifact is available and loaded.
	// Idempotent once successful.
	Initialize(ctx context.Context) error

	// CreateSession opens a new conversational context. Bounded by the
	// configured creation ceiling; failing fast beats hanging when
	// accumulated sessions have exhausted the engine.
	CreateSession(ctx context.Context, supportsImage bool) (SessionHandle, error)

	// SendAndStream sends one multimodal user turn and returns the lazy
	// token sequence of the reply.
	SendAndStream(ctx context.Context, s SessionHandle, text string, image []byte) iter.Seq2[string, error]

	// ReleaseSession drops tracking for a session whose last turn is
	// complete. Keeps the live-session count bounded between resets.
	ReleaseSession(s SessionHandle)

	// Reset tears down session tracking and the loaded model, then reloads
	// from scratch. Invalidates all previously issued session handles.
	Reset(ctx context.Context) error
}

// ModelGateway implements Gateway against the local inference engine.
type ModelGateway struct {
	client *engine.Client
	prov   *engine.Provisioner
	pool   *SessionPool
	cfg    config.EngineConfig
	logger *slog.Logger

	mu    sync.Mutex
	model *engine.Model
}

// NewModelGateway creates a gateway over the given engine client and
// provisioner. The pool is shared so callers can observe session accounting.
func NewModelGateway(client *engine.Client, prov *engine.Provisioner, pool *SessionPool, cfg config.EngineConfig, logger *slog.Logger) *ModelGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelGateway{
		client: client,
		prov:   prov,
		pool:   pool,
		cfg:    cfg,
		logger: logger,
	}
}

// Pool returns the session pool backing this gateway.
func (g *ModelGateway) Pool() *SessionPool {
	return g.pool
}

// Initialize ensures the model artifact is available and loaded into the
// engine. Safe to call repeatedly.
func (g *ModelGateway) Initialize(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initializeLocked(ctx)
}

func (g *ModelGateway) initializeLocked(ctx context.Context) error {
	if g.model != nil {
		return nil
	}

	path, err := g.prov.EnsureModel(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	opts := engine.Options{
		MaxTokens:      g.cfg.MaxTokens,
		SupportsImages: g.cfg.SupportsImages,
	}
	model, err := g.client.LoadModel(ctx, g.cfg.ModelName, opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	g.logger.Info("model gateway initialized", "model", g.cfg.ModelName, "artifact", path)
	g.model = model
	return nil
}

// CreateSession opens a tracked conversational context against the loaded
// model.
func (g *ModelGateway) CreateSession(ctx context.Context, supportsImage bool) (SessionHandle, error) {
	g.mu.Lock()
	if err := g.initializeLocked(ctx); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	model := g.model
	g.mu.Unlock()

	createCtx, cancel := context.WithTimeout(ctx, g.cfg.SessionCreateTimeout)
	defer cancel()

	sess, err := model.NewSession(createCtx, supportsImage)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: engine likely exhausted by accumulated sessions",
				ErrSessionCreationTimeout, g.cfg.SessionCreateTimeout)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	g.pool.Track(sess)
	return sess, nil
}

// SendAndStream sends one user turn on the session and returns the reply's
// token sequence, bounded by the configured solve timeout. Consuming the full
// sequence yields the complete reply; stopping early is the cancellation
// lever.
func (g *ModelGateway) SendAndStream(ctx context.Context, s SessionHandle, text string, image []byte) iter.Seq2[string, error] {
	s.Send(engine.Message{Text: text, FromUser: true, Image: image})

	if g.cfg.SolveTimeout <= 0 {
		return s.Stream(ctx)
	}
	return func(yield func(string, error) bool) {
		streamCtx, cancel := context.WithTimeout(ctx, g.cfg.SolveTimeout)
		defer cancel()
		for token, err := range s.Stream(streamCtx) {
			if !yield(token, err) {
				return
			}
		}
	}
}

// ReleaseSession removes a finished session from pool tracking.
func (g *ModelGateway) ReleaseSession(s SessionHandle) {
	g.pool.Release(s)
}

// Reset releases all tracked sessions, evicts the model and reloads it.
// The one operation guaranteed to reclaim engine-side memory.
func (g *ModelGateway) Reset(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pool.ReleaseAll()

	if g.model != nil {
		if err := g.model.Close(ctx); err != nil {
			// Reload proceeds anyway; the fresh load supersedes the old
			// instance either way.
			g.logger.Warn("model close during reset failed", "error", err)
		}
		g.model = nil
	}

	return g.initializeLocked(ctx)
}
