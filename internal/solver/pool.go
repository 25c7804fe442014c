package solver

import (
	"context"
	"iter"
	"log/slog"
	"sync"

	"github.com/nkarpov/solvd/internal/engine"
)

// SessionHandle is an opaque conversational context with the engine.
type SessionHandle interface {
	Send(msg engine.Message)
	Stream(ctx context.Context) iter.Seq2[string, error]
}

// SessionPool tracks currently open engine sessions. The engine exposes no
// per-session disposal, so releasing only drops the pool's reference; the one
// guaranteed reclaim is a full model reset, which must be preceded by
// ReleaseAll to keep the accounting honest.
type SessionPool struct {
	mu     sync.Mutex
	active map[SessionHandle]struct{}
}

// NewSessionPool creates an empty session pool.
func NewSessionPool() *SessionPool {
	return &SessionPool{active: make(map[SessionHandle]struct{})}
}

// Track registers a session as active.
func (p *SessionPool) Track(s SessionHandle) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[s] = struct{}{}
}

// Release removes a session from tracking, making the handle eligible for
// reclamation.
func (p *SessionPool) Release(s SessionHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.active, s)
}

// ReleaseAll empties the tracked set. Called before any model reset and
// before creating a fresh session for a new problem phase.
func (p *SessionPool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.active) > 0 {
		slog.Debug("releasing tracked sessions", "count", len(p.active))
	}
	p.active = make(map[SessionHandle]struct{})
}

// Len returns the number of tracked sessions.
func (p *SessionPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}
