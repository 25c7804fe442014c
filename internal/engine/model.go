package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Model is a handle to a loaded model instance. At most one Model is live per
// process; destroying and recreating it is the reset escape hatch.
type Model struct {
	client *Client
	name   string
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// LoadModel verifies the engine is up, pins the named model in memory and
// returns a handle to it.
func (c *Client) LoadModel(ctx context.Context, name string, opts Options) (*Model, error) {
	if err := c.Health(ctx); err != nil {
		return nil, fmt.Errorf("engine not ready: %w", err)
	}
	if err := c.Load(ctx, name, opts); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelRejected, name, err)
	}
	c.logger.Info("Model loaded", "model", name, "max_tokens", opts.MaxTokens)
	return &Model{client: c, name: name, opts: opts, logger: c.logger}, nil
}

// Close evicts the model from engine memory and invalidates all sessions
// issued from this handle.
func (m *Model) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if err := m.client.Unload(ctx, m.name); err != nil {
		return fmt.Errorf("unload model: %w", err)
	}
	m.logger.Info("Model unloaded", "model", m.name)
	return nil
}

// NewSession opens a fresh conversational context against the loaded model.
// Creation probes engine readiness; the caller bounds the wait via ctx
// (accumulated sessions are known to slow the engine down severely).
func (m *Model) NewSession(ctx context.Context, supportsImage bool) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrModelClosed
	}
	m.mu.Unlock()

	if err := m.waitReady(ctx); err != nil {
		return nil, err
	}

	opts := m.opts
	opts.SupportsImages = supportsImage
	return &Session{model: m, opts: opts}, nil
}

// waitReady polls engine health until it responds or ctx expires.
func (m *Model) waitReady(ctx context.Context) error {
	var lastErr error
	for {
		err := m.client.Health(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return fmt.Errorf("engine readiness: %w (last: %v)", ctx.Err(), lastErr)
			}
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Session is one conversational context. The transcript accumulates
// client-side; each Stream call replays it in full.
type Session struct {
	model *Model
	opts  Options

	mu       sync.Mutex
	messages []chatMessage
	pending  bool
}

// Send queues one turn onto the transcript. The reply is produced by the next
// Stream call.
func (s *Session) Send(msg Message) {
	role := "assistant"
	if msg.FromUser {
		role = "user"
	}
	wire := chatMessage{Role: role, Content: msg.Text}
	if len(msg.Image) > 0 {
		wire.Images = []string{base64.StdEncoding.EncodeToString(msg.Image)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, wire)
	if msg.FromUser {
		s.pending = true
	}
}

// Stream executes the queued transcript and yields reply fragments. Consuming
// the full sequence is required for a complete reply; stopping early keeps
// whatever arrived. Either way the assistant turn is appended to the
// transcript so follow-up turns see it.
func (s *Session) Stream(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.model.mu.Lock()
		closed := s.model.closed
		s.model.mu.Unlock()
		if closed {
			yield("", ErrModelClosed)
			return
		}

		s.mu.Lock()
		if !s.pending {
			s.mu.Unlock()
			yield("", fmt.Errorf("no user turn queued"))
			return
		}
		transcript := make([]chatMessage, len(s.messages))
		copy(transcript, s.messages)
		s.mu.Unlock()

		var reply strings.Builder
		for token, err := range s.model.client.ChatStream(ctx, s.model.name, transcript, s.opts) {
			if err != nil {
				s.finish(reply.String())
				yield("", err)
				return
			}
			reply.WriteString(token)
			if !yield(token, nil) {
				break
			}
		}
		s.finish(reply.String())
	}
}

// Transcript returns a copy of the accumulated turn contents, for diagnostics.
func (s *Session) Transcript() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Role + ": " + m.Content
	}
	return out
}

func (s *Session) finish(reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
	if reply != "" {
		s.messages = append(s.messages, chatMessage{Role: "assistant", Content: reply})
	}
}
