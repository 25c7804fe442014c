// Package stream provides live token streaming over WebSockets.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/nkarpov/solvd/internal/domain"
)

const writeTimeout = 5 * time.Second

// Event is the wire shape for one stream message.
type Event struct {
	Type    string          `json:"type"`
	Content string          `json:"content,omitempty"`
	Message string          `json:"message,omitempty"`
	Problem *domain.Problem `json:"problem,omitempty"`
}

// Hub fans solving output out to subscribed WebSocket clients, one channel
// per problem. A problem is "live" from its first published token until Done
// or Fail; liveness is the authoritative still-solving signal during
// background reconciliation.
//
// All connection writes happen under the hub lock so each client sees tokens
// in publish order with no interleaved frames.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[*websocket.Conn]struct{}
	backlog map[string][]string
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:    make(map[string]map[*websocket.Conn]struct{}),
		backlog: make(map[string][]string),
	}
}

// Subscribe registers a connection for a problem's stream and replays any
// tokens already published for the in-flight solve.
func (h *Hub) Subscribe(problemID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[problemID]; !ok {
		h.subs[problemID] = make(map[*websocket.Conn]struct{})
	}
	h.subs[problemID][conn] = struct{}{}
	slog.Debug("stream subscriber added", "problem_id", problemID, "subscribers", len(h.subs[problemID]))

	for _, token := range h.backlog[problemID] {
		data, err := json.Marshal(Event{Type: "token", Content: token})
		if err != nil {
			slog.Error("failed to encode stream event", "error", err)
			continue
		}
		if !h.write(conn, data) {
			delete(h.subs[problemID], conn)
			return
		}
	}
}

// Unsubscribe removes a connection from a problem's stream.
func (h *Hub) Unsubscribe(problemID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.subs[problemID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subs, problemID)
		}
	}
}

// Publish forwards one token to all subscribers and marks the problem live.
func (h *Hub) Publish(problemID, token string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.backlog[problemID] = append(h.backlog[problemID], token)
	h.broadcast(problemID, Event{Type: "token", Content: token})
}

// Done announces a completed turn and ends the live stream. p carries the
// updated record for solve completions and is nil for conversation turns.
func (h *Hub) Done(problemID string, p *domain.Problem) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.broadcast(problemID, Event{Type: "done", Problem: p})
	delete(h.backlog, problemID)
}

// Fail announces a failed solve and ends the live stream.
func (h *Hub) Fail(problemID, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.broadcast(problemID, Event{Type: "error", Message: message})
	delete(h.backlog, problemID)
}

// Active reports whether a solve is currently streaming for the problem.
func (h *Hub) Active(problemID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.backlog[problemID]
	return ok
}

// CloseAll closes every subscribed connection. Called on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for problemID, conns := range h.subs {
		for conn := range conns {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		delete(h.subs, problemID)
	}
}

// broadcast writes an event to every subscriber, dropping connections that
// fail. Callers must hold h.mu.
func (h *Hub) broadcast(problemID string, ev Event) {
	conns, ok := h.subs[problemID]
	if !ok {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to encode stream event", "error", err)
		return
	}
	for conn := range conns {
		if !h.write(conn, data) {
			delete(conns, conn)
		}
	}
	if len(conns) == 0 {
		delete(h.subs, problemID)
	}
}

// write sends one frame and reports connection health only. Callers must
// hold h.mu.
func (h *Hub) write(conn *websocket.Conn, data []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("stream write failed, dropping subscriber", "error", err)
		return false
	}
	return true
}
