package stream

import (
	"testing"

	"github.com/coder/websocket"
	"github.com/nkarpov/solvd/internal/domain"
)

func TestHubLiveTracking(t *testing.T) {
	t.Parallel()

	h := NewHub()
	if h.Active("p1") {
		t.Error("problem should not be live before any token")
	}

	h.Publish("p1", "The ")
	h.Publish("p1", "answer")
	if !h.Active("p1") {
		t.Error("problem should be live after publishing")
	}
	if h.Active("p2") {
		t.Error("liveness must be per problem")
	}

	h.Done("p1", &domain.Problem{ID: "p1", Status: domain.StatusSolved})
	if h.Active("p1") {
		t.Error("problem should not be live after done")
	}
}

func TestHubFailEndsStream(t *testing.T) {
	t.Parallel()

	h := NewHub()
	h.Publish("p1", "partial")
	h.Fail("p1", "engine crashed")
	if h.Active("p1") {
		t.Error("problem should not be live after failure")
	}
}

func TestHubBacklogAccumulates(t *testing.T) {
	t.Parallel()

	h := NewHub()
	h.Publish("p1", "a")
	h.Publish("p1", "b")
	h.Publish("p1", "c")

	h.mu.Lock()
	got := append([]string(nil), h.backlog["p1"]...)
	h.mu.Unlock()

	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("backlog = %v, want [a b c]", got)
	}

	h.Done("p1", nil)
	h.mu.Lock()
	_, ok := h.backlog["p1"]
	h.mu.Unlock()
	if ok {
		t.Error("backlog must be cleared after done")
	}
}

func TestHubSubscriberBookkeeping(t *testing.T) {
	t.Parallel()

	h := NewHub()
	a, b := &websocket.Conn{}, &websocket.Conn{}

	h.Subscribe("p1", a)
	h.Subscribe("p1", b)

	h.mu.Lock()
	count := len(h.subs["p1"])
	h.mu.Unlock()
	if count != 2 {
		t.Fatalf("subscribers = %d, want 2", count)
	}

	h.Unsubscribe("p1", a)
	h.Unsubscribe("p1", b)

	h.mu.Lock()
	_, ok := h.subs["p1"]
	h.mu.Unlock()
	if ok {
		t.Error("empty subscriber set must be removed")
	}

	// Unsubscribing an unknown connection is a no-op.
	h.Unsubscribe("p2", a)
}
