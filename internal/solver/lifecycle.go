package solver

import (
	"sync"
)

// Phase is the app-visibility state for an in-flight solve. Transitions are
// explicit rather than derived from flag combinations, so reconciliation
// after a background stint cannot observe a half-updated state.
type Phase int

const (
	// PhaseForeground: the app is visible; tokens flow to the UI directly.
	PhaseForeground Phase = iota
	// PhaseTransitioningToBackground: a background request was received but
	// the progress notification has not been posted yet.
	PhaseTransitioningToBackground
	// PhaseBackground: solving continues while the app is not visible.
	PhaseBackground
	// PhaseReconciling: the app returned and the outcome is being resolved.
	PhaseReconciling
)

func (p Phase) String() string {
	switch p {
	case PhaseForeground:
		return "foreground"
	case PhaseTransitioningToBackground:
		return "transitioning"
	case PhaseBackground:
		return "background"
	case PhaseReconciling:
		return "reconciling"
	default:
		return "unknown"
	}
}

// Lifecycle tracks background/foreground state for the orchestrator.
type Lifecycle struct {
	mu        sync.Mutex
	phase     Phase
	problemID string
}

// NewLifecycle starts in the foreground phase.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{phase: PhaseForeground}
}

// Snapshot returns the current phase and the problem it applies to.
func (l *Lifecycle) Snapshot() (Phase, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase, l.problemID
}

// InBackground reports whether the given problem is in background mode
// (including the transition into it).
func (l *Lifecycle) InBackground(problemID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.problemID != problemID {
		return false
	}
	return l.phase == PhaseBackground || l.phase == PhaseTransitioningToBackground
}

// BeginBackground marks the start of a background transition for a problem.
func (l *Lifecycle) BeginBackground(problemID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phase = PhaseTransitioningToBackground
	l.problemID = problemID
}

// ConfirmBackground completes the transition once the progress notification
// is posted.
func (l *Lifecycle) ConfirmBackground() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == PhaseTransitioningToBackground {
		l.phase = PhaseBackground
	}
}

// BeginReconcile moves to the reconciling phase. Returns false when the
// problem was never in background mode, in which case there is nothing to
// reconcile.
func (l *Lifecycle) BeginReconcile(problemID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.problemID != problemID {
		return false
	}
	if l.phase != PhaseBackground && l.phase != PhaseTransitioningToBackground {
		return false
	}
	l.phase = PhaseReconciling
	return true
}

// ResolveForeground ends reconciliation with a known outcome: background mode
// is cleared.
func (l *Lifecycle) ResolveForeground() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phase = PhaseForeground
	l.problemID = ""
}

// ResolveBackground ends reconciliation without a verdict: background mode
// stays active. Preferring a longer indeterminate wait over presenting a
// false failure.
func (l *Lifecycle) ResolveBackground() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.phase == PhaseReconciling {
		l.phase = PhaseBackground
	}
}
