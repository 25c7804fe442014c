// Package domain contains core domain types for the solvd application.
package domain

import (
	"time"
)

// InputKind identifies how a problem entered the system.
type InputKind string

const (
	// InputText means the user typed the problem.
	InputText InputKind = "text"
	// InputImage means the user photographed the problem.
	InputImage InputKind = "image"
)

// Status is a problem's lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusSolving Status = "solving"
	StatusSolved  Status = "solved"
	StatusError   Status = "error"
)

// statusRank orders the forward-only lifecycle. Error is reachable from
// anywhere and terminal.
var statusRank = map[Status]int{
	StatusPending: 0,
	StatusSolving: 1,
	StatusSolved:  2,
}

// CanTransition reports whether moving from s to next respects the lifecycle:
// pending -> solving -> solved, with any state allowed to move to error.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return false
	}
	if next == StatusError {
		return s != StatusError
	}
	if s == StatusError {
		return false
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Problem represents one user-submitted math problem and its lifecycle.
type Problem struct {
	ID            string    `json:"id"`
	OriginalInput string    `json:"original_input"`
	ExtractedText string    `json:"extracted_text,omitempty"`
	Title         string    `json:"title,omitempty"`
	Answer        string    `json:"answer,omitempty"`
	Explanation   string    `json:"explanation,omitempty"`
	InputKind     InputKind `json:"input_kind"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	ImagePNG      []byte    `json:"-"`
}

// SetStatus advances the problem's lifecycle state. Backward or repeated
// transitions are rejected so a solved or failed problem cannot silently
// regress.
func (p *Problem) SetStatus(next Status) error {
	if !p.Status.CanTransition(next) {
		return &StatusTransitionError{From: p.Status, To: next}
	}
	p.Status = next
	return nil
}

// Terminal reports whether the problem has reached a final state.
func (p *Problem) Terminal() bool {
	return p.Status == StatusSolved || p.Status == StatusError
}

// StatusTransitionError describes a rejected lifecycle transition.
type StatusTransitionError struct {
	From Status
	To   Status
}

func (e *StatusTransitionError) Error() string {
	return "invalid status transition: " + string(e.From) + " -> " + string(e.To)
}
