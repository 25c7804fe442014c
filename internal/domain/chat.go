package domain

import (
	"time"
)

// ChatMessage is one turn in the follow-up conversation attached to a Problem.
// Messages for a problem are totally ordered by CreatedAt; that ordering is
// the sole basis for conversation replay into prompts.
type ChatMessage struct {
	ID        string    `json:"id"`
	ProblemID string    `json:"problem_id"`
	Text      string    `json:"text"`
	FromUser  bool      `json:"from_user"`
	CreatedAt time.Time `json:"created_at"`
}

// Author returns the transcript label for the message's author.
func (m *ChatMessage) Author() string {
	if m.FromUser {
		return "Student"
	}
	return "Tutor"
}
