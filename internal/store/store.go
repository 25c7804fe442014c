// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/nkarpov/solvd/internal/domain"
)

// Repository defines the interface for persisting problems and chat messages.
type Repository interface {
	// SaveProblem inserts a new problem record.
	SaveProblem(ctx context.Context, p *domain.Problem) error

	// UpdateProblem rewrites the mutable fields of an existing problem.
	UpdateProblem(ctx context.Context, p *domain.Problem) error

	// GetProblem retrieves a problem by id. Returns (nil, nil) when absent.
	GetProblem(ctx context.Context, id string) (*domain.Problem, error)

	// ListRecent returns up to limit problems, newest first.
	ListRecent(ctx context.Context, limit int) ([]*domain.Problem, error)

	// Search returns problems whose input, extracted text or title contains
	// the query, newest first.
	Search(ctx context.Context, query string) ([]*domain.Problem, error)

	// DeleteProblem removes a problem and, via foreign-key cascade, all of
	// its chat messages.
	DeleteProblem(ctx context.Context, id string) error

	// SaveChatMessage appends one conversation turn.
	SaveChatMessage(ctx context.Context, m *domain.ChatMessage) error

	// ListChatMessages returns all messages for a problem, oldest first.
	ListChatMessages(ctx context.Context, problemID string) ([]*domain.ChatMessage, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
