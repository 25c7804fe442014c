// Package api provides HTTP handlers for the solvd API.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nkarpov/solvd/internal/domain"
	"github.com/nkarpov/solvd/internal/store"
)

// Solver is the solving surface the API depends on.
type Solver interface {
	SolveFromText(ctx context.Context, text string) (*domain.Problem, error)
	SolveFromImage(ctx context.Context, image []byte) (*domain.Problem, error)
	SolveFromImageWithText(ctx context.Context, image []byte, question string) (*domain.Problem, error)
	ContinueConversation(ctx context.Context, problemID, message string) (string, error)
	ContinueInBackground(ctx context.Context, problemID string)
	ResumeFromBackground(ctx context.Context, problemID string) error
}

// Handler provides common handler dependencies.
type Handler struct {
	repo   store.Repository
	solver Solver
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, solver Solver) *Handler {
	return &Handler{repo: repo, solver: solver}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
