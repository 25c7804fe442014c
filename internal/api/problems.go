package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nkarpov/solvd/internal/background"
	"github.com/nkarpov/solvd/internal/domain"
	"github.com/nkarpov/solvd/internal/solver"
)

// maxUploadBytes caps problem image uploads at 10 MiB.
const maxUploadBytes = 10 << 20

const defaultListLimit = 20

// ProblemHandler handles problem-related endpoints.
type ProblemHandler struct {
	*Handler
	runner *background.Runner
}

// NewProblemHandler creates a problem handler. runner may be nil, in which
// case async solve requests are rejected.
func NewProblemHandler(base *Handler, runner *background.Runner) *ProblemHandler {
	return &ProblemHandler{Handler: base, runner: runner}
}

// RegisterRoutes registers problem routes.
func (h *ProblemHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/problems", func(r chi.Router) {
		r.Post("/text", h.SolveText)
		r.Post("/image", h.SolveImage)
		r.Get("/", h.List)
		r.Get("/search", h.Search)
		r.Get("/{problemID}", h.Get)
		r.Delete("/{problemID}", h.Delete)
		r.Get("/{problemID}/messages", h.ListMessages)
		r.Post("/{problemID}/messages", h.PostMessage)
		r.Post("/{problemID}/background", h.Background)
		r.Post("/{problemID}/resume", h.Resume)
	})
}

type solveTextRequest struct {
	Text  string `json:"text"`
	Async bool   `json:"async,omitempty"`
}

// SolveText solves a typed problem. With async set, the solve is scheduled as
// a detached task and clients follow progress over the problem stream.
func (h *ProblemHandler) SolveText(w http.ResponseWriter, r *http.Request) {
	var req solveTextRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}

	if req.Async {
		if h.runner == nil {
			Error(w, http.StatusServiceUnavailable, "background solving unavailable")
			return
		}
		taskID := uuid.NewString()
		h.runner.ScheduleOneOff(taskID, background.Payload{
			ProblemText: req.Text,
			ProblemType: background.TypeText,
		})
		JSON(w, http.StatusAccepted, map[string]string{"status": "scheduled", "task_id": taskID})
		return
	}

	p, err := h.solver.SolveFromText(r.Context(), req.Text)
	if err != nil {
		status, msg := solveError(err)
		Error(w, status, msg)
		return
	}
	JSON(w, http.StatusCreated, p)
}

// SolveImage solves a photographed problem. Multipart fields: image
// (required), question (optional), async (optional "true").
func (h *ProblemHandler) SolveImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		Error(w, http.StatusBadRequest, "image is required")
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Debug("failed to close upload", "error", closeErr)
		}
	}()

	image, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if len(image) == 0 {
		Error(w, http.StatusBadRequest, "image is empty")
		return
	}
	if len(image) > maxUploadBytes {
		Error(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}

	question := r.FormValue("question")

	if r.FormValue("async") == "true" {
		h.scheduleImageSolve(w, image, question)
		return
	}

	var p *domain.Problem
	if question != "" {
		p, err = h.solver.SolveFromImageWithText(r.Context(), image, question)
	} else {
		p, err = h.solver.SolveFromImage(r.Context(), image)
	}
	if err != nil {
		status, msg := solveError(err)
		Error(w, status, msg)
		return
	}
	JSON(w, http.StatusCreated, p)
}

// scheduleImageSolve spills the image to disk and schedules a detached task.
// Task payloads carry the image by path, never inline.
func (h *ProblemHandler) scheduleImageSolve(w http.ResponseWriter, image []byte, question string) {
	if h.runner == nil {
		Error(w, http.StatusServiceUnavailable, "background solving unavailable")
		return
	}

	tmp, err := os.CreateTemp("", "solvd-upload-*.png")
	if err != nil {
		slog.Error("failed to create upload spill file", "error", err)
		Error(w, http.StatusInternalServerError, "failed to store image")
		return
	}
	if _, err := tmp.Write(image); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		slog.Error("failed to write upload spill file", "error", err)
		Error(w, http.StatusInternalServerError, "failed to store image")
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		Error(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	taskID := uuid.NewString()
	h.runner.ScheduleOneOff(taskID, background.Payload{
		ProblemType:  background.TypeImage,
		ImagePath:    tmp.Name(),
		UserQuestion: question,
	})
	JSON(w, http.StatusAccepted, map[string]string{"status": "scheduled", "task_id": taskID})
}

// List returns recent problems, newest first.
func (h *ProblemHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	problems, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list problems", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list problems")
		return
	}
	if problems == nil {
		problems = []*domain.Problem{}
	}
	JSON(w, http.StatusOK, problems)
}

// Search returns problems matching the query.
func (h *ProblemHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		Error(w, http.StatusBadRequest, "q is required")
		return
	}

	problems, err := h.repo.Search(r.Context(), query)
	if err != nil {
		slog.Error("failed to search problems", "error", err, "query", query)
		Error(w, http.StatusInternalServerError, "search failed")
		return
	}
	if problems == nil {
		problems = []*domain.Problem{}
	}
	JSON(w, http.StatusOK, problems)
}

// Get returns one problem by id.
func (h *ProblemHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupProblem(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, p)
}

// Delete removes a problem and its conversation.
func (h *ProblemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupProblem(w, r)
	if !ok {
		return
	}

	if err := h.repo.DeleteProblem(r.Context(), p.ID); err != nil {
		slog.Error("failed to delete problem", "error", err, "problem_id", p.ID)
		Error(w, http.StatusInternalServerError, "failed to delete problem")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListMessages returns a problem's conversation, oldest first.
func (h *ProblemHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupProblem(w, r)
	if !ok {
		return
	}

	msgs, err := h.repo.ListChatMessages(r.Context(), p.ID)
	if err != nil {
		slog.Error("failed to list messages", "error", err, "problem_id", p.ID)
		Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if msgs == nil {
		msgs = []*domain.ChatMessage{}
	}
	JSON(w, http.StatusOK, msgs)
}

type postMessageRequest struct {
	Message string `json:"message"`
}

// PostMessage runs one follow-up conversation turn.
func (h *ProblemHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupProblem(w, r)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := h.solver.ContinueConversation(r.Context(), p.ID, req.Message)
	if err != nil {
		slog.Error("conversation turn failed", "error", err, "problem_id", p.ID)
		Error(w, http.StatusBadGateway, "conversation failed")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// Background marks a problem's solve as continuing while the client is away.
func (h *ProblemHandler) Background(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupProblem(w, r)
	if !ok {
		return
	}

	h.solver.ContinueInBackground(r.Context(), p.ID)
	JSON(w, http.StatusOK, map[string]string{"status": "background"})
}

// Resume reconciles a problem's state after a background stint.
func (h *ProblemHandler) Resume(w http.ResponseWriter, r *http.Request) {
	p, ok := h.lookupProblem(w, r)
	if !ok {
		return
	}

	if err := h.solver.ResumeFromBackground(r.Context(), p.ID); err != nil {
		slog.Error("resume failed", "error", err, "problem_id", p.ID)
		Error(w, http.StatusInternalServerError, "resume failed")
		return
	}

	current, err := h.repo.GetProblem(r.Context(), p.ID)
	if err != nil || current == nil {
		Error(w, http.StatusInternalServerError, "failed to load problem")
		return
	}
	JSON(w, http.StatusOK, current)
}

// lookupProblem resolves {problemID} and writes a 404 when it does not exist.
func (h *ProblemHandler) lookupProblem(w http.ResponseWriter, r *http.Request) (*domain.Problem, bool) {
	id := chi.URLParam(r, "problemID")
	if id == "" {
		Error(w, http.StatusBadRequest, "problem id required")
		return nil, false
	}

	p, err := h.repo.GetProblem(r.Context(), id)
	if err != nil {
		slog.Error("failed to load problem", "error", err, "problem_id", id)
		Error(w, http.StatusInternalServerError, "failed to load problem")
		return nil, false
	}
	if p == nil {
		Error(w, http.StatusNotFound, "problem not found")
		return nil, false
	}
	return p, true
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	return json.NewDecoder(r.Body).Decode(v)
}

// solveError maps solving failures to HTTP responses.
func solveError(err error) (int, string) {
	switch {
	case errors.Is(err, solver.ErrExtractionInsufficient):
		return http.StatusUnprocessableEntity, "could not read a problem from the image"
	case errors.Is(err, solver.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "model artifact unavailable"
	case errors.Is(err, solver.ErrModelLoad),
		errors.Is(err, solver.ErrSessionCreationTimeout):
		return http.StatusServiceUnavailable, "inference engine unavailable"
	default:
		return http.StatusInternalServerError, "solving failed"
	}
}
