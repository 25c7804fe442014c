package solver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nkarpov/solvd/internal/domain"
	"github.com/nkarpov/solvd/internal/notify"
	"github.com/nkarpov/solvd/internal/ocr"
	"github.com/nkarpov/solvd/internal/store"
)

// minExtractedLen is the minimum usable length for image extraction output.
const minExtractedLen = 10

// Streams publishes live solving output to subscribed clients. Every
// published stream must be ended with Done or Fail: Active reports liveness
// between the first token and that terminator, and is the authoritative
// "still solving" signal during background reconciliation. Done's problem is
// nil for conversation turns, which update no record.
type Streams interface {
	Publish(problemID, token string)
	Done(problemID string, p *domain.Problem)
	Fail(problemID, message string)
	Active(problemID string) bool
}

// noStreams is the default when no streaming hub is attached.
type noStreams struct{}

func (noStreams) Publish(string, string)       {}
func (noStreams) Done(string, *domain.Problem) {}
func (noStreams) Fail(string, string)          {}
func (noStreams) Active(string) bool           { return false }

// Orchestrator drives a problem from raw input to persisted solution and
// owns the follow-up conversation protocol. All model access funnels through
// its gateway; resetting the model before switching problem context is the
// structural guard against cross-problem contamination.
type Orchestrator struct {
	gateway   Gateway
	repo      store.Repository
	notifier  notify.Notifier
	streams   Streams
	extractor ocr.Extractor
	logger    *slog.Logger
	life      *Lifecycle

	mu            sync.Mutex
	contexts      map[string]domain.EssentialContext
	lastProblemID string
}

// NewOrchestrator wires the solving core. streams may be nil when no live
// subscription surface exists.
func NewOrchestrator(gateway Gateway, repo store.Repository, notifier notify.Notifier, streams Streams, logger *slog.Logger) *Orchestrator {
	if streams == nil {
		streams = noStreams{}
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		gateway:  gateway,
		repo:     repo,
		notifier: notifier,
		streams:  streams,
		logger:   logger,
		life:     NewLifecycle(),
		contexts: make(map[string]domain.EssentialContext),
	}
}

// SetExtractor attaches an optional OCR shortcut for the image path.
func (o *Orchestrator) SetExtractor(e ocr.Extractor) {
	o.extractor = e
}

// Lifecycle exposes the background/foreground state machine.
func (o *Orchestrator) Lifecycle() *Lifecycle {
	return o.life
}

// SolveFromText runs the direct-solve path for a typed problem.
func (o *Orchestrator) SolveFromText(ctx context.Context, text string) (*domain.Problem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty problem text", ErrSolvingFailed)
	}

	// Every fresh solve starts from a clean model, whatever came before.
	if err := o.gateway.Reset(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolvingFailed, err)
	}

	p := o.newProblem(text, domain.InputText, nil)
	p.Title = TitleFor(text)
	if err := o.repo.SaveProblem(ctx, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolvingFailed, err)
	}
	o.setLastProblem(p.ID)
	o.notifier.Progress(p.Title, "solving", p.ID)

	sess, err := o.gateway.CreateSession(ctx, false)
	if err != nil {
		return nil, o.failProblem(ctx, p, err)
	}

	raw, err := o.collect(ctx, sess, SolvingPrompt(text), nil, p.ID)
	if err != nil {
		return nil, o.failProblem(ctx, p, err)
	}

	return o.completeProblem(ctx, p, raw)
}

// SolveFromImage runs the two-phase extract-then-solve path. No Problem row
// is created until extraction passes validation, so a failed read leaves
// nothing behind.
func (o *Orchestrator) SolveFromImage(ctx context.Context, image []byte) (*domain.Problem, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrSolvingFailed)
	}

	if err := o.gateway.Reset(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolvingFailed, err)
	}

	extracted := o.tryOCR(ctx, image)

	// Phase 1: extraction. Skipped when OCR already produced usable text.
	var sess SessionHandle
	if extracted == "" {
		var err error
		sess, err = o.gateway.CreateSession(ctx, true)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSolvingFailed, err)
		}
		raw, err := o.collect(ctx, sess, ExtractionPrompt(), image, "")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSolvingFailed, err)
		}
		extracted = strings.TrimSpace(raw)
	}

	if len(extracted) < minExtractedLen {
		return nil, fmt.Errorf("%w: extracted %d characters", ErrExtractionInsufficient, len(extracted))
	}

	p := o.newProblem(extracted, domain.InputImage, image)
	p.ExtractedText = extracted
	p.Title = TitleFor(extracted)
	if err := o.repo.SaveProblem(ctx, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolvingFailed, err)
	}
	o.setLastProblem(p.ID)
	o.notifier.Progress(p.Title, "solving", p.ID)

	// Phase 2: solving. The extraction session is reused to avoid a second
	// creation against an engine with no per-session teardown; a
	// role-clearing turn discards the extractor persona first.
	if sess == nil {
		var err error
		sess, err = o.gateway.CreateSession(ctx, true)
		if err != nil {
			return nil, o.failProblem(ctx, p, err)
		}
	} else {
		if _, err := o.collect(ctx, sess, RoleClearingPrompt(), nil, ""); err != nil {
			return nil, o.failProblem(ctx, p, err)
		}
	}

	raw, err := o.collect(ctx, sess, SolvingPrompt(extracted), image, p.ID)
	if err != nil {
		return nil, o.failProblem(ctx, p, err)
	}

	return o.completeProblem(ctx, p, raw)
}

// SolveFromImageWithText runs the single-phase path: the user's literal
// question plus the image, no extraction needed.
func (o *Orchestrator) SolveFromImageWithText(ctx context.Context, image []byte, question string) (*domain.Problem, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return o.SolveFromImage(ctx, image)
	}

	if err := o.gateway.Reset(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolvingFailed, err)
	}

	p := o.newProblem(question, domain.InputImage, image)
	p.ExtractedText = question
	p.Title = question
	if err := o.repo.SaveProblem(ctx, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSolvingFailed, err)
	}
	o.setLastProblem(p.ID)
	o.notifier.Progress(p.Title, "solving", p.ID)

	sess, err := o.gateway.CreateSession(ctx, true)
	if err != nil {
		return nil, o.failProblem(ctx, p, err)
	}

	raw, err := o.collect(ctx, sess, SolvingPrompt(question), image, p.ID)
	if err != nil {
		return nil, o.failProblem(ctx, p, err)
	}

	return o.completeProblem(ctx, p, raw)
}

// ContinueConversation runs one follow-up turn. The user's message is
// persisted before the model is consulted, so a failed reply never loses the
// user's own words.
func (o *Orchestrator) ContinueConversation(ctx context.Context, problemID, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("%w: empty message", ErrConversationFailed)
	}

	// Switching to a different problem forces a reset so the model cannot
	// leak context between unrelated problems.
	o.mu.Lock()
	last := o.lastProblemID
	o.mu.Unlock()
	if last != "" && last != problemID {
		if err := o.gateway.Reset(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", ErrConversationFailed, err)
		}
	}
	o.setLastProblem(problemID)

	history, err := o.repo.ListChatMessages(ctx, problemID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversationFailed, err)
	}

	userMsg := &domain.ChatMessage{
		ID:        uuid.NewString(),
		ProblemID: problemID,
		Text:      message,
		FromUser:  true,
		CreatedAt: time.Now(),
	}
	if err := o.repo.SaveChatMessage(ctx, userMsg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversationFailed, err)
	}

	ectx, err := o.contextFor(ctx, problemID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversationFailed, err)
	}

	prompt := FollowUpPrompt(ectx, history, message)
	sess, err := o.gateway.CreateSession(ctx, len(ectx.Image) > 0)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversationFailed, err)
	}
	// Each follow-up turn builds its full context into the prompt, so the
	// session is single-use and released once the turn ends.
	defer o.gateway.ReleaseSession(sess)

	reply, err := o.collect(ctx, sess, prompt, ectx.Image, problemID)
	if err != nil {
		o.streams.Fail(problemID, err.Error())
		return "", fmt.Errorf("%w: %v", ErrConversationFailed, err)
	}
	reply = strings.TrimSpace(reply)
	o.streams.Done(problemID, nil)

	assistantMsg := &domain.ChatMessage{
		ID:        uuid.NewString(),
		ProblemID: problemID,
		Text:      reply,
		FromUser:  false,
		CreatedAt: time.Now(),
	}
	if err := o.repo.SaveChatMessage(ctx, assistantMsg); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConversationFailed, err)
	}

	return reply, nil
}

// ContinueInBackground marks a problem's solve as continuing while the app
// is not visible and posts a progress notification. In-flight streaming is
// not interrupted.
func (o *Orchestrator) ContinueInBackground(ctx context.Context, problemID string) {
	o.life.BeginBackground(problemID)

	title := defaultTitle
	if p, err := o.repo.GetProblem(ctx, problemID); err == nil && p != nil && p.Title != "" {
		title = p.Title
	}
	o.notifier.Progress(title, "solving in background", problemID)
	o.life.ConfirmBackground()
}

// ResumeFromBackground reconciles state when the app returns to the
// foreground. Priority order: a live stream subscription is authoritative
// (still solving); then the persisted status; otherwise the outcome is
// indeterminate and background mode stays active rather than risk a false
// failure.
func (o *Orchestrator) ResumeFromBackground(ctx context.Context, problemID string) error {
	if o.streams.Active(problemID) {
		return nil
	}

	if !o.life.BeginReconcile(problemID) {
		return nil
	}

	p, err := o.repo.GetProblem(ctx, problemID)
	if err != nil || p == nil {
		if err != nil {
			o.logger.Warn("background reconcile read failed", "problem_id", problemID, "error", err)
		}
		o.life.ResolveBackground()
		return err
	}

	switch p.Status {
	case domain.StatusSolved:
		o.notifier.CancelProgress()
		o.notifier.Completed(p.Title, p.Answer, p.ID)
		o.life.ResolveForeground()
	case domain.StatusSolving:
		o.life.ResolveBackground()
	default:
		o.life.ResolveBackground()
	}
	return nil
}

// --- internals ---

func (o *Orchestrator) newProblem(input string, kind domain.InputKind, image []byte) *domain.Problem {
	return &domain.Problem{
		ID:            uuid.NewString(),
		OriginalInput: input,
		InputKind:     kind,
		Status:        domain.StatusSolving,
		CreatedAt:     time.Now(),
		ImagePNG:      image,
	}
}

func (o *Orchestrator) setLastProblem(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastProblemID = id
}

// collect sends one turn and concatenates the streamed reply, forwarding
// tokens to live subscribers when publishID is set.
func (o *Orchestrator) collect(ctx context.Context, sess SessionHandle, text string, image []byte, publishID string) (string, error) {
	var sb strings.Builder
	for token, err := range o.gateway.SendAndStream(ctx, sess, text, image) {
		if err != nil {
			return "", err
		}
		sb.WriteString(token)
		if publishID != "" {
			o.streams.Publish(publishID, token)
		}
	}
	return sb.String(), nil
}

// completeProblem parses the raw model output, persists the solved record
// and stores the follow-up context.
func (o *Orchestrator) completeProblem(ctx context.Context, p *domain.Problem, raw string) (*domain.Problem, error) {
	sol := ParseSolution(raw)
	p.Answer = sol.Answer
	p.Explanation = sol.Explanation
	if err := p.SetStatus(domain.StatusSolved); err != nil {
		return nil, o.failProblem(ctx, p, err)
	}
	if err := o.repo.UpdateProblem(ctx, p); err != nil {
		return nil, o.failProblem(ctx, p, err)
	}

	o.mu.Lock()
	o.contexts[p.ID] = domain.ContextFromProblem(p)
	o.mu.Unlock()

	o.notifier.Completed(p.Title, p.Answer, p.ID)
	o.streams.Done(p.ID, p)
	return p, nil
}

// failProblem leaves the persisted record in a terminal, inspectable state
// and surfaces the failure.
func (o *Orchestrator) failProblem(ctx context.Context, p *domain.Problem, cause error) error {
	if p.Status.CanTransition(domain.StatusError) {
		if err := p.SetStatus(domain.StatusError); err == nil {
			if uerr := o.repo.UpdateProblem(ctx, p); uerr != nil {
				o.logger.Error("failed to persist error status", "problem_id", p.ID, "error", uerr)
			}
		}
	}

	title := p.Title
	if title == "" {
		title = defaultTitle
	}
	o.notifier.Failed(title, cause, p.ID)
	o.streams.Fail(p.ID, cause.Error())
	return fmt.Errorf("%w: %v", ErrSolvingFailed, cause)
}

// contextFor resolves the essential context for a problem, preferring the
// in-memory entry and reconstructing from the store when absent.
func (o *Orchestrator) contextFor(ctx context.Context, problemID string) (domain.EssentialContext, error) {
	o.mu.Lock()
	ectx, ok := o.contexts[problemID]
	o.mu.Unlock()
	if ok {
		return ectx, nil
	}

	p, err := o.repo.GetProblem(ctx, problemID)
	if err != nil {
		return domain.EssentialContext{}, err
	}
	if p == nil {
		return domain.EssentialContext{}, fmt.Errorf("problem not found: %s", problemID)
	}

	ectx = domain.ContextFromProblem(p)
	o.mu.Lock()
	o.contexts[problemID] = ectx
	o.mu.Unlock()
	return ectx, nil
}

// tryOCR attempts the optional alternate extraction path. Any failure falls
// back to the model's own extraction phase.
func (o *Orchestrator) tryOCR(ctx context.Context, image []byte) string {
	if o.extractor == nil {
		return ""
	}
	text, err := o.extractor.ExtractText(ctx, image)
	if err != nil {
		return ""
	}
	text = strings.TrimSpace(text)
	if len(text) < minExtractedLen {
		return ""
	}
	return text
}
