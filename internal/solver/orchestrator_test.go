package solver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nkarpov/solvd/internal/domain"
	"github.com/nkarpov/solvd/internal/stream"
)

// fakeGateway scripts model replies and tracks sessions through a real pool
// so tests can observe the same accounting production uses.
type fakeGateway struct {
	mu         sync.Mutex
	pool       *SessionPool
	resets     int
	created    int
	releases   int
	replies    []string
	prompts    []string
	imageSizes []int
	resetErr   error
	sessionErr error
	streamErr  error
}

func (g *fakeGateway) Initialize(context.Context) error { return nil }

func (g *fakeGateway) CreateSession(context.Context, bool) (SessionHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessionErr != nil {
		return nil, g.sessionErr
	}
	g.created++
	if g.pool == nil {
		g.pool = NewSessionPool()
	}
	s := &stubSession{id: g.created}
	g.pool.Track(s)
	return s, nil
}

func (g *fakeGateway) ReleaseSession(s SessionHandle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releases++
	if g.pool != nil {
		g.pool.Release(s)
	}
}

func (g *fakeGateway) SendAndStream(_ context.Context, _ SessionHandle, text string, image []byte) iter.Seq2[string, error] {
	g.mu.Lock()
	g.prompts = append(g.prompts, text)
	g.imageSizes = append(g.imageSizes, len(image))
	var reply string
	if len(g.replies) > 0 {
		reply = g.replies[0]
		g.replies = g.replies[1:]
	}
	err := g.streamErr
	g.mu.Unlock()

	return func(yield func(string, error) bool) {
		if err != nil {
			yield("", err)
			return
		}
		half := len(reply) / 2
		if half > 0 && !yield(reply[:half], nil) {
			return
		}
		yield(reply[half:], nil)
	}
}

func (g *fakeGateway) Reset(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.resetErr != nil {
		return g.resetErr
	}
	g.resets++
	if g.pool != nil {
		g.pool.ReleaseAll()
	}
	return nil
}

func (g *fakeGateway) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

// fakeRepo is an in-memory Repository.
type fakeRepo struct {
	mu       sync.Mutex
	problems map[string]*domain.Problem
	messages []*domain.ChatMessage
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{problems: make(map[string]*domain.Problem)}
}

func (r *fakeRepo) put(p *domain.Problem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.problems[p.ID] = &cp
}

func (r *fakeRepo) problemCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.problems)
}

func (r *fakeRepo) SaveProblem(_ context.Context, p *domain.Problem) error {
	r.put(p)
	return nil
}

func (r *fakeRepo) UpdateProblem(_ context.Context, p *domain.Problem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.problems[p.ID]; !ok {
		return fmt.Errorf("problem not found: %s", p.ID)
	}
	cp := *p
	r.problems[p.ID] = &cp
	return nil
}

func (r *fakeRepo) GetProblem(_ context.Context, id string) (*domain.Problem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.problems[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) ListRecent(context.Context, int) ([]*domain.Problem, error) { return nil, nil }
func (r *fakeRepo) Search(context.Context, string) ([]*domain.Problem, error)  { return nil, nil }

func (r *fakeRepo) DeleteProblem(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.problems, id)
	return nil
}

func (r *fakeRepo) SaveChatMessage(_ context.Context, m *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.messages = append(r.messages, &cp)
	return nil
}

func (r *fakeRepo) ListChatMessages(_ context.Context, problemID string) ([]*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ChatMessage
	for _, m := range r.messages {
		if m.ProblemID == problemID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRepo) Ping(context.Context) error { return nil }
func (r *fakeRepo) Close() error               { return nil }

// fakeNotifier records notification calls.
type fakeNotifier struct {
	mu        sync.Mutex
	progress  []string
	completed []string
	failed    []string
	cancels   int
}

func (n *fakeNotifier) Progress(_, status, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, status)
}

func (n *fakeNotifier) Completed(_, answer, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, answer)
}

func (n *fakeNotifier) Failed(_ string, err error, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, err.Error())
}

func (n *fakeNotifier) CancelProgress() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancels++
}

// fakeStreams records published output per problem.
type fakeStreams struct {
	mu     sync.Mutex
	tokens map[string][]string
	done   []string
	fails  map[string]string
	active map[string]bool
}

func newFakeStreams() *fakeStreams {
	return &fakeStreams{
		tokens: make(map[string][]string),
		fails:  make(map[string]string),
		active: make(map[string]bool),
	}
}

func (s *fakeStreams) Publish(problemID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[problemID] = append(s.tokens[problemID], token)
}

func (s *fakeStreams) Done(problemID string, _ *domain.Problem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = append(s.done, problemID)
}

func (s *fakeStreams) Fail(problemID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[problemID] = message
}

func (s *fakeStreams) Active(problemID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[problemID]
}

func newTestOrchestrator(gw *fakeGateway) (*Orchestrator, *fakeRepo, *fakeNotifier, *fakeStreams) {
	repo := newFakeRepo()
	notifier := &fakeNotifier{}
	streams := newFakeStreams()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOrchestrator(gw, repo, notifier, streams, logger), repo, notifier, streams
}

func TestSolveFromText(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{replies: []string{
		RenderSolution("Step 1: Subtract 3 from both sides.\nStep 2: Divide by 2.", "x = 4"),
	}}
	o, repo, notifier, streams := newTestOrchestrator(gw)

	p, err := o.SolveFromText(context.Background(), "Solve for x: 2x + 3 = 11")
	if err != nil {
		t.Fatalf("SolveFromText: %v", err)
	}

	if p.Status != domain.StatusSolved {
		t.Errorf("status = %v, want solved", p.Status)
	}
	if p.Answer != "x = 4" {
		t.Errorf("answer = %q, want %q", p.Answer, "x = 4")
	}
	if p.Title != "Algebra Problem" {
		t.Errorf("title = %q, want Algebra Problem", p.Title)
	}
	if strings.Contains(p.Answer+p.Explanation, "===") {
		t.Error("protocol markers leaked into solved problem")
	}
	if gw.resets != 1 {
		t.Errorf("resets = %d, want 1 (model must be reset before every solve)", gw.resets)
	}

	stored, _ := repo.GetProblem(context.Background(), p.ID)
	if stored == nil || stored.Status != domain.StatusSolved {
		t.Error("solved problem not persisted")
	}
	if len(notifier.progress) != 1 || len(notifier.completed) != 1 {
		t.Errorf("notifications: progress=%d completed=%d, want 1/1", len(notifier.progress), len(notifier.completed))
	}
	if notifier.completed[0] != "x = 4" {
		t.Errorf("completion answer = %q", notifier.completed[0])
	}
	if len(streams.done) != 1 || streams.done[0] != p.ID {
		t.Errorf("stream done = %v, want [%s]", streams.done, p.ID)
	}
	if len(streams.tokens[p.ID]) == 0 {
		t.Error("no tokens streamed")
	}
}

func TestSolveFromTextEmptyInput(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o, repo, _, _ := newTestOrchestrator(gw)

	if _, err := o.SolveFromText(context.Background(), "   "); !errors.Is(err, ErrSolvingFailed) {
		t.Errorf("err = %v, want ErrSolvingFailed", err)
	}
	if gw.resets != 0 {
		t.Error("empty input must not touch the model")
	}
	if repo.problemCount() != 0 {
		t.Error("no problem record expected")
	}
}

func TestSolveFromTextStreamFailure(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{streamErr: errors.New("engine crashed")}
	o, repo, notifier, streams := newTestOrchestrator(gw)

	p, err := o.SolveFromText(context.Background(), "Solve for x: x + 1 = 2")
	if !errors.Is(err, ErrSolvingFailed) {
		t.Fatalf("err = %v, want ErrSolvingFailed", err)
	}
	if p != nil {
		t.Error("failed solve should return nil problem")
	}

	// The record survives in error state for inspection.
	if repo.problemCount() != 1 {
		t.Fatalf("problem count = %d, want 1", repo.problemCount())
	}
	for _, stored := range repo.problems {
		if stored.Status != domain.StatusError {
			t.Errorf("stored status = %v, want error", stored.Status)
		}
	}
	if len(notifier.failed) != 1 {
		t.Errorf("failed notifications = %d, want 1", len(notifier.failed))
	}
	if len(streams.fails) != 1 {
		t.Errorf("stream fails = %d, want 1", len(streams.fails))
	}
}

func TestSolveFromTextResetFailure(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{resetErr: errors.New("engine unreachable")}
	o, repo, _, _ := newTestOrchestrator(gw)

	if _, err := o.SolveFromText(context.Background(), "1 + 1"); !errors.Is(err, ErrSolvingFailed) {
		t.Errorf("err = %v, want ErrSolvingFailed", err)
	}
	if repo.problemCount() != 0 {
		t.Error("no problem record should exist when the solve never started")
	}
}

func TestSolveFromImage(t *testing.T) {
	t.Parallel()

	extracted := "Solve for x: 2x + 3 = 11"
	gw := &fakeGateway{replies: []string{
		extracted,
		"Understood.",
		RenderSolution("Subtract 3, divide by 2.", "x = 4"),
	}}
	o, repo, _, _ := newTestOrchestrator(gw)

	image := []byte("\x89PNG fake image bytes")
	p, err := o.SolveFromImage(context.Background(), image)
	if err != nil {
		t.Fatalf("SolveFromImage: %v", err)
	}

	if len(gw.prompts) != 3 {
		t.Fatalf("prompts = %d, want 3 (extract, role-clear, solve)", len(gw.prompts))
	}
	if gw.prompts[0] != ExtractionPrompt() {
		t.Error("first turn must be the extraction prompt")
	}
	if gw.prompts[1] != RoleClearingPrompt() {
		t.Error("second turn must clear the transcription role")
	}
	if !strings.Contains(gw.prompts[2], extracted) {
		t.Error("solving prompt must embed the extracted text")
	}
	if gw.imageSizes[0] == 0 || gw.imageSizes[2] == 0 {
		t.Error("extraction and solving turns must carry the image")
	}
	if gw.imageSizes[1] != 0 {
		t.Error("role-clearing turn must not carry the image")
	}
	if gw.created != 1 {
		t.Errorf("sessions created = %d, want 1 (extraction session is reused)", gw.created)
	}

	if p.OriginalInput != extracted || p.ExtractedText != extracted {
		t.Errorf("extracted text not recorded: input=%q extracted=%q", p.OriginalInput, p.ExtractedText)
	}
	if p.Answer != "x = 4" || p.Status != domain.StatusSolved {
		t.Errorf("answer=%q status=%v", p.Answer, p.Status)
	}
	if repo.problemCount() != 1 {
		t.Errorf("problem count = %d, want 1", repo.problemCount())
	}
}

func TestSolveFromImageInsufficientExtraction(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{replies: []string{"x=1"}}
	o, repo, notifier, _ := newTestOrchestrator(gw)

	_, err := o.SolveFromImage(context.Background(), []byte("blurry"))
	if !errors.Is(err, ErrExtractionInsufficient) {
		t.Fatalf("err = %v, want ErrExtractionInsufficient", err)
	}

	// Validation happens before any record exists; nothing to clean up.
	if repo.problemCount() != 0 {
		t.Errorf("problem count = %d, want 0", repo.problemCount())
	}
	if len(notifier.failed) != 0 {
		t.Error("insufficient extraction is not a solve failure notification")
	}
}

func TestSolveFromImageWithText(t *testing.T) {
	t.Parallel()

	question := "What is the area of the shaded region?"
	gw := &fakeGateway{replies: []string{RenderSolution("Split into two rectangles.", "24 cm^2")}}
	o, _, _, _ := newTestOrchestrator(gw)

	p, err := o.SolveFromImageWithText(context.Background(), []byte("png bytes"), question)
	if err != nil {
		t.Fatalf("SolveFromImageWithText: %v", err)
	}

	if len(gw.prompts) != 1 {
		t.Fatalf("prompts = %d, want 1 (no extraction phase)", len(gw.prompts))
	}
	if !strings.Contains(gw.prompts[0], question) {
		t.Error("solving prompt must embed the user's question")
	}
	if gw.imageSizes[0] == 0 {
		t.Error("solving turn must carry the image")
	}
	if p.Title != question {
		t.Errorf("title = %q, want the user's question", p.Title)
	}
	if p.Answer != "24 cm^2" {
		t.Errorf("answer = %q", p.Answer)
	}
}

func TestContinueConversationSameProblem(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{replies: []string{
		RenderSolution("Subtract 3, divide by 2.", "x = 4"),
		"You can also graph both sides and find the intersection.",
	}}
	o, repo, _, _ := newTestOrchestrator(gw)

	ctx := context.Background()
	p, err := o.SolveFromText(ctx, "Solve for x: 2x + 3 = 11")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}

	reply, err := o.ContinueConversation(ctx, p.ID, "Is there another method?")
	if err != nil {
		t.Fatalf("ContinueConversation: %v", err)
	}
	if reply != "You can also graph both sides and find the intersection." {
		t.Errorf("reply = %q", reply)
	}

	// Same problem: no second reset.
	if gw.resets != 1 {
		t.Errorf("resets = %d, want 1", gw.resets)
	}

	prompt := gw.lastPrompt()
	if !strings.Contains(prompt, "x = 4") {
		t.Error("follow-up prompt must include the prior answer")
	}
	if !strings.Contains(prompt, "Student: Is there another method?") {
		t.Error("follow-up prompt must include the student's question")
	}

	msgs, _ := repo.ListChatMessages(ctx, p.ID)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if !msgs[0].FromUser || msgs[1].FromUser {
		t.Error("user message must precede the assistant reply")
	}
}

func TestContinueConversationEndsLiveStream(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{replies: []string{
		RenderSolution("Subtract 3, divide by 2.", "x = 4"),
		"Try factoring instead.",
	}}
	repo := newFakeRepo()
	notifier := &fakeNotifier{}
	hub := stream.NewHub()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	o := NewOrchestrator(gw, repo, notifier, hub, logger)

	ctx := context.Background()
	p, err := o.SolveFromText(ctx, "Solve for x: 2x + 3 = 11")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if hub.Active(p.ID) {
		t.Error("stream must end when the solve completes")
	}

	if _, err := o.ContinueConversation(ctx, p.ID, "Is there another method?"); err != nil {
		t.Fatalf("ContinueConversation: %v", err)
	}
	if hub.Active(p.ID) {
		t.Fatal("stream must end when the follow-up turn completes")
	}

	// With no stale liveness signal, returning to the foreground reconciles
	// the solved problem instead of staying stuck in background mode.
	o.ContinueInBackground(ctx, p.ID)
	if err := o.ResumeFromBackground(ctx, p.ID); err != nil {
		t.Fatalf("ResumeFromBackground: %v", err)
	}
	if notifier.cancels != 1 {
		t.Errorf("progress cancels = %d, want 1", notifier.cancels)
	}
	if phase, _ := o.Lifecycle().Snapshot(); phase != PhaseForeground {
		t.Errorf("phase = %v, want foreground", phase)
	}
}

func TestContinueConversationReleasesSessions(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{replies: []string{
		RenderSolution("Subtract 3, divide by 2.", "x = 4"),
		"First: substitution.",
		"Second: graphing.",
		"Third: guess and check.",
	}}
	o, _, _, _ := newTestOrchestrator(gw)

	ctx := context.Background()
	p, err := o.SolveFromText(ctx, "Solve for x: 2x + 3 = 11")
	if err != nil {
		t.Fatalf("solve: %v", err)
	}

	for _, q := range []string{"Another method?", "And another?", "One more?"} {
		if _, err := o.ContinueConversation(ctx, p.ID, q); err != nil {
			t.Fatalf("ContinueConversation(%q): %v", q, err)
		}
	}

	if gw.releases != 3 {
		t.Errorf("releases = %d, want 3 (one per follow-up turn)", gw.releases)
	}
	// Only the solve session remains tracked; follow-ups must not accumulate.
	if n := gw.pool.Len(); n != 1 {
		t.Errorf("tracked sessions = %d, want 1", n)
	}
}

func TestContinueConversationSwitchingProblemsResets(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{replies: []string{
		RenderSolution("steps", "x = 4"),
		"The key step is dividing both sides by 5.",
	}}
	o, repo, _, _ := newTestOrchestrator(gw)

	ctx := context.Background()
	if _, err := o.SolveFromText(ctx, "Solve for x: 2x + 3 = 11"); err != nil {
		t.Fatalf("solve: %v", err)
	}

	// A different, previously solved problem known only to the store.
	other := &domain.Problem{
		ID:            "prior-problem",
		OriginalInput: "Solve for y: 5y = 20",
		Answer:        "y = 4",
		Explanation:   "Divide both sides by 5.",
		InputKind:     domain.InputText,
		Status:        domain.StatusSolved,
		CreatedAt:     time.Now(),
	}
	repo.put(other)

	if _, err := o.ContinueConversation(ctx, other.ID, "Which step matters most?"); err != nil {
		t.Fatalf("ContinueConversation: %v", err)
	}

	if gw.resets != 2 {
		t.Errorf("resets = %d, want 2 (switching problems must reset the model)", gw.resets)
	}
	if !strings.Contains(gw.lastPrompt(), "y = 4") {
		t.Error("context must be rebuilt from the persisted problem")
	}
}

func TestContinueConversationFailurePreservesUserMessage(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{streamErr: errors.New("engine gone")}
	o, repo, _, streams := newTestOrchestrator(gw)

	ctx := context.Background()
	p := &domain.Problem{
		ID:            "p1",
		OriginalInput: "What is 2+2?",
		Answer:        "4",
		Status:        domain.StatusSolved,
		CreatedAt:     time.Now(),
	}
	repo.put(p)

	_, err := o.ContinueConversation(ctx, p.ID, "Why?")
	if !errors.Is(err, ErrConversationFailed) {
		t.Fatalf("err = %v, want ErrConversationFailed", err)
	}

	msgs, _ := repo.ListChatMessages(ctx, p.ID)
	if len(msgs) != 1 || !msgs[0].FromUser || msgs[0].Text != "Why?" {
		t.Errorf("user message must survive the failed turn, got %+v", msgs)
	}
	if _, ok := streams.fails[p.ID]; !ok {
		t.Error("failed turn must end the live stream")
	}
	if gw.releases != 1 {
		t.Errorf("releases = %d, want 1 (session released even on failure)", gw.releases)
	}
}

func TestBackgroundCompletionReconciled(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o, repo, notifier, _ := newTestOrchestrator(gw)

	ctx := context.Background()
	p := &domain.Problem{
		ID:            "bg1",
		OriginalInput: "Solve for x: x - 1 = 0",
		Title:         "Algebra Problem",
		Status:        domain.StatusSolving,
		CreatedAt:     time.Now(),
	}
	repo.put(p)

	o.ContinueInBackground(ctx, p.ID)
	if phase, _ := o.Lifecycle().Snapshot(); phase != PhaseBackground {
		t.Fatalf("phase = %v, want background", phase)
	}
	if notifier.progress[len(notifier.progress)-1] != "solving in background" {
		t.Errorf("progress status = %q", notifier.progress[len(notifier.progress)-1])
	}

	// The solve finished while the app was away.
	p.Status = domain.StatusSolved
	p.Answer = "x = 1"
	repo.put(p)

	if err := o.ResumeFromBackground(ctx, p.ID); err != nil {
		t.Fatalf("ResumeFromBackground: %v", err)
	}
	if notifier.cancels != 1 {
		t.Errorf("progress cancels = %d, want 1", notifier.cancels)
	}
	if len(notifier.completed) != 1 || notifier.completed[0] != "x = 1" {
		t.Errorf("completed = %v, want [x = 1]", notifier.completed)
	}
	if phase, _ := o.Lifecycle().Snapshot(); phase != PhaseForeground {
		t.Errorf("phase = %v, want foreground", phase)
	}
}

func TestResumeWithActiveStreamKeepsState(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o, repo, notifier, streams := newTestOrchestrator(gw)

	ctx := context.Background()
	p := &domain.Problem{ID: "bg2", OriginalInput: "q", Status: domain.StatusSolving, CreatedAt: time.Now()}
	repo.put(p)

	o.ContinueInBackground(ctx, p.ID)
	streams.active[p.ID] = true

	if err := o.ResumeFromBackground(ctx, p.ID); err != nil {
		t.Fatalf("ResumeFromBackground: %v", err)
	}

	// A live stream means solving is still in flight; nothing to reconcile.
	if phase, _ := o.Lifecycle().Snapshot(); phase != PhaseBackground {
		t.Errorf("phase = %v, want background", phase)
	}
	if len(notifier.completed) != 0 {
		t.Error("no completion may be reported while the stream is live")
	}
}

func TestResumeIndeterminateStaysBackground(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o, repo, notifier, _ := newTestOrchestrator(gw)

	ctx := context.Background()
	p := &domain.Problem{ID: "bg3", OriginalInput: "q", Status: domain.StatusSolving, CreatedAt: time.Now()}
	repo.put(p)

	o.ContinueInBackground(ctx, p.ID)
	if err := o.ResumeFromBackground(ctx, p.ID); err != nil {
		t.Fatalf("ResumeFromBackground: %v", err)
	}

	// Still solving with no live stream: better to stay in background mode
	// than to report a false outcome.
	if phase, _ := o.Lifecycle().Snapshot(); phase != PhaseBackground {
		t.Errorf("phase = %v, want background", phase)
	}
	if len(notifier.completed) != 0 || len(notifier.failed) != 0 {
		t.Error("indeterminate outcome must not produce a verdict")
	}
}

func TestResumeWithoutBackgroundIsNoOp(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	o, _, notifier, _ := newTestOrchestrator(gw)

	if err := o.ResumeFromBackground(context.Background(), "never-backgrounded"); err != nil {
		t.Fatalf("ResumeFromBackground: %v", err)
	}
	if phase, _ := o.Lifecycle().Snapshot(); phase != PhaseForeground {
		t.Errorf("phase = %v, want foreground", phase)
	}
	if notifier.cancels != 0 {
		t.Error("no progress cancellation expected")
	}
}
