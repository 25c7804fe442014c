// Package notify defines user-visible progress and completion signaling.
package notify

import (
	"log/slog"
)

// Notifier is the consumed notification contract. Implementations must be
// safe for concurrent use; the orchestrator fires notifications from both
// foreground and background pipelines.
type Notifier interface {
	// Progress signals that solving is underway.
	Progress(title, status, problemID string)
	// Completed signals a finished solve with its answer.
	Completed(title, answer, problemID string)
	// Failed signals a failed solve.
	Failed(title string, err error, problemID string)
	// CancelProgress withdraws any outstanding progress notification.
	CancelProgress()
}

// LogNotifier writes notifications to the structured log. The default when
// no platform notification bridge is attached.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Progress(title, status, problemID string) {
	n.logger.Info("solving progress", "title", title, "status", status, "problem_id", problemID)
}

func (n *LogNotifier) Completed(title, answer, problemID string) {
	n.logger.Info("solving completed", "title", title, "answer", answer, "problem_id", problemID)
}

func (n *LogNotifier) Failed(title string, err error, problemID string) {
	n.logger.Warn("solving failed", "title", title, "error", err, "problem_id", problemID)
}

func (n *LogNotifier) CancelProgress() {
	n.logger.Debug("progress notification cancelled")
}

// Multi fans notifications out to several notifiers.
type Multi []Notifier

func (m Multi) Progress(title, status, problemID string) {
	for _, n := range m {
		n.Progress(title, status, problemID)
	}
}

func (m Multi) Completed(title, answer, problemID string) {
	for _, n := range m {
		n.Completed(title, answer, problemID)
	}
}

func (m Multi) Failed(title string, err error, problemID string) {
	for _, n := range m {
		n.Failed(title, err, problemID)
	}
}

func (m Multi) CancelProgress() {
	for _, n := range m {
		n.CancelProgress()
	}
}
