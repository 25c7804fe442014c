// Package solver implements the problem-solving orchestration core: prompt
// construction, model gateway, session bookkeeping, response parsing and the
// solving state machine.
package solver

import "errors"

var (
	// ErrModelUnavailable means the model artifact could not be located or
	// validated. Fatal to any solving attempt; not retried automatically.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrModelLoad means the engine rejected the model artifact.
	ErrModelLoad = errors.New("model load failed")

	// ErrSessionCreationTimeout means the engine did not produce a session
	// within the configured ceiling, usually a sign of accumulated sessions
	// exhausting engine resources. Recovery is a full model reset.
	ErrSessionCreationTimeout = errors.New("session creation timed out")

	// ErrExtractionInsufficient means image extraction produced too little
	// content to solve. The user must resubmit; nothing is persisted.
	ErrExtractionInsufficient = errors.New("could not read problem from image")

	// ErrSolvingFailed wraps any failure during prompt send/stream/parse.
	// The problem record is left in the error state.
	ErrSolvingFailed = errors.New("solving failed")

	// ErrConversationFailed means a follow-up turn failed after the user's
	// message was persisted. Only the assistant reply is missing.
	ErrConversationFailed = errors.New("conversation failed")
)
