// Package engine provides the client for the on-device inference engine.
//
// The engine is a local llama.cpp-style server speaking the Ollama chat API:
// the conversational transcript lives client-side and is replayed on every
// turn, while the engine keeps the model weights and KV cache resident.
package engine

import (
	"errors"
)

var (
	// ErrModelNotFound indicates no valid model artifact could be located.
	ErrModelNotFound = errors.New("model artifact not found")
	// ErrModelInvalid indicates the artifact failed validation.
	ErrModelInvalid = errors.New("model artifact invalid")
	// ErrModelRejected indicates the engine refused to load the artifact.
	ErrModelRejected = errors.New("engine rejected model")
	// ErrModelClosed indicates use of a session after the model was closed.
	ErrModelClosed = errors.New("model closed")
)

// Message is one multimodal conversational turn.
type Message struct {
	Text     string
	FromUser bool
	// Image carries raw image bytes; base64-encoded on the wire.
	Image []byte
}

// Options controls model loading and generation.
type Options struct {
	MaxTokens      int
	SupportsImages bool
}
