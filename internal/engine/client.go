package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"time"
)

var errEngineResponse = errors.New("engine returned error")

// Client is a low-level HTTP client to the local inference engine.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientConfig holds configuration for the engine client.
type ClientConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "http://localhost:11434",
		// Generation can legitimately run for minutes on CPU-only devices.
		RequestTimeout: 15 * time.Minute,
	}
}

// NewClient creates a new engine client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	cfg := DefaultClientConfig()
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
	}
}

// wire types for the engine chat API.

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []chatMessage  `json:"messages"`
	Stream    bool           `json:"stream"`
	KeepAlive *int           `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// Health checks that the engine is reachable and responding.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("engine unreachable: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close health response body", "error", closeErr)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", errEngineResponse, resp.StatusCode)
	}
	return nil
}

// Load pins the model into engine memory via an empty warm-up turn.
func (c *Client) Load(ctx context.Context, model string, opts Options) error {
	req := chatRequest{Model: model, Stream: false}
	if opts.MaxTokens > 0 {
		req.Options = map[string]any{"num_predict": opts.MaxTokens}
	}
	return c.oneShot(ctx, req)
}

// Unload asks the engine to evict the model immediately (keep_alive 0).
// This is the only operation guaranteed to reclaim engine-side memory.
func (c *Client) Unload(ctx context.Context, model string) error {
	zero := 0
	req := chatRequest{Model: model, Stream: false, KeepAlive: &zero}
	return c.oneShot(ctx, req)
}

func (c *Client) oneShot(ctx context.Context, req chatRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal engine request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create engine request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute engine request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close engine response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %d - %s", errEngineResponse, resp.StatusCode, string(msg))
	}
	// Drain so the connection can be reused.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		c.logger.Debug("failed to drain engine response body", "error", err)
	}
	return nil
}

// ChatStream sends the full transcript and yields response text fragments as
// they arrive. The sequence is lazy, finite and forward-only; stopping early
// abandons the rest of the reply.
func (c *Client) ChatStream(ctx context.Context, model string, messages []chatMessage, opts Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req := chatRequest{Model: model, Messages: messages, Stream: true}
		if opts.MaxTokens > 0 {
			req.Options = map[string]any{"num_predict": opts.MaxTokens}
		}

		body, err := json.Marshal(req)
		if err != nil {
			yield("", fmt.Errorf("marshal chat request: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			yield("", fmt.Errorf("create chat request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			yield("", fmt.Errorf("execute chat request: %w", err))
			return
		}
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				c.logger.Debug("failed to close chat response body", "error", closeErr)
			}
		}()

		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			yield("", fmt.Errorf("%w: %d - %s", errEngineResponse, resp.StatusCode, string(msg)))
			return
		}

		decoder := json.NewDecoder(resp.Body)
		for {
			var chunk chatResponse
			if err := decoder.Decode(&chunk); err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				yield("", fmt.Errorf("decode chat chunk: %w", err))
				return
			}
			if chunk.Error != "" {
				yield("", fmt.Errorf("%w: %s", errEngineResponse, chunk.Error))
				return
			}
			if chunk.Message.Content != "" {
				if !yield(chunk.Message.Content, nil) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
	}
}
