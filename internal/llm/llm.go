// Package llm is a thin client for an OpenAI-compatible chat-completions
// endpoint. LLM output is advisory everywhere in the fabric: callers treat
// any error as a signal to fall back to rule-based behavior, never as a
// pipeline failure.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// ErrNotConfigured is returned when no endpoint is configured. Callers use
// this to skip LLM refinement entirely.
var ErrNotConfigured = errors.New("llm: not configured")

// Error is a failed completion attempt against the provider.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm: provider error HTTP %d: %s", e.StatusCode, e.Message)
}

// Params tunes a single completion.
type Params struct {
	// Model overrides the client's configured model when non-empty.
	Model string

	// Temperature is passed through to the provider. Zero is sent as-is.
	Temperature float64

	// MaxTokens caps the generation length. Zero omits the field.
	MaxTokens int
}

// Client produces completions for a prompt.
type Client interface {
	// Complete returns the model's text for prompt.
	Complete(ctx context.Context, prompt string, params Params) (string, error)
}

// Config configures the HTTP client.
type Config struct {
	// Endpoint is the full chat-completions URL. Empty disables the client.
	Endpoint string

	// Model is the default model identifier.
	Model string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout bounds one generation. Zero means 300 seconds.
	Timeout time.Duration
}

// HTTPClient talks to an OpenAI-compatible chat-completions endpoint.
type HTTPClient struct {
	cfg    Config
	http   *http.Client
	logger *log.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for cfg. logger may be nil.
func NewHTTPClient(cfg Config, logger *log.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	return &HTTPClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// chat-completions wire types.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete posts the prompt as a single user message and returns the first
// choice's content.
func (c *HTTPClient) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	if c.cfg.Endpoint == "" {
		return "", ErrNotConfigured
	}

	model := params.Model
	if model == "" {
		model = c.cfg.Model
	}

	payload := wireRequest{
		Model:       model,
		Messages:    []wireMessage{{Role: "user", Content: prompt}},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llm: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: completion request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{StatusCode: resp.StatusCode, Message: providerMessage(data)}
	}

	var parsed wireResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("llm: decoding response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm: response contained no choices")
	}

	if c.logger != nil {
		c.logger.Debug("completion finished",
			"model", model,
			"prompt_len", len(prompt),
			"elapsed", time.Since(start),
		)
	}
	return parsed.Choices[0].Message.Content, nil
}

// providerMessage pulls the error message out of a provider error body.
func providerMessage(data []byte) string {
	var parsed wireResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	s := string(data)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
