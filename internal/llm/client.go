// Package llm is a minimal client for OpenAI-compatible chat completion APIs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Request is one completion call
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Completer produces text for a prompt
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config holds provider settings
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls {BaseURL}/chat/completions
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// New creates a client. Empty fields take OpenAI defaults.
func New(cfg Config, log zerolog.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// Model returns the configured model id
func (c *Client) Model() string {
	return c.cfg.Model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends the prompt and returns the first choice. Failures are
// returned as *Error.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" && requiresAPIKey(c.cfg.BaseURL) {
		return "", &Error{Kind: KindInvalidRequest, Message: "missing API key"}
	}

	var messages []chatMessage
	if s := strings.TrimSpace(req.System); s != "" {
		messages = append(messages, chatMessage{Role: "system", Content: s})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.User})

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	start := time.Now()
	res, err := c.http.Do(httpReq)
	if err != nil {
		return "", &Error{Kind: KindConnection, Message: err.Error(), Err: err}
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", &Error{Kind: KindConnection, Message: err.Error(), Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		var er errorResponse
		if json.Unmarshal(respBody, &er) == nil && er.Error.Message != "" {
			msg = er.Error.Message
		}
		kind := classifyStatus(res.StatusCode)
		c.log.Error().Int("status", res.StatusCode).Str("kind", string(kind)).Str("body", msg).Msg("Chat completion failed")
		return "", &Error{Kind: kind, Status: res.StatusCode, Message: msg}
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return "", &Error{Kind: KindAPI, Status: res.StatusCode, Message: "invalid response body", Err: err}
	}
	if len(cr.Choices) == 0 {
		return "", &Error{Kind: KindAPI, Status: res.StatusCode, Message: "response returned no choices"}
	}

	c.log.Debug().Str("model", c.cfg.Model).Dur("elapsed", time.Since(start)).Msg("Chat completion done")
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

// requiresAPIKey is false for local endpoints such as ollama
func requiresAPIKey(baseURL string) bool {
	lower := strings.ToLower(baseURL)
	return !strings.Contains(lower, "localhost") && !strings.Contains(lower, "127.0.0.1") && !strings.Contains(lower, "ollama")
}
