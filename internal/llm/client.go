// Package llm provides the Anthropic Messages API client and the decision
// ports built on it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://api.anthropic.com/v1/messages"
	DefaultModel   = "claude-haiku-4-5-20251001"
	apiVersion     = "2023-06-01"
)

// ErrNotConfigured is returned by a client without an API key.
var ErrNotConfigured = errors.New("LLM client not configured")

// ErrRateLimited is returned when the per-minute call budget is spent.
var ErrRateLimited = errors.New("LLM rate limit exceeded")

// Completer sends one system + user prompt pair and returns the reply text.
type Completer interface {
	Complete(ctx context.Context, system, userPrompt string, maxTokens int) (string, error)
}

// ClientConfig configures a Client. Zero fields take defaults.
type ClientConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxPerMin int
	Timeout   time.Duration
}

// Client wraps the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	// calls counted against maxPerMin until resetAt
	mu        sync.Mutex
	callCount int
	resetAt   time.Time
	maxPerMin int
}

// NewClient creates an API client.
// Returns nil if the API key is empty (model-backed decisions disabled).
func NewClient(cfg ClientConfig) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxPerMin <= 0 {
		cfg.MaxPerMin = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxPerMin:  cfg.MaxPerMin,
	}
}

// Enabled reports whether an API key is configured. A nil client is disabled.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Model returns the model name sent with each request.
func (c *Client) Model() string {
	return c.model
}

// Message is one turn of the Messages API conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// request is the Messages API request body.
type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

// response is the subset of the Messages API reply the decider reads.
type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a prompt and returns the first text block of the reply.
func (c *Client) Complete(ctx context.Context, system, userPrompt string, maxTokens int) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	if err := c.take(); err != nil {
		return "", err
	}

	body, err := json.Marshal(request{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages: []Message{
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"model":         c.model,
		"input_tokens":  apiResp.Usage.InputTokens,
		"output_tokens": apiResp.Usage.OutputTokens,
	}).Debug("model call")

	for _, block := range apiResp.Content {
		if block.Type == "" || block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("empty response")
}

// take reserves one call from the per-minute budget.
func (c *Client) take() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if now.After(c.resetAt) {
		c.callCount = 0
		c.resetAt = now.Add(time.Minute)
	}
	if c.callCount >= c.maxPerMin {
		return fmt.Errorf("%w (%d calls/min)", ErrRateLimited, c.maxPerMin)
	}
	c.callCount++
	return nil
}
