// Package llm is the text-generation collaborator client. It speaks the
// OpenAI-compatible chat completions protocol; credentials and model are
// injected at construction, never read from ambient process state.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Planning prompts embed an exclusion list plus structural instructions
// and generation calls can produce several thousand words, so the request
// timeout is generous. A stalled call fails the step rather than hanging
// the worker forever.
const requestTimeout = 180 * time.Second

// TextGenerator is the contract consumed by the planner and the
// generation job. `Complete` submits one prompt and returns the text.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// Client implements TextGenerator against an OpenAI-compatible API.
type Client struct {
	client *resty.Client
	apiKey string
	model  string
}

var _ TextGenerator = (*Client)(nil)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient builds a client for the given API key, model and base URL
// (e.g. https://api.openai.com/v1).
func NewClient(apiKey, model, baseURL string) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(requestTimeout),
		apiKey: apiKey,
		model:  model,
	}
}

// Complete submits a single-user-message chat completion and returns the
// generated text.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("llm client misconfigured: missing API key")
	}

	req := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	var resp chatResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("completion API error: %s", resp.Error.Message)
	}
	if httpResp.IsError() {
		return "", fmt.Errorf("completion API returned status %d", httpResp.StatusCode())
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("completion API returned no content")
	}

	return resp.Choices[0].Message.Content, nil
}
