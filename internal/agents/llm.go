package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ufo-trading-engine/config"
)

// Provider identifies the language-model backend.
type Provider string

const (
	ProviderClaude   Provider = "claude"
	ProviderOpenAI   Provider = "openai"
	ProviderDeepSeek Provider = "deepseek"
)

// Completer is the minimal LLM surface the agents need. Tests substitute a
// canned implementation.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Client calls the configured LLM provider's chat API.
type Client struct {
	provider    Provider
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// NewClient creates an LLM client from the agent configuration.
func NewClient(cfg config.AgentConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		provider:    Provider(cfg.Provider),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends a completion request to the configured provider.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	switch c.provider {
	case ProviderClaude:
		return c.completeClaude(ctx, systemPrompt, userPrompt)
	case ProviderOpenAI:
		return c.completeOpenAICompatible(ctx, "https://api.openai.com/v1/chat/completions", systemPrompt, userPrompt)
	case ProviderDeepSeek:
		return c.completeOpenAICompatible(ctx, "https://api.deepseek.com/v1/chat/completions", systemPrompt, userPrompt)
	default:
		return "", fmt.Errorf("unsupported provider: %s", c.provider)
	}
}

type claudeRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	Messages    []message `json:"messages"`
	System      string    `json:"system,omitempty"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) completeClaude(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := claudeRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		System:      systemPrompt,
		Messages:    []message{{Role: "user", Content: userPrompt}},
	}

	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}
	body, err := c.post(ctx, "https://api.anthropic.com/v1/messages", req, headers)
	if err != nil {
		return "", err
	}

	var resp claudeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("API error: %s - %s", resp.Error.Type, resp.Error.Message)
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("empty response from Claude")
	}
	return resp.Content[0].Text, nil
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Client) completeOpenAICompatible(ctx context.Context, endpoint, systemPrompt, userPrompt string) (string, error) {
	req := openAIRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	body, err := c.post(ctx, endpoint, req, headers)
	if err != nil {
		return "", err
	}

	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("API error: %s - %s", resp.Error.Type, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from provider")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}, headers map[string]string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return respBody, nil
}
