package categorization

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

const (
	defaultAnthropicURL   = "https://api.anthropic.com/v1/messages"
	defaultAnthropicModel = "claude-3-5-sonnet-20241022"
	anthropicVersion      = "2023-06-01"
	fallbackMaxTokens     = 200
)

// AnthropicConfig configures the Messages API client.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// AnthropicClassifier classifies through the Anthropic Messages API.
type AnthropicClassifier struct {
	httpClient *http.Client
	apiKey     string
	model      string
	url        string
}

// NewAnthropicClassifier creates a classifier. An empty API key is an error.
func NewAnthropicClassifier(cfg AnthropicConfig) (*AnthropicClassifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAnthropicURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &AnthropicClassifier{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		url:    cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

func (c *AnthropicClassifier) Name() string { return "anthropic" }

func (c *AnthropicClassifier) Classify(ctx context.Context, tx *ledger.Transaction, categories []ledger.Category) (Classification, error) {
	return classifyWith(ctx, tx, categories, c.complete)
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *AnthropicClassifier) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		MaxTokens:   fallbackMaxTokens,
		Temperature: 0,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(raw))
	}

	var decoded anthropicResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	for _, block := range decoded.Content {
		if block.Type == "text" || block.Type == "" {
			return block.Text, nil
		}
	}
	return "", errors.New("no text content in response")
}

// classifyWith builds the prompt, runs complete and decodes and validates the
// answer. Transport failures are reported as ErrFallbackUnavailable.
func classifyWith(ctx context.Context, tx *ledger.Transaction, categories []ledger.Category, complete func(context.Context, string) (string, error)) (Classification, error) {
	if len(categories) == 0 {
		return Classification{}, fmt.Errorf("%w: no categories offered", ErrFallbackCategoryInvalid)
	}

	text, err := complete(ctx, buildPrompt(tx, categories))
	if err != nil {
		return Classification{}, fmt.Errorf("%w: %v", ErrFallbackUnavailable, err)
	}

	c, err := parseClassification(text)
	if err != nil {
		return Classification{}, err
	}
	return validate(c, ledger.IndexCategories(categories))
}
