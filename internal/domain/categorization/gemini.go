package categorization

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig configures the Gemini client. BaseURL overrides the API
// endpoint.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// GeminiClassifier classifies through the Gemini API.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

// NewGeminiClassifier creates a classifier. An empty API key is an error.
func NewGeminiClassifier(ctx context.Context, cfg GeminiConfig) (*GeminiClassifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClassifier{client: client, model: cfg.Model}, nil
}

func (c *GeminiClassifier) Name() string { return "gemini" }

func (c *GeminiClassifier) Classify(ctx context.Context, tx *ledger.Transaction, categories []ledger.Category) (Classification, error) {
	return classifyWith(ctx, tx, categories, c.complete)
}

func (c *GeminiClassifier) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		MaxOutputTokens:  fallbackMaxTokens,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("empty response from model")
	}
	return text, nil
}
