package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/gmsas95/moneychat/internal/config"
	apperrors "github.com/gmsas95/moneychat/internal/errors"
)

// GeminiClient talks to the Gemini API through the genai SDK
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGeminiClient builds a client for the Gemini API backend. It does not
// contact the network.
func NewGeminiClient(ctx context.Context, provider config.Provider) (*GeminiClient, error) {
	if provider.APIKey == "" {
		return nil, apperrors.ErrCredentialsMissing
	}

	cc := &genai.ClientConfig{
		APIKey:  provider.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if provider.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: provider.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := provider.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	return &GeminiClient{
		client:    client,
		model:     model,
		maxTokens: int32(provider.MaxTokens),
	}, nil
}

// Generate implements Completer
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	var cfg *genai.GenerateContentConfig
	if g.maxTokens > 0 {
		cfg = &genai.GenerateContentConfig{MaxOutputTokens: g.maxTokens}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", apperrors.WithCause(apperrors.ErrProviderUnavailable, err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", apperrors.ErrEmptyCompletion
	}
	return text, nil
}
