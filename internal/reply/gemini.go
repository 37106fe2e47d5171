// ABOUTME: Gemini-backed completion client with fixed generation parameters.
// ABOUTME: Every call runs under a bounded timeout; failures surface as plain errors.

package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/verdin/verdin/internal/config"
)

// Completer produces a completion for a prompt. Implementations must honor
// context cancellation.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GeminiClient calls the Gemini API with fixed generation parameters and
// safety thresholds.
type GeminiClient struct {
	client  *genai.Client
	model   string
	genCfg  *genai.GenerateContentConfig
	timeout time.Duration
}

// NewGeminiClient creates a completion client from the gemini config section.
func NewGeminiClient(ctx context.Context, cfg config.GeminiConfig) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(cfg.Temperature),
		TopP:            genai.Ptr(cfg.TopP),
		MaxOutputTokens: cfg.MaxOutputTokens,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
		},
	}

	return &GeminiClient{
		client:  client,
		model:   cfg.Model,
		genCfg:  genCfg,
		timeout: cfg.RequestTimeout,
	}, nil
}

// Complete sends the prompt and returns the generated text. A timeout,
// transport error or empty payload is returned as an error for the engine to
// substitute a fallback.
func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.genCfg)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty completion payload")
	}
	return text, nil
}
