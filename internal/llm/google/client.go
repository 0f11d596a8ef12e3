// Package google adapts google.golang.org/genai to the llm.Provider
// contract for the Gemini model family.
package google

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"dialectic/internal/config"
	"dialectic/internal/dialecticerr"
	"dialectic/internal/llm"
)

var perMillion = map[string][2]float64{
	"gemini-2.5-pro":   {1.25, 10.00},
	"gemini-2.5-flash": {0.30, 2.50},
}

// Client wraps the Gemini SDK.
type Client struct {
	sdk          *genai.Client
	defaultModel string
	hasAPIKey    bool
}

// New constructs a Client against the Gemini API; it does not validate the
// API key eagerly.
func New(ctx context.Context, cfg config.GoogleConfig) (*Client, error) {
	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, dialecticerr.New(dialecticerr.Transport, "google.New", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Client{sdk: sdk, defaultModel: model, hasAPIKey: strings.TrimSpace(cfg.APIKey) != ""}, nil
}

func (c *Client) Chat(ctx context.Context, model string, messages []llm.Message) (llm.ChatResult, error) {
	if !c.hasAPIKey {
		return llm.ChatResult{}, dialecticerr.New(dialecticerr.Transport, "google.Chat", errAPIKeyMissing)
	}
	if model == "" {
		model = c.defaultModel
	}

	var system string
	var contents []*genai.Content
	for _, m := range messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		role := genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	var cfg *genai.GenerateContentConfig
	if system != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}

	resp, err := c.sdk.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return llm.ChatResult{}, dialecticerr.New(dialecticerr.Transport, "google.Chat", err)
	}

	text := resp.Text()
	usage := llm.Usage{}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return llm.ChatResult{
		Content: text,
		Usage:   usage,
		CostUSD: estimateCost(model, usage),
	}, nil
}

func estimateCost(model string, u llm.Usage) float64 {
	rates, ok := perMillion[model]
	if !ok {
		return 0
	}
	in := float64(u.InputTokens) / 1_000_000 * rates[0]
	out := float64(u.OutputTokens) / 1_000_000 * rates[1]
	cost := in + out
	if cost < 0 {
		return 0
	}
	return cost
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

const errAPIKeyMissing = staticErr("google: GOOGLE_LLM_API_KEY is not configured")
