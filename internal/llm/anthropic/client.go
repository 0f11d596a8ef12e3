// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to the
// llm.Provider contract: a single non-streaming chat call that returns
// normalized usage and cost.
package anthropic

import (
	"context"
	"net/http"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"dialectic/internal/config"
	"dialectic/internal/dialecticerr"
	"dialectic/internal/llm"
)

const defaultMaxTokens int64 = 2048

// perMillion holds per-model USD pricing, input/output per million tokens.
// Used to derive ChatResult.CostUSD since the SDK reports only raw usage.
var perMillion = map[string][2]float64{
	"claude-opus-4-5":   {15.00, 75.00},
	"claude-sonnet-4-5": {3.00, 15.00},
	"claude-haiku-4-5":  {1.00, 5.00},
}

// Client wraps the Anthropic SDK for one configured default model; callers
// may override the model per-call (the dispatcher samples across the pool).
type Client struct {
	sdk          anthropicsdk.Client
	defaultModel string
	hasAPIKey    bool
}

// New constructs a Client. Per spec §9, it does not validate the API key
// eagerly — Chat returns a Transport error when the key is missing.
func New(cfg config.AnthropicConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropicsdk.ModelClaudeSonnet4_5)
	}
	return &Client{sdk: anthropicsdk.NewClient(opts...), defaultModel: model, hasAPIKey: strings.TrimSpace(cfg.APIKey) != ""}
}

func (c *Client) Chat(ctx context.Context, model string, messages []llm.Message) (llm.ChatResult, error) {
	if !c.hasAPIKey {
		return llm.ChatResult{}, dialecticerr.New(dialecticerr.Transport, "anthropic.Chat", errAPIKeyMissing)
	}
	if model == "" {
		model = c.defaultModel
	}

	var system string
	converted := make([]anthropicsdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case "assistant":
			converted = append(converted, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		}
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		Messages:  converted,
		MaxTokens: defaultMaxTokens,
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return llm.ChatResult{}, dialecticerr.New(dialecticerr.Transport, "anthropic.Chat", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	usage := llm.Usage{
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	return llm.ChatResult{
		Content: content.String(),
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

type apiKeyMissingErr struct{}

func (apiKeyMissingErr) Error() string { return "anthropic: ANTHROPIC_API_KEY is not configured" }

var errAPIKeyMissing = apiKeyMissingErr{}
