// Package openai adapts github.com/openai/openai-go/v2 to the llm.Provider
// contract.
package openai

import (
	"context"
	"net/http"
	"strings"

	openaisdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"dialectic/internal/config"
	"dialectic/internal/dialecticerr"
	"dialectic/internal/llm"
)

var perMillion = map[string][2]float64{
	"gpt-5":      {1.25, 10.00},
	"gpt-5-mini": {0.25, 2.00},
	"gpt-4o":     {2.50, 10.00},
	"gpt-4o-mini": {0.15, 0.60},
}

// Client wraps the OpenAI SDK.
type Client struct {
	sdk          openaisdk.Client
	defaultModel string
	hasAPIKey    bool
}

// New constructs a Client; it does not validate the API key eagerly.
func New(cfg config.OpenAIConfig, httpClient *http.Client) *Client {
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
		model = openaisdk.ChatModelGPT4o
	}
	return &Client{sdk: openaisdk.NewClient(opts...), defaultModel: model, hasAPIKey: strings.TrimSpace(cfg.APIKey) != ""}
}

func (c *Client) Chat(ctx context.Context, model string, messages []llm.Message) (llm.ChatResult, error) {
	if !c.hasAPIKey {
		return llm.ChatResult{}, dialecticerr.New(dialecticerr.Transport, "openai.Chat", errAPIKeyMissing)
	}
	if model == "" {
		model = c.defaultModel
	}

	converted := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			converted = append(converted, openaisdk.SystemMessage(m.Content))
		case "assistant":
			converted = append(converted, openaisdk.AssistantMessage(m.Content))
		default:
			converted = append(converted, openaisdk.UserMessage(m.Content))
		}
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:    model,
		Messages: converted,
	})
	if err != nil {
		return llm.ChatResult{}, dialecticerr.New(dialecticerr.Transport, "openai.Chat", err)
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResult{}, dialecticerr.New(dialecticerr.Parse, "openai.Chat", errNoChoices)
	}

	usage := llm.Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	return llm.ChatResult{
		Content: resp.Choices[0].Message.Content,
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

const (
	errAPIKeyMissing = staticErr("openai: OPENAI_API_KEY is not configured")
	errNoChoices     = staticErr("openai: empty choices in response")
)
