// Package providers resolves model identifiers configured in a session's
// model_pool to a concrete llm.Provider (spec §9: "Abstract behind a
// capability set {chat(model, messages), chat_random(messages)} with
// pluggable implementations").
package providers

import (
	"context"
	"math/rand"
	"net/http"
	"strings"

	"dialectic/internal/config"
	"dialectic/internal/dialecticerr"
	"dialectic/internal/llm"
	"dialectic/internal/llm/anthropic"
	"dialectic/internal/llm/google"
	"dialectic/internal/llm/openai"
)

// ModelPool resolves a model id to a Provider and supports the dispatcher's
// "randomly sampled model" requirement (spec §4.5).
type ModelPool struct {
	models    []string
	providers map[string]llm.Provider // keyed by model family
}

// family buckets a model string by its provider, since the pool is a flat
// list of model ids (spec §6 "model_pool: ordered set of model identifiers").
func family(model string) string {
	switch {
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gemini"):
		return "google"
	default:
		return "openai"
	}
}

// New builds a ModelPool serving the given ordered model identifiers. Each
// real provider client is constructed once; no network call happens until
// Chat is invoked.
func New(ctx context.Context, cfg config.LLMClientConfig, models []string, httpClient *http.Client) (*ModelPool, error) {
	if len(models) == 0 {
		return nil, dialecticerr.New(dialecticerr.Validation, "providers.New", errEmptyModelPool)
	}
	pool := &ModelPool{
		models:    append([]string(nil), models...),
		providers: make(map[string]llm.Provider, 3),
	}

	needed := make(map[string]bool, 3)
	for _, m := range models {
		needed[family(m)] = true
	}
	if needed["anthropic"] {
		pool.providers["anthropic"] = anthropic.New(cfg.Anthropic, httpClient)
	}
	if needed["openai"] {
		pool.providers["openai"] = openai.New(cfg.OpenAI, httpClient)
	}
	if needed["google"] {
		gclient, err := google.New(ctx, cfg.Google)
		if err != nil {
			return nil, err
		}
		pool.providers["google"] = gclient
	}
	return pool, nil
}

// Models returns the configured ordered model pool.
func (p *ModelPool) Models() []string { return append([]string(nil), p.models...) }

// Chat validates model against the configured pool and dispatches to its
// family's provider. Per spec §9, the real implementation raises at the
// interface boundary if model isn't in the pool.
func (p *ModelPool) Chat(ctx context.Context, model string, messages []llm.Message) (llm.ChatResult, error) {
	if !p.contains(model) {
		return llm.ChatResult{}, dialecticerr.New(dialecticerr.Validation, "providers.Chat", errModelNotInPool)
	}
	provider, ok := p.providers[family(model)]
	if !ok {
		return llm.ChatResult{}, dialecticerr.New(dialecticerr.Validation, "providers.Chat", errNoProviderForFamily)
	}
	return provider.Chat(ctx, model, messages)
}

// ChatRandom uniformly samples a model from the pool and dispatches to it
// (spec §4.5 "Calls the LLM with a randomly sampled model"; §9
// "chat_random(messages)"). rng is injectable for deterministic tests.
func (p *ModelPool) ChatRandom(ctx context.Context, messages []llm.Message, rng *rand.Rand) (string, llm.ChatResult, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	model := p.models[rng.Intn(len(p.models))]
	result, err := p.Chat(ctx, model, messages)
	return model, result, err
}

func (p *ModelPool) contains(model string) bool {
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

const (
	errEmptyModelPool      = staticErr("providers: model_pool must contain at least one model")
	errModelNotInPool      = staticErr("providers: model is not a member of the configured model_pool")
	errNoProviderForFamily = staticErr("providers: no provider configured for model family")
)
