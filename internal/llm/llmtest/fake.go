// Package llmtest provides deterministic fakes for the LLM and embedding
// transports, grounded on the teacher's internal/testhelpers.FakeProvider
// pattern: a scripted stub so dispatcher/cycle tests never hit
// the network.
package llmtest

import (
	"context"
	"sync"

	"dialectic/internal/llm"
)

// FakeProvider returns scripted responses keyed by call order, repeating the
// last one once the script is exhausted. Default is used only when no
// responses are scripted.
type FakeProvider struct {
	mu       sync.Mutex
	scripted []string
	calls    int
	Default  func(model string, messages []llm.Message) (llm.ChatResult, error)

	// Calls records every invocation for test assertions.
	Calls []FakeCall
}

// FakeCall is one recorded invocation.
type FakeCall struct {
	Model    string
	Messages []llm.Message
}

// NewFakeProvider returns a FakeProvider that yields responses in order,
// one per call, then repeats the last response indefinitely.
func NewFakeProvider(responses ...string) *FakeProvider {
	return &FakeProvider{scripted: responses}
}

func (f *FakeProvider) Chat(_ context.Context, model string, messages []llm.Message) (llm.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FakeCall{Model: model, Messages: messages})

	if f.Default != nil && len(f.scripted) == 0 {
		return f.Default(model, messages)
	}
	if len(f.scripted) == 0 {
		return llm.ChatResult{Content: "{}"}, nil
	}
	idx := f.calls
	if idx >= len(f.scripted) {
		idx = len(f.scripted) - 1
	}
	f.calls++
	content := f.scripted[idx]
	return llm.ChatResult{
		Content: content,
		Usage:   llm.Usage{InputTokens: 10, OutputTokens: 10},
		CostUSD: 0.0001,
	}, nil
}

// FakeEmbedder returns a deterministic pseudo-embedding for a given text,
// useful for Trajectory tests that need stable cosine similarities without
// calling a real embedding endpoint.
type FakeEmbedder struct {
	mu    sync.Mutex
	Calls []string
}

// Embed hashes text into a small fixed-dimension vector deterministically.
func (f *FakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, text)
	f.mu.Unlock()
	return DeterministicVector(text, 8), nil
}

// DeterministicVector derives a reproducible vector from text so tests can
// assert exact similarity values without a real embedding model.
func DeterministicVector(text string, dims int) []float32 {
	v := make([]float32, dims)
	h := fnv32(text)
	for i := range v {
		h = h*1000003 + uint32(i)
		v[i] = float32(h%2000)/1000.0 - 1.0
	}
	return v
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}
