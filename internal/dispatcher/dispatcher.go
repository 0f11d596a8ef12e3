// Package dispatcher implements the Agent Dispatcher of spec §4.5: render a
// role's prompt template, call the LLM with a sampled model, parse the
// response, and compute the proposed support delta.
package dispatcher

import (
	"context"
	"math/rand"
	"time"

	"dialectic/internal/arbiter"
	"dialectic/internal/dialecticerr"
	"dialectic/internal/domain"
	"dialectic/internal/llm"
	"dialectic/internal/roles"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Chatter is the minimal LLM capability the dispatcher needs: a model-scoped
// chat call. internal/llm/providers.ModelPool satisfies this.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []llm.Message) (llm.ChatResult, error)
}

// Dispatcher fans a cycle's roster out to the configured model pool.
type Dispatcher struct {
	pool    Chatter
	models  []string
	tracer  trace.Tracer
	onUsage func(role, model string, usage llm.Usage, costUSD float64)
}

// New constructs a Dispatcher. onUsage, if non-nil, is called after every
// completed or errored call so the caller can append an LlmCost row (spec
// §4.5: "The dispatcher also records a cost row").
func New(pool Chatter, models []string, tracer trace.Tracer, onUsage func(role, model string, usage llm.Usage, costUSD float64)) *Dispatcher {
	return &Dispatcher{pool: pool, models: models, tracer: tracer, onUsage: onUsage}
}

// CallResult is one agent call's outcome, wrapped for the Arbiter (spec
// §4.2 "results is an ordered sequence of either errors or tuples").
type CallResult struct {
	arbiter.Result
	Contribution domain.AgentContribution
}

// Dispatch calls one role's agent with a per-call deadline and returns its
// arbiter-ready tuple or an error tuple (spec §4.5 steps 1-5). It never
// returns a Go error itself — transport/parse/timeout failures are captured
// as CallResult.Err so a failing agent never blocks the cycle (spec §7).
func (d *Dispatcher) Dispatch(ctx context.Context, role string, p roles.Prompt, declarationOrder int, deadline time.Duration, rng *rand.Rand) CallResult {
	roleDef, ok := roles.Registry[role]
	if !ok {
		return errResult(role, declarationOrder, dialecticerr.New(dialecticerr.Invariant, "dispatcher.Dispatch", errUnknownRole))
	}

	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if d.tracer != nil {
		var span trace.Span
		cctx, span = d.tracer.Start(cctx, "dispatcher.dispatch")
		defer span.End()
	}

	model := d.sampleModel(rng)
	prompt := roleDef.PromptTemplate(p)
	messages := []llm.Message{
		{Role: "system", Content: "You are a single epistemic agent in a structured multi-agent debate. Respond with a single JSON object and nothing else."},
		{Role: "user", Content: prompt},
	}

	result, err := d.pool.Chat(cctx, model, messages)
	if err != nil {
		kind := dialecticerr.Transport
		if cctx.Err() != nil {
			kind = dialecticerr.Timeout
		}
		d.recordUsage(role, model, llm.Usage{}, 0)
		return errResult(role, declarationOrder, dialecticerr.New(kind, "dispatcher.Dispatch", err))
	}

	d.recordUsage(role, model, result.Usage, result.CostUSD)

	parsed := roles.Parse(role, result.Content)
	delta := 0.0
	if parsed.Valid {
		delta = roleDef.Delta(parsed)
	}

	contribution := domain.AgentContribution{
		ID:           uuid.NewString(),
		AgentRole:    role,
		ModelUsed:    model,
		InputPrompt:  prompt,
		OutputText:   result.Content,
		Accepted:     false, // set by the Runner after Arbiter.Evaluate
		SupportDelta: delta,
		InsertionSeq: declarationOrder,
	}

	return CallResult{
		Result: arbiter.Result{
			Role:             role,
			Model:            model,
			Output:           toArbiterOutput(parsed),
			ProposedDelta:    delta,
			DeclarationOrder: declarationOrder,
		},
		Contribution: contribution,
	}
}

func (d *Dispatcher) sampleModel(rng *rand.Rand) string {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return d.models[rng.Intn(len(d.models))]
}

func (d *Dispatcher) recordUsage(role, model string, usage llm.Usage, cost float64) {
	if d.onUsage == nil {
		return
	}
	if usage.InputTokens < 0 {
		usage.InputTokens = 0
	}
	if usage.OutputTokens < 0 {
		usage.OutputTokens = 0
	}
	if cost < 0 {
		cost = 0
	}
	d.onUsage(role, model, usage, cost)
}

func errResult(role string, declarationOrder int, err error) CallResult {
	return CallResult{Result: arbiter.Result{Role: role, Err: err, DeclarationOrder: declarationOrder}}
}

func toArbiterOutput(o roles.Output) arbiter.Output {
	return arbiter.Output{
		Valid: o.Valid,
		Fields: map[string]string{
			"new_claim":        o.NewClaim,
			"target_premise":   o.TargetPremise,
			"testable_mapping": o.TestableMapping,
			"objection":        o.Objection,
			"analogy":          o.Analogy,
			"framework":        o.Framework,
		},
	}
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

const errUnknownRole = staticErr("dispatcher: unknown agent role")
