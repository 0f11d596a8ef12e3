// Package cycle implements the Cycle Runner finite-state machine of spec
// §4.4: one full pass of READ -> WRITE -> ARBITER -> APPLY -> PERTURB ->
// TRAJECTORY -> PERSIST -> EMIT per session tick, driven by the owning
// Session Supervisor task.
package cycle

import (
	"context"
	"math/rand"
	"time"

	"dialectic/internal/arbiter"
	"dialectic/internal/blackboard"
	"dialectic/internal/dialecticerr"
	"dialectic/internal/dispatcher"
	"dialectic/internal/domain"
	"dialectic/internal/eventbus"
	"dialectic/internal/roles"
	"dialectic/internal/trajectory"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// minCallDeadline is the floor on a single agent call's timeout regardless of
// how many agents share the cycle budget (spec §4.4 WRITE).
const minCallDeadline = 30 * time.Second

// Options configures one Runner instance; all fields are read-only for the
// lifetime of the Runner (spec §5 single-writer discipline).
type Options struct {
	MaxCycles               int
	CycleTimeout            time.Duration
	DecayRate               float64
	PerturbationProbability float64
	CostLimitUSD            *float64
}

// Outcome reports why the Runner stopped (spec §4.4 "Termination").
type Outcome string

const (
	OutcomeMaxCycles    Outcome = "max_cycles"
	OutcomeGraduated    Outcome = "graduated"
	OutcomeDied         Outcome = "died"
	OutcomeCostExceeded Outcome = "cost_exceeded"
	OutcomeStopped      Outcome = "stopped"
	OutcomeInvariant    Outcome = "invariant_error"
)

// Runner drives one session's Blackboard through repeated cycles. It owns
// the Blackboard exclusively; no other goroutine may call its mutators
// concurrently (spec §5).
type Runner struct {
	sessionID  string
	bb         *blackboard.Blackboard
	dispatcher *dispatcher.Dispatcher
	detector   *trajectory.Detector
	bus        eventbus.Bus
	costStore  costSaver
	opts       Options
	rng        *rand.Rand

	stopRequested      bool
	objectionSince     int // cycles active_objection has persisted unchanged
	lastObjection      string
	pendingPerturb     bool
	pendingPerturbSeed string
}

// costSaver is the narrow slice of persistence.CostStore the Runner needs,
// named independently so tests can supply an in-memory fake.
type costSaver interface {
	SaveCost(ctx context.Context, blackboardID string, c domain.LlmCost) error
	TotalCost(ctx context.Context, blackboardID string) (float64, error)
}

// New constructs a Runner for one session. rng is injectable for
// deterministic tests; pass nil for a randomly seeded source.
func New(sessionID string, bb *blackboard.Blackboard, d *dispatcher.Dispatcher, det *trajectory.Detector, bus eventbus.Bus, costStore costSaver, opts Options, rng *rand.Rand) *Runner {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Runner{
		sessionID:  sessionID,
		bb:         bb,
		dispatcher: d,
		detector:   det,
		bus:        bus,
		costStore:  costStore,
		opts:       opts,
		rng:        rng,
	}
}

// RequestStop asks the Runner to halt at the next FSM boundary (spec §5
// "External stop and pause signals interrupt between FSM states").
func (r *Runner) RequestStop() { r.stopRequested = true }

// CycleCount, SupportStrength and CurrentClaim expose the underlying
// Blackboard's live state for session status reporting (spec §7).
func (r *Runner) CycleCount() int          { return r.bb.CycleCount() }
func (r *Runner) SupportStrength() float64 { return r.bb.SupportStrength() }
func (r *Runner) CurrentClaim() *string    { return r.bb.CurrentClaim() }

// Run drives cycles until a termination condition fires (spec §4.4
// "Termination") or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	for {
		if r.stopRequested {
			return OutcomeStopped, nil
		}
		if ctx.Err() != nil {
			return OutcomeStopped, ctx.Err()
		}
		if r.bb.CycleCount() >= r.opts.MaxCycles {
			return OutcomeMaxCycles, nil
		}
		if exceeded, err := r.costExceeded(ctx); err != nil {
			return OutcomeInvariant, err
		} else if exceeded {
			return OutcomeCostExceeded, nil
		}

		outcome, done, err := r.runOneCycle(ctx)
		if err != nil {
			return OutcomeInvariant, err
		}
		if done {
			return outcome, nil
		}
	}
}

// runOneCycle executes one full IDLE->...->EMIT pass (spec §4.4). done is
// true when the cycle itself produced a terminal condition.
func (r *Runner) runOneCycle(ctx context.Context) (outcome Outcome, done bool, err error) {
	start := time.Now()
	cycleNumber := r.bb.IncrementCycle()

	eventbus.PublishToSessionAndGlobal(ctx, r.bus, r.sessionID, eventbus.Event{
		Kind: "cycle_started",
		Data: map[string]any{"session_id": r.sessionID, "cycle_number": cycleNumber},
	})

	// READ
	snap := r.bb.GetState()
	stagnation := r.detector.StagnationSignal()
	roster := roles.Roster(cycleNumber, snap.SupportStrength, stagnation, r.pendingPerturb)
	r.pendingPerturb = false

	// WRITE
	results := r.writeRoster(ctx, roster, snap)

	// ARBITER
	accepted := arbiter.Evaluate(arbiterResultsOf(results), snap)

	// APPLY — applies the implicit decay contribution first (spec §9 Open
	// Question 2), then accepted contributions in their deterministic order.
	applyOutcome, err := r.apply(ctx, cycleNumber, results, accepted)
	if err != nil {
		return "", false, err
	}

	r.trackObjection()

	// PERTURB
	r.perturb()

	// TRAJECTORY
	if claim := r.bb.CurrentClaim(); claim != nil {
		if _, err := r.detector.ProcessCycle(ctx, r.bb.ID(), *claim, cycleNumber, r.bb.SupportStrength(), contributionsOf(results)); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("blackboard_id", r.bb.ID()).Msg("trajectory.ProcessCycle failed")
		}
	}

	// PERSIST
	if err := r.bb.PersistState(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("persist_state failed, retrying next cycle")
	}
	if err := r.bb.CreateSnapshot(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("create_snapshot failed")
	}

	// EMIT
	eventbus.PublishToSessionAndGlobal(ctx, r.bus, r.sessionID, eventbus.Event{
		Kind: "cycle_complete",
		Data: map[string]any{
			"session_id":       r.sessionID,
			"cycle_number":     cycleNumber,
			"duration_ms":      time.Since(start).Milliseconds(),
			"support_strength": r.bb.SupportStrength(),
			"current_claim":    r.bb.CurrentClaim(),
		},
	})

	if applyOutcome.Graduated {
		eventbus.PublishToSessionAndGlobal(ctx, r.bus, r.sessionID, eventbus.Event{Kind: "claim_graduated"})
		return OutcomeGraduated, true, nil
	}
	if applyOutcome.Died {
		eventbus.PublishToSessionAndGlobal(ctx, r.bus, r.sessionID, eventbus.Event{Kind: "claim_died"})
		return OutcomeDied, true, nil
	}
	return "", false, nil
}

// writeRoster dispatches every roster role concurrently (bounded by the
// roster itself, spec §5 "bounded fan-out") and collects their results in
// declaration order for deterministic APPLY tie-breaking.
func (r *Runner) writeRoster(ctx context.Context, roster []string, snap domain.BlackboardSnapshot) []dispatcher.CallResult {
	deadline := r.perCallDeadline(len(roster))
	results := make([]dispatcher.CallResult, len(roster))

	group, gctx := errgroup.WithContext(ctx)
	for i, role := range roster {
		i, role := i, role
		seed := r.rng.Int63()
		group.Go(func() error {
			prompt := r.promptFor(role, snap)
			results[i] = r.dispatcher.Dispatch(gctx, role, prompt, i, deadline, rand.New(rand.NewSource(seed)))
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (r *Runner) perCallDeadline(agentCount int) time.Duration {
	if agentCount == 0 {
		return minCallDeadline
	}
	budget := r.opts.CycleTimeout / time.Duration(agentCount)
	if budget < minCallDeadline {
		return minCallDeadline
	}
	return budget
}

func (r *Runner) promptFor(role string, snap domain.BlackboardSnapshot) roles.Prompt {
	p := roles.Prompt{
		SupportStrength: snap.SupportStrength,
		CycleCount:      snap.CycleCount,
	}
	if snap.CurrentClaim != nil {
		p.Claim = *snap.CurrentClaim
	}
	if snap.ActiveObjection != nil {
		p.ActiveObjection = *snap.ActiveObjection
	}
	if snap.AnalogyOfRecord != nil {
		p.AnalogyOfRecord = *snap.AnalogyOfRecord
	}
	switch role {
	case roles.Translator:
		p.TranslatorFramework = r.bb.GetNextTranslatorFramework()
	case roles.Perturber:
		p.PerturbationSeed = r.pendingPerturbSeed
	case roles.Cartographer:
		p.StagnationSignal = true
	}
	return p
}

// applyResult summarizes what APPLY produced this cycle.
type applyResult struct {
	Graduated bool
	Died      bool
}

// apply persists every contribution, then serially invokes update_support in
// the deterministic order of §4.2, applying role-specific side effects, and
// halts early on death or graduation (spec §4.4 "APPLY").
func (r *Runner) apply(ctx context.Context, cycleNumber int, results []dispatcher.CallResult, accepted []arbiter.Accepted) (applyResult, error) {
	acceptedByOrder := make(map[int]bool, len(accepted))
	deltaByOrder := make(map[int]float64, len(accepted))
	for _, a := range accepted {
		acceptedByOrder[a.DeclarationOrder] = true
		deltaByOrder[a.DeclarationOrder] = a.SupportDelta
	}

	for i := range results {
		if results[i].Err != nil {
			continue
		}
		results[i].Contribution.CycleNumber = cycleNumber
		results[i].Contribution.Accepted = acceptedByOrder[results[i].DeclarationOrder]
		_ = r.bb.SaveContribution(ctx, results[i].Contribution)
	}

	// The passive per-cycle decay is the first implicit contribution applied
	// in APPLY (spec §9 Open Question 2).
	if r.opts.DecayRate != 0 {
		if out := r.bb.UpdateSupport(-r.opts.DecayRate); out.Graduated || out.Died {
			return applyResult{Graduated: out.Graduated, Died: out.Died}, nil
		}
	}

	for _, a := range accepted {
		out := r.bb.UpdateSupport(deltaByOrder[a.DeclarationOrder])
		r.applySideEffects(a)
		eventbus.PublishToSessionAndGlobal(ctx, r.bus, r.sessionID, eventbus.Event{Kind: "support_updated", Data: out.New})
		if out.Graduated || out.Died {
			return applyResult{Graduated: out.Graduated, Died: out.Died}, nil
		}
	}
	return applyResult{}, nil
}

// applySideEffects implements the role-specific mutations of spec §4.4
// APPLY: Explorer writes the new claim; Critic sets active_objection;
// Connector sets analogy_of_record; Translator records framework; Perturber
// activates the frontier idea.
func (r *Runner) applySideEffects(a arbiter.Accepted) {
	switch a.Role {
	case arbiter.RoleExplorer:
		if claim := a.Output.Fields["new_claim"]; claim != "" {
			r.bb.UpdateClaim(claim)
			eventbus.PublishToSessionAndGlobal(context.Background(), r.bus, r.sessionID, eventbus.Event{Kind: "claim_updated", Data: claim})
		}
	case arbiter.RoleCritic:
		objection := a.Output.Fields["objection"]
		r.bb.SetActiveObjection(&objection)
	case arbiter.RoleConnector:
		analogy := a.Output.Fields["analogy"]
		r.bb.SetAnalogy(&analogy)
	case roles.Translator:
		if fw := a.Output.Fields["framework"]; fw != "" {
			r.bb.RecordTranslatorFramework(fw)
		}
	}
	// Perturber's frontier activation happens directly in the PERTURB phase
	// (spec §4.3): by the time an accepted Perturber contribution reaches
	// APPLY, the idea it was seeded with is already activated.
}

// trackObjection maintains the consecutive-cycles-without-attribution-change
// counter the PERTURB phase consults (spec §4.3 "force perturbation"):
// active_objection persisting unchanged across cycles, whether because no
// Critic output was accepted or because the accepted one repeats the text.
func (r *Runner) trackObjection() {
	objection := r.bb.GetState().ActiveObjection
	switch {
	case objection == nil:
		r.objectionSince = 0
		r.lastObjection = ""
	case *objection == r.lastObjection:
		r.objectionSince++
	default:
		r.objectionSince = 1
		r.lastObjection = *objection
	}
}

// perturb implements spec §4.3's PERTURB phase: fires with configured
// probability, or unconditionally if active_objection has persisted 3
// consecutive cycles without attribution change. On fire, it selects and
// directly activates a weighted frontier idea, feeding it to the Perturber
// agent in the following cycle (spec §4.3 "fed to the Perturber agent in
// the following cycle").
func (r *Runner) perturb() {
	forced := r.objectionSince >= 3
	fired := forced || r.rng.Float64() < r.opts.PerturbationProbability
	if !fired {
		return
	}
	idea := r.bb.SelectWeightedFrontier(r.rng)
	if idea == nil {
		return
	}
	r.bb.ActivateFrontier(idea.ID)
	r.pendingPerturb = true
	r.pendingPerturbSeed = idea.IdeaText
}

func (r *Runner) costExceeded(ctx context.Context) (bool, error) {
	limit := r.bb.CostLimitUSD()
	if limit == nil {
		return false, nil
	}
	total, err := r.costStore.TotalCost(ctx, r.bb.ID())
	if err != nil {
		return false, dialecticerr.New(dialecticerr.Persist, "cycle.costExceeded", err)
	}
	return total >= *limit, nil
}

func arbiterResultsOf(results []dispatcher.CallResult) []arbiter.Result {
	out := make([]arbiter.Result, len(results))
	for i, r := range results {
		out[i] = r.Result
	}
	return out
}

func contributionsOf(results []dispatcher.CallResult) []domain.AgentContribution {
	out := make([]domain.AgentContribution, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		out = append(out, r.Contribution)
	}
	return out
}
