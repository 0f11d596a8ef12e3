// Package trajectory implements the Trajectory / Change Detector of spec
// §4.6: embed each non-null claim, compute cosine similarity against the
// previous point, and classify meaningful transitions.
package trajectory

import (
	"context"
	"strings"

	"dialectic/internal/dialecticerr"
	"dialectic/internal/domain"
	"dialectic/internal/embedding"
	"dialectic/internal/llm"
	"dialectic/internal/persistence"

	"github.com/google/uuid"
)

// Embedder is the embedding transport capability (spec §6 "embed(text) ->
// vector"). internal/embedding.Client adapts the real HTTP endpoint.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Classifier runs the summarizer-tier LLM calls for change-type
// classification and semantic diffing (spec §4.6).
type Classifier interface {
	Chat(ctx context.Context, model string, messages []llm.Message) (llm.ChatResult, error)
}

// Detector computes TrajectoryPoints and ClaimTransitions for one session.
type Detector struct {
	store               persistence.TrajectoryStore
	embedder            Embedder
	classifier          Classifier
	classifierModel     string
	similarityThreshold float64

	// stagnationRun counts consecutive cycles with similarity >=
	// threshold (no transition), for the Cartographer stagnation signal.
	stagnationRun int
}

// New constructs a Detector. similarityThreshold is the session's
// configured cutoff (spec §6 default 0.95).
func New(store persistence.TrajectoryStore, embedder Embedder, classifier Classifier, classifierModel string, similarityThreshold float64) *Detector {
	return &Detector{
		store:               store,
		embedder:            embedder,
		classifier:          classifier,
		classifierModel:     classifierModel,
		similarityThreshold: similarityThreshold,
	}
}

// ProcessCycle embeds claimText (the current non-null claim), persists a
// TrajectoryPoint, and — if this isn't the first point — runs the Change
// Detector against the immediately previous point (spec §4.4 TRAJECTORY
// phase, §4.6).
func (d *Detector) ProcessCycle(ctx context.Context, blackboardID, claimText string, cycleNumber int, supportStrength float64, contributions []domain.AgentContribution) (*domain.ClaimTransition, error) {
	vec, err := d.embedder.Embed(ctx, claimText)
	if err != nil {
		return nil, dialecticerr.New(dialecticerr.Transport, "trajectory.ProcessCycle", err)
	}

	point := domain.TrajectoryPoint{
		CycleNumber:     cycleNumber,
		EmbeddingVector: vec,
		ClaimText:       claimText,
		SupportStrength: supportStrength,
	}
	if err := d.store.SaveTrajectoryPoint(ctx, blackboardID, point); err != nil {
		return nil, dialecticerr.New(dialecticerr.Persist, "trajectory.ProcessCycle", err)
	}

	prev, ok, err := d.store.PreviousTrajectoryPoint(ctx, blackboardID, cycleNumber)
	if err != nil {
		return nil, dialecticerr.New(dialecticerr.Persist, "trajectory.ProcessCycle", err)
	}
	if !ok {
		d.stagnationRun = 0
		return nil, nil
	}

	similarity := embedding.CosineSimilarity(prev.EmbeddingVector, vec)
	if similarity >= d.similarityThreshold {
		d.stagnationRun++
		return nil, nil
	}
	d.stagnationRun = 0

	// Idempotence: a transition already recorded for this (blackboardID,
	// toCycle) is returned unchanged rather than recomputed (spec §4.6,
	// §8 round-trip property).
	if existing, found, err := d.store.GetTransition(ctx, blackboardID, cycleNumber); err == nil && found {
		return &existing, nil
	}

	changeType := d.classifyChange(ctx, prev.ClaimText, claimText)
	additions, removals := d.semanticDiff(ctx, prev.ClaimText, claimText)
	triggerAgent, triggerID := triggerOf(contributions)

	transition := domain.ClaimTransition{
		FromCycle:             prev.CycleNumber,
		ToCycle:               cycleNumber,
		PreviousClaim:         prev.ClaimText,
		NewClaim:              claimText,
		TriggerAgent:          triggerAgent,
		TriggerContributionID: triggerID,
		ChangeType:            changeType,
		DiffAdditions:         additions,
		DiffRemovals:          removals,
	}
	if err := d.store.SaveTransition(ctx, blackboardID, transition); err != nil {
		return nil, dialecticerr.New(dialecticerr.Persist, "trajectory.ProcessCycle", err)
	}
	return &transition, nil
}

// StagnationSignal reports whether the last three consecutive cycles
// produced no transition (spec §4.6). Calling this consumes the signal.
func (d *Detector) StagnationSignal() bool {
	if d.stagnationRun >= 3 {
		d.stagnationRun = 0
		return true
	}
	return false
}

func triggerOf(contributions []domain.AgentContribution) (agent, contributionID string) {
	var best *domain.AgentContribution
	for i := range contributions {
		c := &contributions[i]
		if !c.Accepted {
			continue
		}
		if best == nil || absf(c.SupportDelta) > absf(best.SupportDelta) {
			best = c
		}
	}
	if best == nil {
		return "unknown", "unknown"
	}
	return best.AgentRole, best.ID
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// classifyChange runs the four-way forced-choice classification call; any
// failure or unrecognized output falls back to "refinement" (spec §4.6).
func (d *Detector) classifyChange(ctx context.Context, previous, current string) domain.ChangeType {
	prompt := "Classify the change from the previous claim to the new claim as exactly one of: refinement, pivot, expansion, contraction.\n" +
		"Previous: " + previous + "\nNew: " + current + "\nRespond with only the single word."
	result, err := d.classifier.Chat(ctx, d.classifierModel, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return domain.ChangeRefinement
	}
	switch strings.ToLower(strings.TrimSpace(result.Content)) {
	case string(domain.ChangePivot):
		return domain.ChangePivot
	case string(domain.ChangeExpansion):
		return domain.ChangeExpansion
	case string(domain.ChangeContraction):
		return domain.ChangeContraction
	case string(domain.ChangeRefinement):
		return domain.ChangeRefinement
	default:
		return domain.ChangeRefinement
	}
}

// semanticDiff runs the bounded semantic-diff call; on any failure both
// lists are empty (spec §4.6).
func (d *Detector) semanticDiff(ctx context.Context, previous, current string) (additions, removals []string) {
	prompt := "List up to 5 short phrases (2-5 words) added and up to 5 removed between the previous and new claim, as JSON: " +
		`{"additions": [string], "removals": [string]}.` +
		"\nPrevious: " + previous + "\nNew: " + current
	result, err := d.classifier.Chat(ctx, d.classifierModel, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		return nil, nil
	}
	type diffResp struct {
		Additions []string `json:"additions"`
		Removals  []string `json:"removals"`
	}
	var parsed diffResp
	if err := unmarshalLoose(result.Content, &parsed); err != nil {
		return nil, nil
	}
	return boundList(parsed.Additions), boundList(parsed.Removals)
}

func boundList(items []string) []string {
	if len(items) > 5 {
		items = items[:5]
	}
	return items
}

// NewTrajectoryPointID generates an id for callers that need one outside the
// store-assigned primary key path (e.g. in-memory fixtures).
func NewTrajectoryPointID() string { return uuid.NewString() }
