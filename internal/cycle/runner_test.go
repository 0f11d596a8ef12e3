package cycle

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"dialectic/internal/blackboard"
	"dialectic/internal/dispatcher"
	"dialectic/internal/domain"
	"dialectic/internal/eventbus"
	"dialectic/internal/llm/llmtest"
	"dialectic/internal/trajectory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore implements persistence.Store entirely in memory for Runner tests.
type memStore struct {
	snapshot    domain.BlackboardSnapshot
	snaps       []domain.BlackboardSnapshot
	contribs    []domain.AgentContribution
	points      map[string][]domain.TrajectoryPoint
	transitions map[int]domain.ClaimTransition
	costs       []domain.LlmCost
}

func newMemStore() *memStore {
	return &memStore{points: map[string][]domain.TrajectoryPoint{}, transitions: map[int]domain.ClaimTransition{}}
}

func (m *memStore) SaveState(_ context.Context, snap domain.BlackboardSnapshot) error {
	m.snapshot = snap
	return nil
}
func (m *memStore) LoadState(_ context.Context, _ string) (domain.BlackboardSnapshot, error) {
	return m.snapshot, nil
}
func (m *memStore) CreateSnapshot(_ context.Context, snap domain.BlackboardSnapshot) error {
	m.snaps = append(m.snaps, snap)
	return nil
}
func (m *memStore) GetSnapshots(_ context.Context, _ string, _, _ int) ([]domain.BlackboardSnapshot, error) {
	return m.snaps, nil
}
func (m *memStore) DeleteBlackboard(_ context.Context, _ string) error { return nil }

func (m *memStore) SaveContribution(_ context.Context, _ string, c domain.AgentContribution) error {
	m.contribs = append(m.contribs, c)
	return nil
}
func (m *memStore) ListContributions(_ context.Context, _ string, cycleNumber int) ([]domain.AgentContribution, error) {
	var out []domain.AgentContribution
	for _, c := range m.contribs {
		if c.CycleNumber == cycleNumber {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) SaveTrajectoryPoint(_ context.Context, id string, p domain.TrajectoryPoint) error {
	m.points[id] = append(m.points[id], p)
	return nil
}
func (m *memStore) PreviousTrajectoryPoint(_ context.Context, id string, beforeCycle int) (domain.TrajectoryPoint, bool, error) {
	pts := m.points[id]
	var best *domain.TrajectoryPoint
	for i := range pts {
		if pts[i].CycleNumber < beforeCycle {
			if best == nil || pts[i].CycleNumber > best.CycleNumber {
				best = &pts[i]
			}
		}
	}
	if best == nil {
		return domain.TrajectoryPoint{}, false, nil
	}
	return *best, true, nil
}
func (m *memStore) RecentTrajectoryPoints(_ context.Context, id string, _ int) ([]domain.TrajectoryPoint, error) {
	return m.points[id], nil
}
func (m *memStore) SaveTransition(_ context.Context, _ string, t domain.ClaimTransition) error {
	m.transitions[t.ToCycle] = t
	return nil
}
func (m *memStore) GetTransition(_ context.Context, _ string, toCycle int) (domain.ClaimTransition, bool, error) {
	t, ok := m.transitions[toCycle]
	return t, ok, nil
}

func (m *memStore) SaveSummary(_ context.Context, _ string, _ domain.ClaimSummary) error { return nil }

func (m *memStore) SaveCost(_ context.Context, _ string, c domain.LlmCost) error {
	m.costs = append(m.costs, c)
	return nil
}
func (m *memStore) TotalCost(_ context.Context, _ string) (float64, error) {
	var total float64
	for _, c := range m.costs {
		total += c.CostUSD
	}
	return total, nil
}

// universalAgentJSON satisfies every role's sanity check except Critic's
// (empty objection), so Explorer is accepted and Critic is dropped — giving
// deterministic support growth for the happy-path tests (Explorer-only in
// cycles that run just the base roster).
const universalAgentJSON = `{
	"valid": true,
	"new_claim": "a refined claim",
	"target_premise": "an unrelated premise",
	"objection": "",
	"analogy": "a useful analogy",
	"testable_mapping": "maps X to Y",
	"strengthens_claim": true,
	"framework": "physics"
}`

func newTestRunner(t *testing.T, responses ...string) (*Runner, *memStore) {
	t.Helper()
	store := newMemStore()
	bb := blackboard.New("bb1", store, "seed claim", nil)

	fake := llmtest.NewFakeProvider(responses...)
	d := dispatcher.New(fake, []string{"claude-sonnet-4-5"}, nil, nil)

	embedder := &llmtest.FakeEmbedder{}
	detector := trajectory.New(store, embedder, fake, "claude-sonnet-4-5", 0.95)

	bus := eventbus.NewInMemoryBus()

	opts := Options{
		MaxCycles:               10,
		CycleTimeout:            time.Minute,
		DecayRate:               0,
		PerturbationProbability: 0,
	}
	r := New("session1", bb, d, detector, bus, store, opts, rand.New(rand.NewSource(7)))
	return r, store
}

func TestRunOneCycleAcceptsExplorerAndUpdatesClaim(t *testing.T) {
	r, store := newTestRunner(t, universalAgentJSON)

	outcome, done, err := r.runOneCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, Outcome(""), outcome)

	assert.Equal(t, "a refined claim", *r.bb.CurrentClaim())
	assert.Greater(t, r.bb.SupportStrength(), 0.5)
	assert.NotEmpty(t, store.contribs)
	assert.NotEmpty(t, store.snaps)
}

func TestRunStopsAtMaxCycles(t *testing.T) {
	neutralJSON := `{"valid": true, "new_claim": "", "target_premise": "x", "objection": "y", "testable_mapping": "z"}`
	r, _ := newTestRunner(t, neutralJSON)
	r.opts.MaxCycles = 3

	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeMaxCycles, outcome)
	assert.Equal(t, 3, r.bb.CycleCount())
}

func TestRunStopsOnExternalStopRequest(t *testing.T) {
	r, _ := newTestRunner(t, universalAgentJSON)
	r.RequestStop()

	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeStopped, outcome)
	assert.Equal(t, 0, r.bb.CycleCount())
}

func TestRunGraduatesWhenSupportCrossesThreshold(t *testing.T) {
	// Explorer accepted every cycle (+0.10), starting at 0.5: cycle1 -> 0.60,
	// cycle2 -> 0.70. Cycle 3 also runs Connector (+0.05), Steelman (+0.08),
	// Operationalizer (+0.05) and Quantifier (+0.03), so support crosses 0.85
	// there and the claim graduates (support clamped to 0.85).
	r, _ := newTestRunner(t, universalAgentJSON)
	r.opts.MaxCycles = 50

	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeGraduated, outcome)
	assert.Nil(t, r.bb.CurrentClaim())
}

func TestRunDiesWhenCriticCollidesWithExplorer(t *testing.T) {
	// new_claim == target_premise triggers the Explorer/Critic collision rule
	// (spec §4.2 rule 1), dropping Explorer every cycle and leaving only
	// Critic's -0.15 to drive support down: 0.50 -> 0.35 -> dies at 0.20.
	collidingJSON := `{"valid": true, "new_claim": "the same text", "target_premise": "the same text", "objection": "a fatal objection", "testable_mapping": "m"}`
	r, _ := newTestRunner(t, collidingJSON)
	r.opts.MaxCycles = 50

	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDied, outcome)
	assert.Nil(t, r.bb.CurrentClaim())
}

func TestCostExceededStopsBeforeNextCycle(t *testing.T) {
	limit := 0.00001
	store := newMemStore()
	bb := blackboard.New("bb1", store, "seed claim", &limit)
	_ = store.SaveCost(context.Background(), "bb1", domain.LlmCost{CostUSD: 1.0})

	fake := llmtest.NewFakeProvider(universalAgentJSON)
	d := dispatcher.New(fake, []string{"claude-sonnet-4-5"}, nil, nil)
	embedder := &llmtest.FakeEmbedder{}
	detector := trajectory.New(store, embedder, fake, "claude-sonnet-4-5", 0.95)
	bus := eventbus.NewInMemoryBus()

	r := New("session1", bb, d, detector, bus, store, Options{MaxCycles: 10, CycleTimeout: time.Minute}, rand.New(rand.NewSource(1)))

	outcome, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCostExceeded, outcome)
	assert.Equal(t, 0, bb.CycleCount())
}
