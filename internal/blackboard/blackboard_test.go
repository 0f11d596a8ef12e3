package blackboard

import (
	"context"
	"math/rand"
	"testing"

	"dialectic/internal/domain"
	"dialectic/internal/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	states    map[string]domain.BlackboardSnapshot
	snapshots map[string][]domain.BlackboardSnapshot
}

func newMemStore() *memStore {
	return &memStore{states: map[string]domain.BlackboardSnapshot{}, snapshots: map[string][]domain.BlackboardSnapshot{}}
}

func (m *memStore) SaveState(_ context.Context, s domain.BlackboardSnapshot) error {
	m.states[s.BlackboardID] = s
	return nil
}
func (m *memStore) LoadState(_ context.Context, id string) (domain.BlackboardSnapshot, error) {
	return m.states[id], nil
}
func (m *memStore) CreateSnapshot(_ context.Context, s domain.BlackboardSnapshot) error {
	m.snapshots[s.BlackboardID] = append(m.snapshots[s.BlackboardID], s)
	return nil
}
func (m *memStore) GetSnapshots(_ context.Context, id string, from, to int) ([]domain.BlackboardSnapshot, error) {
	var out []domain.BlackboardSnapshot
	for _, s := range m.snapshots[id] {
		if s.CycleCount >= from && s.CycleCount <= to {
			out = append(out, s)
		}
	}
	return out, nil
}
func (m *memStore) DeleteBlackboard(_ context.Context, id string) error {
	delete(m.states, id)
	delete(m.snapshots, id)
	return nil
}
func (m *memStore) SaveContribution(context.Context, string, domain.AgentContribution) error { return nil }
func (m *memStore) ListContributions(context.Context, string, int) ([]domain.AgentContribution, error) {
	return nil, nil
}
func (m *memStore) SaveTrajectoryPoint(context.Context, string, domain.TrajectoryPoint) error { return nil }
func (m *memStore) PreviousTrajectoryPoint(context.Context, string, int) (domain.TrajectoryPoint, bool, error) {
	return domain.TrajectoryPoint{}, false, nil
}
func (m *memStore) RecentTrajectoryPoints(context.Context, string, int) ([]domain.TrajectoryPoint, error) {
	return nil, nil
}
func (m *memStore) SaveTransition(context.Context, string, domain.ClaimTransition) error { return nil }
func (m *memStore) GetTransition(context.Context, string, int) (domain.ClaimTransition, bool, error) {
	return domain.ClaimTransition{}, false, nil
}
func (m *memStore) SaveSummary(context.Context, string, domain.ClaimSummary) error { return nil }
func (m *memStore) SaveCost(context.Context, string, domain.LlmCost) error         { return nil }
func (m *memStore) TotalCost(context.Context, string) (float64, error)            { return 0, nil }

var _ persistence.Store = (*memStore)(nil)

func TestUpdateSupportGraduates(t *testing.T) {
	b := New("bb1", newMemStore(), "X", nil)
	outcome := b.UpdateSupport(0.40)
	assert.True(t, outcome.Graduated)
	assert.Equal(t, SupportGraduation, outcome.New)
	assert.Nil(t, b.CurrentClaim())
	state := b.GetState()
	require.Len(t, state.GraduatedClaims, 1)
	assert.Equal(t, "X", state.GraduatedClaims[0].Claim)
}

func TestUpdateSupportKills(t *testing.T) {
	b := New("bb1", newMemStore(), "X", nil)
	outcome := b.UpdateSupport(-0.40)
	assert.True(t, outcome.Died)
	assert.Equal(t, SupportFloor, outcome.New)
	state := b.GetState()
	require.Len(t, state.Cemetery, 1)
	assert.Equal(t, "Support decay below threshold", state.Cemetery[0].CauseOfDeath)
}

func TestUpdateSupportGraduationBeatsCeiling(t *testing.T) {
	b := New("bb1", newMemStore(), "X", nil)
	outcome := b.UpdateSupport(1.00)
	assert.True(t, outcome.Graduated)
	assert.Equal(t, SupportGraduation, outcome.New)
}

// Per spec §4.1 "Order of checks matters: graduation precedes ceiling" — any
// delta that would cross 0.9 necessarily already crossed 0.85, so the
// ceiling branch never fires ahead of graduation. This preserves the
// ordering from spec §9 Open Question (1) rather than optimizing it away.
func TestUpdateSupportGraduationPrecedesCeiling(t *testing.T) {
	b := New("bb1", newMemStore(), "X", nil)
	b.supportStrength = 0.80
	outcome := b.UpdateSupport(0.15) // proposed 0.95
	assert.True(t, outcome.Graduated)
	assert.Equal(t, SupportGraduation, outcome.New)
}

func TestGetNextTranslatorFrameworkCyclesAndSaturates(t *testing.T) {
	b := New("bb1", newMemStore(), "X", nil)
	for _, want := range domain.TranslatorFrameworks {
		got := b.GetNextTranslatorFramework()
		assert.Equal(t, want, got)
		b.RecordTranslatorFramework(got)
	}
	assert.Equal(t, "physics", b.GetNextTranslatorFramework())
}

func TestFrontierSponsorshipDedup(t *testing.T) {
	b := New("bb1", newMemStore(), "X", nil)
	b.AddFrontierIdea("idea text", "agentA")
	idea := b.AddFrontierIdea("idea text", "agentA")
	assert.Equal(t, 1, idea.SponsorCount())
	idea = b.AddFrontierIdea("idea text", "agentB")
	assert.Equal(t, 2, idea.SponsorCount())

	eligible := b.GetEligibleFrontiers()
	require.Len(t, eligible, 1)
	assert.Equal(t, IdeaID("idea text"), eligible[0].ID)
}

func TestFrontierAgeRetiresAfterTen(t *testing.T) {
	b := New("bb1", newMemStore(), "X", nil)
	idea := b.AddFrontierIdea("idea text", "a")
	for i := 0; i < 10; i++ {
		b.AgeFrontiers()
	}
	assert.Equal(t, 10, idea.CyclesAlive)
	_, stillThere := b.frontierPool[idea.ID]
	assert.True(t, stillThere)
	b.AgeFrontiers()
	_, stillThere = b.frontierPool[idea.ID]
	assert.False(t, stillThere)
}

func TestSelectWeightedFrontierPrefersHigherWeight(t *testing.T) {
	b := New("bb1", newMemStore(), "X", nil)
	b.AddFrontierIdea("low", "a")
	b.AddFrontierIdea("low", "b")
	b.AddFrontierIdea("low", "c") // sponsor_count=3
	b.frontierPool[IdeaID("low")].CyclesAlive = 2 // weight 1.5

	b.AddFrontierIdea("high", "a")
	b.AddFrontierIdea("high", "b") // sponsor_count=2
	b.frontierPool[IdeaID("high")].CyclesAlive = 1 // weight 2.0

	rng := rand.New(rand.NewSource(42))
	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		picked := b.SelectWeightedFrontier(rng)
		require.NotNil(t, picked)
		counts[picked.IdeaText]++
	}
	assert.Greater(t, counts["high"], counts["low"])
}

func TestIdeaIDIsSHA256HexUpper(t *testing.T) {
	id := IdeaID("hello")
	assert.Equal(t, "2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824", id)
}
