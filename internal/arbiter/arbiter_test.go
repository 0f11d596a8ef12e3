package arbiter

import (
	"testing"

	"dialectic/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateExplorerAcceptedWhenNoCollision(t *testing.T) {
	results := []Result{
		{Role: RoleExplorer, Output: Output{Valid: true, Fields: map[string]string{"new_claim": "Y"}}, ProposedDelta: 0.10},
	}
	accepted := Evaluate(results, domain.BlackboardSnapshot{})
	require.Len(t, accepted, 1)
	assert.Equal(t, RoleExplorer, accepted[0].Role)
	assert.Equal(t, 0.10, accepted[0].SupportDelta)
}

func TestEvaluateCriticCollisionDropsExplorer(t *testing.T) {
	results := []Result{
		{Role: RoleExplorer, Output: Output{Valid: true, Fields: map[string]string{"new_claim": "the claim X"}}, ProposedDelta: 0.10},
		{Role: RoleCritic, Output: Output{Valid: true, Fields: map[string]string{"target_premise": "  THE CLAIM x  "}}, ProposedDelta: -0.15},
	}
	accepted := Evaluate(results, domain.BlackboardSnapshot{})
	require.Len(t, accepted, 1)
	assert.Equal(t, RoleCritic, accepted[0].Role)
}

func TestEvaluateInvalidCriticDropped(t *testing.T) {
	results := []Result{
		{Role: RoleCritic, Output: Output{Valid: false}, ProposedDelta: -0.15},
	}
	accepted := Evaluate(results, domain.BlackboardSnapshot{})
	assert.Empty(t, accepted)
}

func TestEvaluateErrorTupleDropped(t *testing.T) {
	results := []Result{
		{Role: "summarizer", Err: assertErr("boom")},
	}
	accepted := Evaluate(results, domain.BlackboardSnapshot{})
	assert.Empty(t, accepted)
}

func TestEvaluateApplyOrderExplorerCriticConnectorOthers(t *testing.T) {
	results := []Result{
		{Role: "summarizer", Output: Output{Valid: true}, DeclarationOrder: 0},
		{Role: RoleConnector, Output: Output{Valid: true}, DeclarationOrder: 1},
		{Role: RoleCritic, Output: Output{Valid: true, Fields: map[string]string{"target_premise": "other"}}, DeclarationOrder: 2},
		{Role: RoleExplorer, Output: Output{Valid: true, Fields: map[string]string{"new_claim": "fresh claim"}}, DeclarationOrder: 3},
	}
	accepted := Evaluate(results, domain.BlackboardSnapshot{})
	require.Len(t, accepted, 4)
	assert.Equal(t, RoleExplorer, accepted[0].Role)
	assert.Equal(t, RoleCritic, accepted[1].Role)
	assert.Equal(t, RoleConnector, accepted[2].Role)
	assert.Equal(t, "summarizer", accepted[3].Role)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }
func assertErr(s string) error    { return simpleErr(s) }
