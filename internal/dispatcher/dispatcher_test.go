package dispatcher

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"dialectic/internal/llm"
	"dialectic/internal/llm/llmtest"
	"dialectic/internal/roles"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchExplorerHappyPath(t *testing.T) {
	fake := llmtest.NewFakeProvider(`{"new_claim": "a refined claim", "valid": true}`)
	var gotCost float64
	d := New(fake, []string{"claude-sonnet-4-5"}, nil, func(role, model string, u llm.Usage, cost float64) {
		gotCost = cost
	})

	res := d.Dispatch(context.Background(), roles.Explorer, roles.Prompt{Claim: "X", SupportStrength: 0.5}, 0, time.Second, rand.New(rand.NewSource(1)))
	require.NoError(t, res.Err)
	assert.True(t, res.Output.Valid)
	assert.Equal(t, 0.10, res.ProposedDelta)
	assert.Equal(t, "claude-sonnet-4-5", res.Contribution.ModelUsed)
	assert.Greater(t, gotCost, 0.0)
}

func TestDispatchUnknownRoleErrors(t *testing.T) {
	fake := llmtest.NewFakeProvider(`{}`)
	d := New(fake, []string{"claude-sonnet-4-5"}, nil, nil)
	res := d.Dispatch(context.Background(), "not_a_role", roles.Prompt{}, 0, time.Second, nil)
	assert.Error(t, res.Err)
}

type erroringChatter struct{}

func (erroringChatter) Chat(context.Context, string, []llm.Message) (llm.ChatResult, error) {
	return llm.ChatResult{}, assertErr("boom")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestDispatchTransportErrorDoesNotPanic(t *testing.T) {
	d := New(erroringChatter{}, []string{"claude-sonnet-4-5"}, nil, nil)
	res := d.Dispatch(context.Background(), roles.Critic, roles.Prompt{}, 0, time.Second, nil)
	assert.Error(t, res.Err)
	assert.False(t, res.Output.Valid)
}
