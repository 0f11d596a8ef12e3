package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCriticRequiresPremiseAndObjection(t *testing.T) {
	out := Parse(Critic, `{"target_premise": "X", "objection": "weak", "valid": true}`)
	assert.True(t, out.Valid)

	out = Parse(Critic, `{"target_premise": "", "objection": "weak", "valid": true}`)
	assert.False(t, out.Valid)
}

func TestParseConnectorRequiresTestableMapping(t *testing.T) {
	out := Parse(Connector, `{"analogy": "a", "testable_mapping": "b", "valid": true}`)
	assert.True(t, out.Valid)

	out = Parse(Connector, `{"analogy": "a", "valid": true}`)
	assert.False(t, out.Valid)
}

func TestParseMalformedJSONIsInvalid(t *testing.T) {
	out := Parse(Explorer, `not json`)
	assert.False(t, out.Valid)
}

func TestParseExplorerDefaultsValidWhenFlagAbsent(t *testing.T) {
	out := Parse(Explorer, `{"new_claim": "Y"}`)
	assert.True(t, out.Valid)
	assert.Equal(t, "Y", out.NewClaim)
}

func TestRosterBaseEveryCycle(t *testing.T) {
	r := Roster(1, 0.5, false, false)
	assert.ElementsMatch(t, []string{Explorer, Critic, Summarizer}, r)
}

func TestRosterThirdCycleAddsConnectorGroup(t *testing.T) {
	r := Roster(3, 0.5, false, false)
	assert.Contains(t, r, Connector)
	assert.Contains(t, r, Steelman)
	assert.Contains(t, r, Operationalizer)
	assert.Contains(t, r, Quantifier)
}

func TestRosterFifthCycleAddsReducerGroup(t *testing.T) {
	r := Roster(5, 0.5, false, false)
	assert.Contains(t, r, Reducer)
	assert.Contains(t, r, BoundaryHunter)
	assert.Contains(t, r, Translator)
	assert.Contains(t, r, Historian)
}

func TestRosterConditionalRoles(t *testing.T) {
	r := Roster(1, 0.3, true, true)
	assert.Contains(t, r, GraveKeeper)
	assert.Contains(t, r, Cartographer)
	assert.Contains(t, r, Perturber)
}

func TestDeltaTable(t *testing.T) {
	require.Equal(t, 0.10, Registry[Explorer].Delta(Output{}))
	require.Equal(t, -0.15, Registry[Critic].Delta(Output{}))
	require.Equal(t, 0.05, Registry[Connector].Delta(Output{}))
	assert.Equal(t, 0.08, Registry[Steelman].Delta(Output{StrengthensClaim: true}))
	assert.Equal(t, -0.08, Registry[Steelman].Delta(Output{StrengthensClaim: false}))
	assert.Equal(t, 0.05, Registry[Operationalizer].Delta(Output{}))
	assert.Equal(t, 0.03, Registry[Quantifier].Delta(Output{StrengthensClaim: true}))
	assert.Equal(t, -0.03, Registry[Quantifier].Delta(Output{StrengthensClaim: false}))
	assert.Equal(t, 0.00, Registry[Reducer].Delta(Output{}))
	assert.Equal(t, -0.05, Registry[BoundaryHunter].Delta(Output{}))
	assert.Equal(t, 0.02, Registry[Translator].Delta(Output{}))
	assert.Equal(t, 0.00, Registry[Historian].Delta(Output{}))
	assert.Equal(t, -0.10, Registry[GraveKeeper].Delta(Output{}))
	assert.Equal(t, 0.00, Registry[Cartographer].Delta(Output{}))
	assert.Equal(t, 0.00, Registry[Perturber].Delta(Output{}))
}
