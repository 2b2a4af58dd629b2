package rules_test

import (
	"encoding/json"
	"testing"

	"github.com/cyvasse-online/server/pkg/domain"
	"github.com/cyvasse-online/server/pkg/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnknownRuleSet(t *testing.T) {
	_, err := rules.New("chess")
	assert.ErrorIs(t, err, domain.ErrUnknownRuleSet)
}

func TestGame_SetupAndMoves(t *testing.T) {
	g, err := rules.New(domain.RuleSetMikeLePage)
	require.NoError(t, err)
	assert.Equal(t, domain.RuleSetMikeLePage, g.RuleSet())

	assert.True(t, g.Status().Setup)

	require.NoError(t, g.Observe(domain.White, rules.ActionSetOpeningArray,
		json.RawMessage(`{"king":["a1"],"rabble":["b1","c1"]}`)))
	assert.True(t, g.Status().Setup, "setup lasts until both sides are done")

	require.NoError(t, g.Observe(domain.Black, rules.ActionSetOpeningArray,
		json.RawMessage(`{"king":["k9"],"spears":["j9"]}`)))

	status := g.Status()
	require.False(t, status.Setup)
	assert.Equal(t, []string{"a1"}, status.PiecePositions["white"]["king"])

	require.NoError(t, g.Observe(domain.White, rules.ActionMove, json.RawMessage(`{"from":"b1","to":"b2"}`)))
	require.NoError(t, g.Observe(domain.Black, rules.ActionMoveCapture, json.RawMessage(`{"from":"j9","to":"b2"}`)))
	require.NoError(t, g.Observe(domain.White, rules.ActionPromote, json.RawMessage(`{"coord":"c1","origType":"rabble","newType":"crossbows"}`)))

	status = g.Status()
	assert.NotContains(t, status.PiecePositions["white"], "rabble")
	assert.Equal(t, []string{"c1"}, status.PiecePositions["white"]["crossbows"])
	assert.Equal(t, []string{"b2"}, status.PiecePositions["black"]["spears"])
}

func TestGame_ObserveBadParam(t *testing.T) {
	g, err := rules.New(domain.RuleSetMikeLePage)
	require.NoError(t, err)

	assert.Error(t, g.Observe(domain.White, rules.ActionMove, json.RawMessage(`"nope"`)))
	assert.NoError(t, g.Observe(domain.White, "resign", nil), "unknown actions are relayed without tracking")
}
