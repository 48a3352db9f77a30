package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineHappyPath(t *testing.T) {
	m := newMachine()
	require.NoError(t, m.advance(DebitingSource))
	require.NoError(t, m.advance(CreditingDestination))
	require.NoError(t, m.advance(Committed))
	assert.True(t, m.state.Terminal())
}

func TestMachineAbortRecordsPhase(t *testing.T) {
	m := newMachine()
	require.NoError(t, m.advance(DebitingSource))
	require.NoError(t, m.advance(Aborted))
	assert.Equal(t, DebitingSource, m.failedIn)
	assert.Equal(t, "aborted", m.state.String())
}

func TestMachineRejectsIllegalMoves(t *testing.T) {
	m := newMachine()
	assert.Error(t, m.advance(CreditingDestination), "destination cannot be credited before the debit")
	assert.Error(t, m.advance(Committed))

	require.NoError(t, m.advance(Aborted))
	assert.Error(t, m.advance(DebitingSource), "aborted is terminal")
	assert.Error(t, m.advance(Aborted))
}
