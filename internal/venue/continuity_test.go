package venue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinanceContinuityFirstDeltaMustStraddleSnapshot(t *testing.T) {
	c := NewBinanceContinuity(100)
	assert.Error(t, c.Check(90, 99), "delta ends before snapshot+1")

	c = NewBinanceContinuity(100)
	require.NoError(t, c.Check(95, 105))
	require.NoError(t, c.Check(106, 110))
	assert.Error(t, c.Check(112, 115), "U skipped ahead of prevU+1")
}

func TestBitstampContinuityStrictByDefault(t *testing.T) {
	c := NewBitstampContinuity(100, false)
	assert.Error(t, c.Check(100), "seq must exceed snapshot id, not equal it")

	c = NewBitstampContinuity(100, false)
	require.NoError(t, c.Check(101))
	assert.Error(t, c.Check(103), "gap must be rejected when allowGaps is false")
}

func TestBitstampContinuityAllowsGapsWhenDeclared(t *testing.T) {
	c := NewBitstampContinuity(100, true)
	require.NoError(t, c.Check(101))
	require.NoError(t, c.Check(105), "gap should be tolerated")
	assert.Error(t, c.Check(105), "non-increasing sequence must still desync")
}
