package ticks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriceRoundTrip(t *testing.T) {
	p, err := ParsePrice("1234.50000000", DefaultScale)
	require.NoError(t, err)
	assert.Equal(t, Price(123450000000), p)
	assert.Equal(t, 1234.5, p.Float(DefaultScale))
}

func TestParseQtyZero(t *testing.T) {
	q, err := ParseQty("0.00000000", DefaultScale)
	require.NoError(t, err)
	assert.Equal(t, Qty(0), q)
}

func TestParsePriceInvalid(t *testing.T) {
	_, err := ParsePrice("not-a-number", DefaultScale)
	assert.Error(t, err)
}
