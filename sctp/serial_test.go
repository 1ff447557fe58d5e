package sctp

import "testing"

import "github.com/stretchr/testify/require"

func TestTSNOrdering(t *testing.T) {
	require.True(t, tsn(1).lt(tsn(2)))
	require.False(t, tsn(2).lt(tsn(1)))
	require.True(t, tsn(2).gt(tsn(1)))
	require.True(t, tsn(5).lte(tsn(5)))
	require.True(t, tsn(5).gte(tsn(5)))
}

func TestTSNWraparound(t *testing.T) {
	max := tsn(^uint32(0))
	require.True(t, max.lt(tsn(0)), "0 must be considered after the maximum uint32 value")
	require.True(t, tsn(0).gt(max))
	require.Equal(t, tsn(0), max.add(1))
}

func TestTSNDiff(t *testing.T) {
	require.Equal(t, uint32(5), tsn(10).diff(tsn(15)))
	require.Equal(t, uint32(0), tsn(10).diff(tsn(10)))
}

func TestSSNOrdering(t *testing.T) {
	require.True(t, ssn(1).lt(ssn(2)))
	max := ssn(^uint16(0))
	require.True(t, max.lt(ssn(0)))
	require.Equal(t, ssn(0), max.add(1))
}
