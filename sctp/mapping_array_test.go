package sctp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMappingArrayInOrder(t *testing.T) {
	m := newMappingArray()
	m.initialize(100)

	for i := uint32(0); i < 5; i++ {
		cum, advanced, err := m.update(100 + i)
		require.NoError(t, err)
		require.True(t, advanced)
		require.Equal(t, 100+i, cum)
	}

	sack := m.generateSack(1024)
	require.Equal(t, uint32(104), sack.CumAck)
	require.Empty(t, sack.GapAckBlocks)
}

func TestMappingArrayReorderedProducesGapThenCollapses(t *testing.T) {
	m := newMappingArray()
	m.initialize(0)

	_, advanced, err := m.update(2)
	require.NoError(t, err)
	require.False(t, advanced, "TSN 2 arriving before 0/1 must not advance cum ack")

	sack := m.generateSack(1024)
	require.Equal(t, uint32(0xFFFFFFFF), sack.CumAck) // 0.sub(1)
	require.Len(t, sack.GapAckBlocks, 1)
	require.Equal(t, gapAckBlock{Start: 3, End: 3}, sack.GapAckBlocks[0])

	_, advanced, err = m.update(1)
	require.NoError(t, err)
	require.False(t, advanced)

	_, advanced, err = m.update(0)
	require.NoError(t, err)
	require.True(t, advanced)
	require.Equal(t, tsn(2), m.cumTSN)

	sack = m.generateSack(1024)
	require.Equal(t, uint32(2), sack.CumAck)
	require.Empty(t, sack.GapAckBlocks, "the array must have collapsed the gap once the hole filled in")
}

func TestMappingArrayDuplicateIsIdempotent(t *testing.T) {
	m := newMappingArray()
	m.initialize(0)

	_, _, err := m.update(0)
	require.NoError(t, err)
	before := m.cumTSN

	_, advanced, err := m.update(0)
	require.NoError(t, err)
	require.False(t, advanced)
	require.Equal(t, before, m.cumTSN)
}

func TestMappingArrayBelowBaseIsRejected(t *testing.T) {
	m := newMappingArray()
	m.initialize(100)
	_, _, err := m.update(50)
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestMappingArrayGrowsPastInitialWindow(t *testing.T) {
	m := newMappingArray()
	m.initialize(0)

	// Skip far ahead, forcing storage to grow beyond its initial 256 bytes.
	_, _, err := m.update(3000)
	require.NoError(t, err)
	require.True(t, len(m.storage) > 256)

	sack := m.generateSack(1024)
	require.Len(t, sack.GapAckBlocks, 1)
}
