package slotpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocFreeStableID(t *testing.T) {
	p := New(4)
	n1, err := p.Alloc()
	require.NoError(t, err)
	id1 := n1.ID()
	n1.Value = "hello"

	got, ok, err := p.GetByID(id1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Same(t, n1, got)
	require.Equal(t, "hello", got.Value)

	p.Free(n1)
	got, ok, err = p.GetByID(id1)
	require.NoError(t, err)
	require.False(t, ok) // magic cleared, recoverable warning not an error

	n2, err := p.Alloc()
	require.NoError(t, err)
	require.Equal(t, id1, n2.ID()) // head reuse
}

func TestGrowsOnDemand(t *testing.T) {
	p := New(1) // rounds up to one page of 256
	require.Equal(t, nodesPerPage, p.Cap())
	for i := 0; i < nodesPerPage; i++ {
		_, err := p.Alloc()
		require.NoError(t, err)
	}
	_, err := p.Alloc()
	require.ErrorIs(t, err, ErrCapacityExhausted)
}

func TestInvalidID(t *testing.T) {
	p := New(1)
	_, err := p.Alloc()
	require.NoError(t, err)
	_, _, err = p.GetByID(10 << 8)
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestFreeToTailAvoidsImmediateReuse(t *testing.T) {
	p := New(1)
	a, _ := p.Alloc()
	b, _ := p.Alloc()
	p.FreeToTail(a) // a goes to the back of the free list
	p.Free(b)        // b goes to the front

	first, err := p.Alloc()
	require.NoError(t, err)
	require.Equal(t, b.ID(), first.ID(), "head-inserted node reused first")

	// Every never-used node of the page is handed out before the
	// tail-inserted one.
	for i := 2; i < nodesPerPage; i++ {
		n, err := p.Alloc()
		require.NoError(t, err)
		require.NotEqual(t, a.ID(), n.ID())
	}
	last, err := p.Alloc()
	require.NoError(t, err)
	require.Equal(t, a.ID(), last.ID(), "tail-inserted node reused last")
}
