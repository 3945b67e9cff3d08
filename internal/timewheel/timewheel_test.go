package timewheel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFiresOnExactTick(t *testing.T) {
	w := New(8)
	fired := 0
	_, err := w.SetTimer(3, func(timer *Timer, arg any) { fired++ }, 1, nil)
	require.NoError(t, err)

	w.Tick()
	require.Equal(t, 0, fired)
	w.Tick()
	require.Equal(t, 0, fired)
	w.Tick()
	require.Equal(t, 1, fired)
}

func TestDelTimerPreventsFire(t *testing.T) {
	w := New(8)
	fired := 0
	timer, err := w.SetTimer(2, func(timer *Timer, arg any) { fired++ }, 1, nil)
	require.NoError(t, err)
	w.DelTimer(timer)
	w.Tick()
	w.Tick()
	w.Tick()
	require.Equal(t, 0, fired)
}

func TestWrapsAroundMultipleRotations(t *testing.T) {
	w := New(8)
	fired := 0
	_, err := w.SetTimer(Slots+5, func(timer *Timer, arg any) { fired++ }, 1, nil)
	require.NoError(t, err)
	for i := 0; i < Slots+4; i++ {
		w.Tick()
		require.Equal(t, 0, fired)
	}
	w.Tick()
	require.Equal(t, 1, fired)
}

func TestMinimumDelayIsOneTick(t *testing.T) {
	w := New(8)
	fired := 0
	_, err := w.SetTimer(0, func(timer *Timer, arg any) { fired++ }, 1, nil)
	require.NoError(t, err)
	w.Tick()
	require.Equal(t, 1, fired)
}

func TestOutOfTimers(t *testing.T) {
	w := New(1)
	for i := 0; i < nodesPerPageForTest(); i++ {
		_, err := w.SetTimer(5, func(timer *Timer, arg any) {}, 1, nil)
		require.NoError(t, err)
	}
	_, err := w.SetTimer(5, func(timer *Timer, arg any) {}, 1, nil)
	require.ErrorIs(t, err, ErrOutOfTimers)
}

func nodesPerPageForTest() int { return 256 }
