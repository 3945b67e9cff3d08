package workerpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetWorkerReleaseWorkerRoundTrip(t *testing.T) {
	p := New(2)
	defer p.Close()

	w1, err := p.GetWorker(time.Second)
	require.NoError(t, err)
	w2, err := p.GetWorker(time.Second)
	require.NoError(t, err)
	require.NotEqual(t, w1.ID(), w2.ID())

	_, err = p.GetWorker(10 * time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	p.ReleaseWorker(w1)
	w3, err := p.GetWorker(time.Second)
	require.NoError(t, err)
	require.Equal(t, w1.ID(), w3.ID())
}

func TestTaskStartTaskJoin(t *testing.T) {
	p := New(1)
	defer p.Close()

	w, err := p.GetWorker(time.Second)
	require.NoError(t, err)

	var ran atomic.Bool
	require.NoError(t, w.TaskStart(nil, func(any) {
		time.Sleep(5 * time.Millisecond)
		ran.Store(true)
	}))
	w.TaskJoin()
	require.True(t, ran.Load())
}

func TestTaskStartRejectsWhileBusy(t *testing.T) {
	p := New(1)
	defer p.Close()

	w, err := p.GetWorker(time.Second)
	require.NoError(t, err)

	block := make(chan struct{})
	require.NoError(t, w.TaskStart(nil, func(any) { <-block }))
	err = w.TaskStart(nil, func(any) {})
	require.ErrorIs(t, err, ErrBusy)
	close(block)
	w.TaskJoin()
}
