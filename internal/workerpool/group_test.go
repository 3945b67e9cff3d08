package workerpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGroupPoolRunsSubmittedTasks(t *testing.T) {
	gp := NewGroupPool(2, 2, 8)
	defer gp.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var seen []int

	for i := 0; i < 10; i++ {
		wg.Add(1)
		i := i
		require.NoError(t, gp.Submit(i%2, i, func(data any) {
			defer wg.Done()
			mu.Lock()
			seen = append(seen, data.(int))
			mu.Unlock()
		}, false))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 10)
}

func TestGroupPoolRejectsUnknownGroup(t *testing.T) {
	gp := NewGroupPool(1, 1, 4)
	defer gp.Close()

	err := gp.Submit(5, nil, func(any) {}, false)
	require.ErrorIs(t, err, ErrNoSuchGroup)
}

func TestGroupPoolHighPriorityDrainsFirst(t *testing.T) {
	gp := NewGroupPool(1, 1, 8)
	defer gp.Close()

	block := make(chan struct{})
	require.NoError(t, gp.Submit(0, nil, func(any) { <-block }, true))

	var order []string
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)
	require.NoError(t, gp.Submit(0, nil, func(any) {
		defer wg.Done()
		mu.Lock()
		order = append(order, "normal")
		mu.Unlock()
	}, false))
	require.NoError(t, gp.Submit(0, nil, func(any) {
		defer wg.Done()
		mu.Lock()
		order = append(order, "high")
		mu.Unlock()
	}, true))

	close(block)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"high", "normal"}, order)
}
