package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestReadDeliveredThenOneShotDisarmed(t *testing.T) {
	var mu sync.Mutex
	var events []Events
	r, err := New(0, 8, func(fd int, ev Events, payload Payload) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer r.Close()

	a, b := socketpair(t)
	require.NoError(t, r.AddRead(a, "conn", 0))

	_, err = unix.Write(b, []byte("hi"))
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.runPass()
		mu.Lock()
		n := len(events)
		mu.Unlock()
		if n > 0 {
			break
		}
	}
	mu.Lock()
	require.Len(t, events, 1)
	require.True(t, events[0]&EventRead != 0)
	mu.Unlock()

	// After delivery, a second write must NOT trigger another callback
	// until re-armed (one-shot semantics).
	_, err = unix.Write(b, []byte("again"))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		r.runPass()
	}
	mu.Lock()
	require.Len(t, events, 1, "fd must stay disarmed until re-armed")
	mu.Unlock()
}

func TestTimeoutDelivery(t *testing.T) {
	var mu sync.Mutex
	var gotTimeout bool
	r, err := New(0, 8, func(fd int, ev Events, payload Payload) {
		mu.Lock()
		if ev&EventTimeout != 0 {
			gotTimeout = true
		}
		mu.Unlock()
	})
	require.NoError(t, err)
	defer r.Close()

	a, _ := socketpair(t)
	require.NoError(t, r.AddRead(a, "idle", 2)) // 200ms

	r.lastTick = time.Now().Add(-250 * time.Millisecond)
	r.runPass()

	mu.Lock()
	defer mu.Unlock()
	require.True(t, gotTimeout)
}
