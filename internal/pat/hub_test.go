package pat

import (
	"sync"
	"testing"
	"time"

	"github.com/holystardb/cos-sub003/internal/logging"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu   sync.Mutex
	data [][]byte
	got  chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{got: make(chan struct{}, 16)}
}

func (h *recordingHandler) OnData(srcPno byte, payload []byte) {
	h.mu.Lock()
	cp := append([]byte(nil), payload...)
	h.data = append(h.data, cp)
	h.mu.Unlock()
	h.got <- struct{}{}
}

func (h *recordingHandler) OnTimer(arg any) {}

func testLogger(t *testing.T) logging.Logger {
	log, err := logging.New(logging.Config{Level: logging.LevelError, Type: logging.TypeStderr})
	require.NoError(t, err)
	return log
}

func TestHubClientServerDataRoundTrip(t *testing.T) {
	serverHub := NewHub(testLogger(t))
	defer serverHub.Close()

	serverHandler := newRecordingHandler()
	_, err := serverHub.AddPeer(Config{
		Pno:      1,
		Role:     RoleServer,
		Username: "alice",
		Password: "s3cret",
	}, serverHandler)
	require.NoError(t, err)

	require.NoError(t, serverHub.Listen("127.0.0.1:0"))
	addr := serverHub.listener.Addr().String()

	clientHub := NewHub(testLogger(t))
	defer clientHub.Close()

	clientHandler := newRecordingHandler()
	clientPeer, err := clientHub.AddPeer(Config{
		Pno:      1,
		Role:     RoleClient,
		Address:  addr,
		Username: "alice",
		Password: "s3cret",
	}, clientHandler)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return clientPeer.getConn() != nil
	}, 2*time.Second, 10*time.Millisecond)

	serverPeer, ok := serverHub.Peer(1)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return serverPeer.getConn() != nil
	}, 2*time.Second, 10*time.Millisecond)

	clientPeer.Send(1, []byte("ping"))
	select {
	case <-serverHandler.got:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received data")
	}
	serverHandler.mu.Lock()
	require.Equal(t, [][]byte{[]byte("ping")}, serverHandler.data)
	serverHandler.mu.Unlock()

	serverPeer.Send(1, []byte("pong"))
	select {
	case <-clientHandler.got:
	case <-time.After(2 * time.Second):
		t.Fatal("client never received data")
	}
	clientHandler.mu.Lock()
	require.Equal(t, [][]byte{[]byte("pong")}, clientHandler.data)
	clientHandler.mu.Unlock()
}

func TestHubRejectsBadCredentials(t *testing.T) {
	serverHub := NewHub(testLogger(t))
	defer serverHub.Close()

	_, err := serverHub.AddPeer(Config{
		Pno:      2,
		Role:     RoleServer,
		Username: "alice",
		Password: "s3cret",
	}, newRecordingHandler())
	require.NoError(t, err)
	require.NoError(t, serverHub.Listen("127.0.0.1:0"))
	addr := serverHub.listener.Addr().String()

	clientHub := NewHub(testLogger(t))
	defer clientHub.Close()
	clientPeer, err := clientHub.AddPeer(Config{
		Pno:        2,
		Role:       RoleClient,
		Address:    addr,
		Username:   "alice",
		Password:   "wrong",
		MinBackoff: 20 * time.Millisecond,
		MaxBackoff: 40 * time.Millisecond,
	}, newRecordingHandler())
	require.NoError(t, err)

	require.Never(t, func() bool {
		return clientPeer.getConn() != nil
	}, 300*time.Millisecond, 20*time.Millisecond)
}
