package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/holystardb/cos-sub003/internal/cipher"
	"github.com/holystardb/cos-sub003/internal/logging"
	"github.com/holystardb/cos-sub003/internal/proxy"
	"github.com/stretchr/testify/require"
)

func writeIni(t *testing.T, body string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "socks.ini")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadSocksMode(t *testing.T) {
	path := writeIni(t, `
[general]
type = 0
encrypt_type = 0
thread_count = 8
bind-address = 0.0.0.0
port = 1080
socket_buf_size = 65536
username = alice
password = s3cret
connect_timeout = 5
poll_timeout = 20
log_level = debug
log_type = stderr
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, proxy.ModeSocks, cfg.Mode)
	require.Equal(t, cipher.TypeNone, cfg.EncryptType)
	require.Equal(t, 8, cfg.ThreadCount)
	require.Equal(t, "0.0.0.0", cfg.BindAddress)
	require.EqualValues(t, 1080, cfg.Port)
	require.Equal(t, 65536, cfg.SocketBufSize)
	require.Equal(t, "alice", cfg.Username)
	require.Equal(t, logging.LevelDebug, cfg.Logging.Level)
}

func TestLoadLocalModeRequiresRemote(t *testing.T) {
	path := writeIni(t, `
[general]
type = 1
encrypt_type = 1
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadLocalModeWithRemote(t *testing.T) {
	path := writeIni(t, `
[general]
type = 1
encrypt_type = 2

[remote]
host = 10.0.0.1
port = 9090
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, proxy.ModeLocal, cfg.Mode)
	require.Equal(t, cipher.TypeXOR, cfg.EncryptType)
	require.Equal(t, "10.0.0.1", cfg.RemoteHost)
	require.EqualValues(t, 9090, cfg.RemotePort)
}

func TestLoadUnknownMode(t *testing.T) {
	path := writeIni(t, `
[general]
type = 9
`)
	_, err := Load(path)
	require.ErrorIs(t, err, ErrUnknownMode)
}
