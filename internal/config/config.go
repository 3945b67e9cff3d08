// Package config loads the proxy's INI configuration file (spec.md §6):
// a `[general]` section describing the run mode, ciphers, thread count,
// listen address, and logging, plus a `[remote]` section used only in L
// mode. Parsing goes through github.com/spf13/viper, matching the
// ecosystem's standard approach to structured config file loading.
package config

import (
	"strings"

	"github.com/holystardb/cos-sub003/internal/cipher"
	"github.com/holystardb/cos-sub003/internal/logging"
	"github.com/holystardb/cos-sub003/internal/proxy"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// ErrUnknownMode / ErrUnknownEncryptType are returned when `[general] type`
// or `encrypt_type` hold a value outside the spec's enum.
var (
	ErrUnknownMode        = errors.New("config: unknown [general] type")
	ErrUnknownEncryptType = errors.New("config: unknown [general] encrypt_type")
)

// Config is the fully parsed, validated configuration for one run of the
// socks binary.
type Config struct {
	Mode          proxy.Mode
	EncryptType   cipher.Type
	ThreadCount   int
	BindAddress   string
	Port          uint16
	SocketBufSize int
	Username      string
	Password      string

	// ConnectTimeout/PollTimeout are in seconds, as the ini file states them
	// (spec.md §6); callers convert to 100ms wheel ticks at use time.
	ConnectTimeout int
	PollTimeout    int

	Logging logging.Config

	// RemoteHost/RemotePort come from [remote], used only when Mode ==
	// proxy.ModeLocal.
	RemoteHost string
	RemotePort uint16
}

// Load reads and validates the ini file at path.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")

	v.SetDefault("general.thread_count", 4)
	v.SetDefault("general.socket_buf_size", 16384)
	v.SetDefault("general.connect_timeout", 10)
	v.SetDefault("general.poll_timeout", 30)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_type", "stderr")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, errors.Wrap(err, "config: read ini")
	}

	mode, err := parseMode(v.GetInt("general.type"))
	if err != nil {
		return Config{}, err
	}
	encType, err := parseEncryptType(v.GetInt("general.encrypt_type"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Mode:           mode,
		EncryptType:    encType,
		ThreadCount:    v.GetInt("general.thread_count"),
		BindAddress:    v.GetString("general.bind-address"),
		Port:           uint16(v.GetUint("general.port")),
		SocketBufSize:  v.GetInt("general.socket_buf_size"),
		Username:       v.GetString("general.username"),
		Password:       v.GetString("general.password"),
		ConnectTimeout: v.GetInt("general.connect_timeout"),
		PollTimeout:    v.GetInt("general.poll_timeout"),
		Logging: logging.Config{
			Level: logging.ParseLevel(v.GetString("general.log_level")),
			Type:  logging.Type(strings.ToLower(v.GetString("general.log_type"))),
			Path:  v.GetString("general.log_path"),
			Name:  v.GetString("general.log_name"),
		},
		RemoteHost: v.GetString("remote.host"),
		RemotePort: uint16(v.GetUint("remote.port")),
	}

	if cfg.Mode == proxy.ModeLocal && (cfg.RemoteHost == "" || cfg.RemotePort == 0) {
		return Config{}, errors.New("config: [remote] host/port required in L mode")
	}

	return cfg, nil
}

func parseMode(t int) (proxy.Mode, error) {
	switch t {
	case 0:
		return proxy.ModeSocks, nil
	case 1:
		return proxy.ModeLocal, nil
	case 2:
		return proxy.ModeRemote, nil
	default:
		return 0, ErrUnknownMode
	}
}

func parseEncryptType(t int) (cipher.Type, error) {
	switch t {
	case 0:
		return cipher.TypeNone, nil
	case 1:
		return cipher.TypeAES, nil
	case 2:
		return cipher.TypeXOR, nil
	default:
		return 0, ErrUnknownEncryptType
	}
}
