// Package logging wires github.com/joeycumines/logiface (the structured
// logging facade) to github.com/joeycumines/stumpy (its JSON event
// backend), matching the pairing the teacher module itself ships. It adds
// the one piece neither library provides out of the box: the daily-rotating
// log file named by spec.md §6 (<path>/<name>_YYYY-MM-DD.log).
package logging

import (
	"os"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/pkg/errors"
)

// Logger is the type every other package in this module accepts, so none of
// them need to import logiface/stumpy directly.
type Logger = *logiface.Logger[*stumpy.Event]

// Type selects where log output is written, per [general] log_type.
type Type string

const (
	TypeStderr Type = "stderr"
	TypeStumpy Type = "stumpy" // daily-rotating file sink
)

// Config mirrors the [general] log_level / log_type fields of spec.md §6.
type Config struct {
	Level Level
	Type  Type
	Path  string // directory, used when Type == TypeStumpy
	Name  string // base file name, used when Type == TypeStumpy
}

// Level is a small string-configurable wrapper over logiface.Level so
// internal/config doesn't need to import logiface either.
type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

func (l Level) toLogiface() logiface.Level {
	switch l {
	case LevelError:
		return logiface.LevelError
	case LevelWarn:
		return logiface.LevelWarning
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	default:
		return logiface.LevelInformational
	}
}

// New builds a Logger per cfg. log_type="stumpy" writes JSON lines to a
// rotatingFile under cfg.Path/cfg.Name; anything else writes to stderr.
func New(cfg Config) (Logger, error) {
	if cfg.Type == TypeStumpy {
		rf, err := newRotatingFile(cfg.Path, cfg.Name)
		if err != nil {
			return nil, errors.Wrap(err, "logging: open rotating file")
		}
		return stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(rf)),
			stumpy.L.WithLevel(cfg.Level.toLogiface()),
		), nil
	}

	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		stumpy.L.WithLevel(cfg.Level.toLogiface()),
	)
	return logger, nil
}

// ParseLevel maps the [general] log_level config string to a Level,
// defaulting to info on an unrecognized value.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "err":
		return LevelError
	case "warn", "warning":
		return LevelWarn
	case "debug", "trace":
		return LevelDebug
	default:
		return LevelInfo
	}
}
