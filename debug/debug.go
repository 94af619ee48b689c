// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go — logger construction and cold-path diagnostics
//
// Purpose:
//   - Builds the process logger: console core on stderr, optional rotated file
//   - Keeps DropError / DropMessage for setup and teardown failures
//
// Notes:
//   - Core packages take an injected *zap.Logger; only the command installs
//     the global one.
//   - File rotation is handled by lumberjack; the file core is JSON.
//
// ⚠️ Never invoke the Drop helpers in hot loops — cold paths only.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New. The zero value logs Info and above to stderr.
type Options struct {
	Level      string `json:"level"`        // debug, info, warn, error
	File       string `json:"file"`         // rotated JSON log; empty disables
	MaxSizeMB  int    `json:"max_size_mb"`  // rotate after this many megabytes
	MaxBackups int    `json:"max_backups"`  // rotated files kept
	MaxAgeDays int    `json:"max_age_days"` // days a rotated file is kept
	Compress   bool   `json:"compress"`     // gzip rotated files
}

// DefaultOptions returns stderr-only Info logging with 100 MB / 3 backups /
// 28 days rotation limits ready for when a file is set.
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// New builds a logger from o.
func New(o Options) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if o.Level != "" {
		if err := lvl.UnmarshalText([]byte(o.Level)); err != nil {
			return nil, fmt.Errorf("debug: log level %q: %w", o.Level, err)
		}
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder(), zapcore.Lock(os.Stderr), lvl),
	}
	if o.File != "" {
		w := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    o.MaxSizeMB,
			MaxBackups: o.MaxBackups,
			MaxAge:     o.MaxAgeDays,
			Compress:   o.Compress,
		}
		cores = append(cores, zapcore.NewCore(fileEncoder(), zapcore.AddSync(w), lvl))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Install makes l the global logger used by DropError and DropMessage and
// returns a func restoring the previous one.
func Install(l *zap.Logger) func() {
	return zap.ReplaceGlobals(l)
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

func fileEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return zapcore.NewJSONEncoder(cfg)
}

// DropError logs prefix with err at Error level, or prefix alone at Warn when
// err is nil (used as a cheap trace tag).
//
//go:inline
func DropError(prefix string, err error) {
	if err != nil {
		zap.L().Error(prefix, zap.Error(err))
		return
	}
	zap.L().Warn(prefix)
}

// DropMessage logs a one-off state change at Info level.
//
//go:inline
func DropMessage(prefix, message string) {
	zap.L().Info(prefix, zap.String("detail", message))
}
