package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/WendelHime/peerwire/internal/config"
)

// LevelEnv overrides the configured level when set.
const LevelEnv = "PEERWIRE_LOG_LEVEL"

// New builds the process logger. The returned func flushes and releases the
// log destination.
func New(cfg config.Log) (*slog.Logger, func() error, error) {
	levelName := cfg.Level
	if v := strings.TrimSpace(os.Getenv(LevelEnv)); v != "" {
		levelName = v
	}
	level, err := zapcore.ParseLevel(strings.ToLower(levelName))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "log level %q", levelName)
	}

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "", "console":
		encoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	case "json":
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, nil, errors.Errorf("log format %q", cfg.Format)
	}

	sink := zapcore.Lock(os.Stderr)
	closer := func() error { return nil }
	if cfg.File != "" {
		ws, closeFile, err := zap.Open(cfg.File)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "open log file %s", cfg.File)
		}
		sink = ws
		closer = func() error {
			err := ws.Sync()
			closeFile()
			return err
		}
	}

	core := zapcore.NewCore(encoder, sink, level)
	return slog.New(zapslog.NewHandler(core, zapslog.WithName("peerwire"))), closer, nil
}

// Discard drops every record.
func Discard() *slog.Logger {
	return slog.New(zapslog.NewHandler(zapcore.NewNopCore()))
}

