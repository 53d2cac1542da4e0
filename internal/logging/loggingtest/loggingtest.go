// Package loggingtest builds loggers for tests. It is kept apart from logging
// so that binaries do not link the testing package.
package loggingtest

import (
	"log/slog"

	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// New routes records through t.Log at debug level.
func New(t zaptest.TestingT) *slog.Logger {
	core := zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel)).Core()
	return slog.New(zapslog.NewHandler(core))
}
