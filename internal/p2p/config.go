package p2p

import (
	"log/slog"
	"time"

	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/WendelHime/peerwire/internal/protocol"
)

// Config holds per-connection limits and the multiplexer cadence.
type Config struct {
	// BufferSize is the capacity of each read and write buffer and therefore
	// the largest frame a connection accepts or sends.
	BufferSize   int
	PollTimeout  time.Duration
	DialTimeout  time.Duration
	PollInterval time.Duration
	MaxBatch     int
}

func DefaultConfig() Config {
	return Config{
		BufferSize:   1 << 17,
		PollTimeout:  time.Millisecond,
		DialTimeout:  5 * time.Second,
		PollInterval: 10 * time.Millisecond,
		MaxBatch:     32,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.BufferSize < protocol.HandshakeSize {
		c.BufferSize = def.BufferSize
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = def.PollTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = def.MaxBatch
	}
	return c
}

// orNop stands in a logger that drops everything when none is given.
func orNop(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(zapslog.NewHandler(zapcore.NewNopCore()))
	}
	return logger
}
