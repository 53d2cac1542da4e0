package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/WendelHime/peerwire/internal/p2p"
	"github.com/WendelHime/peerwire/internal/protocol"
	"github.com/WendelHime/peerwire/internal/shared/models"
)

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	Peer        Peer
	Wire        Wire
	Dial        Dial
	Multiplexer Multiplexer
	Log         Log
}

type Peer struct {
	ID models.PeerID
}

type Wire struct {
	BufferSize  int
	PollTimeout time.Duration
}

type Dial struct {
	Timeout time.Duration
}

type Multiplexer struct {
	Interval time.Duration
	MaxBatch int
}

type Log struct {
	Level  string
	Format string
	// File is the log destination. Empty means stderr.
	File string
}

func DefaultConfig() Config {
	wire := p2p.DefaultConfig()
	return Config{
		Peer: Peer{ID: models.NewPeerID()},
		Wire: Wire{
			BufferSize:  wire.BufferSize,
			PollTimeout: wire.PollTimeout,
		},
		Dial: Dial{Timeout: wire.DialTimeout},
		Multiplexer: Multiplexer{
			Interval: wire.PollInterval,
			MaxBatch: wire.MaxBatch,
		},
		Log: Log{Level: "info", Format: "console"},
	}
}

// P2P converts the settings the connection layer needs.
func (c Config) P2P() p2p.Config {
	return p2p.Config{
		BufferSize:   c.Wire.BufferSize,
		PollTimeout:  c.Wire.PollTimeout,
		DialTimeout:  c.Dial.Timeout,
		PollInterval: c.Multiplexer.Interval,
		MaxBatch:     c.Multiplexer.MaxBatch,
	}
}

type fileConfig struct {
	Peer struct {
		ID string `toml:"id"`
	} `toml:"peer"`
	Wire struct {
		BufferSize  int    `toml:"buffer_size"`
		PollTimeout string `toml:"poll_timeout"`
	} `toml:"wire"`
	Dial struct {
		Timeout string `toml:"timeout"`
	} `toml:"dial"`
	Multiplexer struct {
		Interval string `toml:"interval"`
		MaxBatch int    `toml:"max_batch"`
	} `toml:"multiplexer"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
		File   string `toml:"file"`
	} `toml:"log"`
}

// Load overlays the TOML file at path onto DefaultConfig. An empty path
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Wrapf(ErrInvalid, "unknown key %s", undecoded[0])
	}

	if meta.IsDefined("peer", "id") {
		id := strings.TrimSpace(raw.Peer.ID)
		if id != "" {
			if len(id) != len(cfg.Peer.ID) {
				return Config{}, errors.Wrapf(ErrInvalid, "peer.id must be %d bytes, got %d", len(cfg.Peer.ID), len(id))
			}
			copy(cfg.Peer.ID[:], id)
		}
	}

	if meta.IsDefined("wire", "buffer_size") {
		cfg.Wire.BufferSize = raw.Wire.BufferSize
	}
	if meta.IsDefined("wire", "poll_timeout") {
		if cfg.Wire.PollTimeout, err = parseDuration("wire.poll_timeout", raw.Wire.PollTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("dial", "timeout") {
		if cfg.Dial.Timeout, err = parseDuration("dial.timeout", raw.Dial.Timeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("multiplexer", "interval") {
		if cfg.Multiplexer.Interval, err = parseDuration("multiplexer.interval", raw.Multiplexer.Interval); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("multiplexer", "max_batch") {
		cfg.Multiplexer.MaxBatch = raw.Multiplexer.MaxBatch
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(raw.Log.Level))
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = strings.ToLower(strings.TrimSpace(raw.Log.Format))
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Wire.BufferSize < protocol.HandshakeSize:
		return errors.Wrapf(ErrInvalid, "wire.buffer_size must be at least %d", protocol.HandshakeSize)
	case c.Wire.PollTimeout <= 0:
		return errors.Wrap(ErrInvalid, "wire.poll_timeout must be positive")
	case c.Dial.Timeout <= 0:
		return errors.Wrap(ErrInvalid, "dial.timeout must be positive")
	case c.Multiplexer.Interval <= 0:
		return errors.Wrap(ErrInvalid, "multiplexer.interval must be positive")
	case c.Multiplexer.MaxBatch <= 0:
		return errors.Wrap(ErrInvalid, "multiplexer.max_batch must be positive")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Wrapf(ErrInvalid, "log.format %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Wrapf(ErrInvalid, "log.level %q", c.Log.Level)
	}
	return nil
}

func parseDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.Wrapf(ErrInvalid, "parse %s: %v", key, err)
	}
	return d, nil
}
