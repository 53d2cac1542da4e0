package logic

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/WendelHime/peerwire/internal/p2p"
	"github.com/WendelHime/peerwire/internal/shared/models"
)

const (
	DefaultKeepAlive = 2 * time.Minute
	defaultIdle      = 10 * time.Millisecond
	readBatch        = 32
)

type SessionConfig struct {
	// PieceCount sizes the availability bitset. Zero takes the size of the
	// first Bitfield received.
	PieceCount int
	KeepAlive  time.Duration
	// Idle is how long Run waits when the connection has nothing to do.
	Idle time.Duration
	// Progress receives the availability bar. Nil hides it.
	Progress io.Writer
}

// Session drives one outbound connection: it handshakes, declares interest,
// keeps the connection alive and tracks which pieces the remote peer has.
type Session struct {
	conn *p2p.Connection
	cfg  SessionConfig
	log  *slog.Logger
	bar  *progressbar.ProgressBar

	outbox []models.Message

	mu     sync.Mutex
	have   models.Bitset
	choked bool
}

func NewSession(conn *p2p.Connection, cfg SessionConfig, logger *slog.Logger) *Session {
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	if cfg.Idle <= 0 {
		cfg.Idle = defaultIdle
	}
	if cfg.Progress == nil {
		cfg.Progress = io.Discard
	}
	logger = orNop(logger)
	total := cfg.PieceCount
	if total == 0 {
		total = -1
	}
	s := &Session{
		conn: conn,
		cfg:  cfg,
		log:  logger.With(slog.String("peer", conn.String())),
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetWriter(cfg.Progress),
			progressbar.OptionSetDescription("peer availability"),
			progressbar.OptionShowCount(),
		),
		choked: true,
	}
	if cfg.PieceCount > 0 {
		s.have = models.NewBitset(cfg.PieceCount)
	}
	return s
}

// Available is how many pieces the remote peer has announced.
func (s *Session) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.have.Count()
}

// Choked reports whether the remote peer is choking us.
func (s *Session) Choked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.choked
}

// Run serves the connection until ctx is done or the connection ends. A
// graceful close by the remote peer returns nil.
func (s *Session) Run(ctx context.Context) error {
	s.outbox = append(s.outbox, models.Handshake{})

	keepAlive := time.NewTicker(s.cfg.KeepAlive)
	defer keepAlive.Stop()
	idle := time.NewTicker(s.cfg.Idle)
	defer idle.Stop()

	for {
		if err := s.step(); err != nil {
			if errors.Is(err, p2p.ErrConnectionClosed) {
				s.log.Info("peer session ended", slog.Int("available", s.Available()))
				return s.conn.Err()
			}
			return err
		}
		select {
		case <-ctx.Done():
			_ = s.bar.Finish()
			return s.conn.Close()
		case <-keepAlive.C:
			s.outbox = append(s.outbox, models.KeepAlive{})
		case <-idle.C:
		}
	}
}

func (s *Session) step() error {
	for len(s.outbox) > 0 {
		ok, err := s.conn.SendMessage(s.outbox[0])
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		s.log.Debug("sent", slog.String("message", s.outbox[0].String()))
		s.outbox = s.outbox[1:]
	}
	if _, err := s.conn.Flush(); err != nil {
		return err
	}

	for i := 0; i < readBatch; i++ {
		msg, err := s.conn.ReadMessageNow()
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}
		s.handle(msg)
	}
	return nil
}

func (s *Session) handle(msg models.Message) {
	s.log.Debug("received", slog.String("message", msg.String()))
	switch m := msg.(type) {
	case models.Handshake:
		s.log.Info("remote handshake", slog.String("peer_id", m.PeerID.String()))
		s.outbox = append(s.outbox, models.Interested{})
	case models.Bitfield:
		s.setBitfield(m.Bits)
	case models.Have:
		s.setHave(int(m.PieceIndex))
	case models.Choke:
		s.setChoked(true)
	case models.Unchoke:
		s.setChoked(false)
	}
}

func (s *Session) setBitfield(bits models.Bitset) {
	have, err := models.BitsetFromBytes(bits.Bytes(), bits.Len())
	if err != nil {
		s.log.Warn("ignoring bitfield", slog.Any("error", err))
		return
	}
	s.mu.Lock()
	s.have = have
	n := have.Count()
	s.mu.Unlock()
	if s.bar.GetMax() < 0 {
		s.bar.ChangeMax(have.Len())
	}
	_ = s.bar.Set(n)
}

func (s *Session) setHave(i int) {
	s.mu.Lock()
	if i < 0 || i >= s.have.Len() {
		s.mu.Unlock()
		s.log.Warn("have for unknown piece", slog.Int("piece", i))
		return
	}
	s.have.Set(i)
	n := s.have.Count()
	s.mu.Unlock()
	_ = s.bar.Set(n)
}

func (s *Session) setChoked(choked bool) {
	s.mu.Lock()
	s.choked = choked
	s.mu.Unlock()
	s.log.Info("choke state", slog.Bool("choked", choked))
}

func orNop(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(zapslog.NewHandler(zapcore.NewNopCore()))
	}
	return logger
}
