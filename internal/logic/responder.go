package logic

import (
	"log/slog"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/WendelHime/peerwire/internal/p2p"
	"github.com/WendelHime/peerwire/internal/shared/models"
)

var ErrWriterBusy = errors.New("logic: peer is not draining its writes")

const maxFlushAttempts = 1000

// Responder answers inbound peers served by a p2p.Multiplexer. Every remote
// handshake is answered with ours and a Bitfield saying we have nothing.
type Responder struct {
	pieceCount int
	log        *slog.Logger
	answered   atomic.Int64
}

func NewResponder(pieceCount int, logger *slog.Logger) *Responder {
	return &Responder{pieceCount: pieceCount, log: orNop(logger)}
}

func (r *Responder) Handler() p2p.Handler {
	return p2p.Handler{
		OnMessage: r.onMessage,
		OnClose:   r.onClose,
	}
}

// Answered is how many peers have received our handshake.
func (r *Responder) Answered() int64 {
	return r.answered.Load()
}

func (r *Responder) onMessage(c *p2p.Connection, msg models.Message) {
	r.log.Info("received", slog.String("peer", c.String()), slog.String("message", msg.String()))
	h, ok := msg.(models.Handshake)
	if !ok {
		return
	}
	r.log.Debug("answering handshake", slog.String("peer_id", h.PeerID.String()))

	reply := []models.Message{models.Handshake{}}
	if r.pieceCount > 0 {
		reply = append(reply, models.Bitfield{Bits: models.NewBitset(r.pieceCount)})
	}
	for _, m := range reply {
		if err := sendNow(c, m); err != nil {
			r.log.Warn("failed to answer peer", slog.String("peer", c.String()), slog.Any("error", err))
			_ = c.Close()
			return
		}
	}
	r.answered.Inc()
}

func (r *Responder) onClose(c *p2p.Connection, err error) {
	if err != nil {
		r.log.Warn("peer dropped", slog.String("peer", c.String()), slog.Any("error", err))
		return
	}
	r.log.Info("peer disconnected", slog.String("peer", c.String()))
}

// sendNow queues msg, draining the frame in front of it first.
func sendNow(c *p2p.Connection, msg models.Message) error {
	for i := 0; i < maxFlushAttempts; i++ {
		ok, err := c.SendMessage(msg)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if _, err := c.Flush(); err != nil {
			return err
		}
	}
	return errors.Wrapf(ErrWriterBusy, "sending %s", msg)
}
