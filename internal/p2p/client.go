package p2p

import (
	"context"
	"log/slog"
	"net"

	"github.com/pkg/errors"

	"github.com/WendelHime/peerwire/internal/protocol"
	"github.com/WendelHime/peerwire/internal/shared/models"
)

// Dial connects to a peer over TCP and returns a connection whose sends are
// written through on the caller's goroutine.
func Dial(ctx context.Context, addr models.Addr, session protocol.Context, cfg Config, logger *slog.Logger) (*Connection, error) {
	c := newConnection(session, cfg, nil, logger)
	c.worker = directWorker{c: c}

	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		_ = c.teardown(err)
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	c.attach(NewConnChannel(conn, c.cfg.PollTimeout))
	return c, nil
}
