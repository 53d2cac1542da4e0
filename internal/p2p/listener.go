package p2p

import (
	"context"
	"log/slog"
	"net"

	"github.com/pkg/errors"

	"github.com/WendelHime/peerwire/internal/protocol"
)

// Serve accepts inbound peers on ln and registers each with mux until ctx is
// done. It closes ln before returning.
func Serve(ctx context.Context, ln net.Listener, mux *Multiplexer, session protocol.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
	}()

	mux.log.Info("listening", slog.String("addr", ln.Addr().String()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		c := mux.Register(NewConnChannel(conn, mux.cfg.PollTimeout), session)
		mux.log.Debug("peer accepted", slog.String("peer", c.String()))
	}
}
