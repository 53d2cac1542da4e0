package p2p

import "github.com/WendelHime/peerwire/internal/shared/models"

// worker decides when an accepted frame is pushed into the channel. The
// connection holds its write lock while calling send.
type worker interface {
	send(msg models.Message) (bool, error)
}

// directWorker writes through on the caller's goroutine. A frame the channel
// could not take completely is continued by the next send or Flush.
type directWorker struct {
	c *Connection
}

func (w directWorker) send(msg models.Message) (bool, error) {
	if _, err := w.c.flushLocked(); err != nil {
		return false, err
	}
	ok, err := w.c.writer.TrySend(msg)
	if !ok || err != nil {
		return ok, err
	}
	if _, err := w.c.flushLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// muxWorker only buffers the frame and wakes the multiplexer, whose loop
// drains it.
type muxWorker struct {
	c    *Connection
	wake func()
}

func (w muxWorker) send(msg models.Message) (bool, error) {
	ok, err := w.c.writer.TrySend(msg)
	if ok {
		w.wake()
	}
	return ok, err
}
