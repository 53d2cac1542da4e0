package p2p

import (
	"github.com/pkg/errors"

	"github.com/WendelHime/peerwire/internal/protocol"
	"github.com/WendelHime/peerwire/internal/shared/models"
)

type WriteStatus int

const (
	WriteIdle WriteStatus = iota
	WriteInProgress
	WriteComplete
	WriteIOError
)

func (s WriteStatus) String() string {
	switch s {
	case WriteIdle:
		return "idle"
	case WriteInProgress:
		return "in_progress"
	case WriteComplete:
		return "complete"
	case WriteIOError:
		return "io_error"
	default:
		return "unknown"
	}
}

// Writer holds at most one encoded frame and drains it into a channel across
// as many non-blocking writes as it takes.
type Writer struct {
	ch    Channel
	codec *protocol.Codec
	buf   *protocol.Buffer
	ctx   protocol.Context
}

func NewWriter(ch Channel, codec *protocol.Codec, capacity int, ctx protocol.Context) *Writer {
	ctx.MaxFrameSize = capacity
	return &Writer{
		ch:    ch,
		codec: codec,
		buf:   protocol.NewBuffer(capacity),
		ctx:   ctx,
	}
}

// TrySend encodes msg for transmission. It returns false while a previous
// frame is still draining.
func (w *Writer) TrySend(msg models.Message) (bool, error) {
	if w.buf.Len() > 0 {
		return false, nil
	}
	ok, err := w.codec.Encode(w.buf, msg, w.ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, errors.Wrapf(protocol.ErrFrameTooLarge, "%s exceeds write buffer of %d bytes", msg, w.buf.Cap())
	}
	return true, nil
}

// Pump writes the unsent part of the current frame until it drains or the
// channel stops taking bytes.
func (w *Writer) Pump() (WriteStatus, error) {
	if w.buf.Len() == 0 {
		return WriteIdle, nil
	}
	for w.buf.Len() > 0 {
		n, err := w.ch.Write(w.buf.Bytes())
		w.buf.Consume(n)
		if err != nil {
			return WriteIOError, &IOError{Op: "write", Err: err}
		}
		if n == 0 {
			return WriteInProgress, nil
		}
	}
	return WriteComplete, nil
}

// Pending reports how many bytes of the current frame are unsent.
func (w *Writer) Pending() int {
	return w.buf.Len()
}

// Discard abandons the unsent bytes.
func (w *Writer) Discard() {
	w.buf.Reset()
}
