package p2p

import (
	"io"

	"github.com/pkg/errors"

	"github.com/WendelHime/peerwire/internal/protocol"
	"github.com/WendelHime/peerwire/internal/shared/models"
)

type decodeFunc func(src []byte) (models.Message, int, error)

// Reader turns the inbound byte stream of one channel into messages. It must
// not be polled concurrently with itself.
type Reader struct {
	ch    Channel
	codec *protocol.Codec
	buf   *protocol.Buffer
	ctx   protocol.Context
	eof   bool
}

// NewReader allocates a buffer of capacity bytes. Frames longer than the
// buffer are rejected as invalid.
func NewReader(ch Channel, codec *protocol.Codec, capacity int, ctx protocol.Context) *Reader {
	ctx.MaxFrameSize = capacity
	return &Reader{
		ch:    ch,
		codec: codec,
		buf:   protocol.NewBuffer(capacity),
		ctx:   ctx,
	}
}

// Poll returns the next standard frame. (nil, false, nil) means nothing is
// ready yet. ErrConnectionClosed reports end of stream; errors wrapping
// protocol.ErrInvalid report a broken stream; *IOError a failed channel.
func (r *Reader) Poll() (models.Message, bool, error) {
	return r.poll(func(src []byte) (models.Message, int, error) {
		return r.codec.Decode(src, r.ctx)
	})
}

// PollHandshake is Poll for the fixed-size handshake that opens a stream.
func (r *Reader) PollHandshake() (models.Handshake, bool, error) {
	msg, ok, err := r.poll(func(src []byte) (models.Message, int, error) {
		h, n, err := r.codec.DecodeHandshake(src)
		if err != nil {
			return nil, 0, err
		}
		return h, n, nil
	})
	if !ok {
		return models.Handshake{}, false, err
	}
	return msg.(models.Handshake), true, nil
}

// Buffered reports how many undecoded bytes are held.
func (r *Reader) Buffered() int {
	return r.buf.Len()
}

// Discard drops any buffered partial frame.
func (r *Reader) Discard() {
	r.buf.Reset()
}

func (r *Reader) poll(decode decodeFunc) (models.Message, bool, error) {
	if msg, ok, err := r.next(decode); ok || err != nil {
		return msg, ok, err
	}
	if r.eof {
		r.buf.Reset()
		return nil, false, ErrConnectionClosed
	}

	r.buf.Compact()
	if r.buf.Available() == 0 {
		return nil, false, errors.Wrapf(protocol.ErrFrameTooLarge, "read buffer of %d bytes is full", r.buf.Cap())
	}
	n, err := r.ch.Read(r.buf.Free())
	r.buf.Commit(n)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return nil, false, &IOError{Op: "read", Err: err}
		}
		r.eof = true
	}
	if n == 0 && !r.eof {
		return nil, false, nil
	}

	if msg, ok, err := r.next(decode); ok || err != nil {
		return msg, ok, err
	}
	if r.eof {
		r.buf.Reset()
		return nil, false, ErrConnectionClosed
	}
	return nil, false, nil
}

func (r *Reader) next(decode decodeFunc) (models.Message, bool, error) {
	msg, n, err := decode(r.buf.Bytes())
	switch {
	case errors.Is(err, protocol.ErrIncomplete):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	r.buf.Consume(n)
	return msg, true, nil
}
