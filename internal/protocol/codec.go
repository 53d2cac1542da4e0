package protocol

import (
	"encoding/binary"
	"math"

	"github.com/WendelHime/peerwire/internal/shared/models"
	"github.com/pkg/errors"
)

const (
	lengthPrefixSize = 4
	headerSize       = lengthPrefixSize + 1
)

// Context carries the per-connection facts the codec needs. It is passed on
// every call so a single Codec can serve any number of connections.
type Context struct {
	// InfoHash and PeerID are stamped into outbound handshakes that leave
	// them zero.
	InfoHash models.InfoHash
	PeerID   models.PeerID
	// PieceCount fixes the bitfield size. Zero means unknown.
	PieceCount int
	// MaxFrameSize bounds a whole frame, length prefix included. Zero means
	// unbounded.
	MaxFrameSize int
}

// Codec encodes and decodes peer wire frames. It holds no mutable state.
type Codec struct {
	entries *registry
}

func New() *Codec {
	return &Codec{entries: &defaultEntries}
}

// Encode writes the frame for msg at the write cursor of dst. It returns false
// without writing anything when dst lacks room for the whole frame.
func (c *Codec) Encode(dst *Buffer, msg models.Message, ctx Context) (bool, error) {
	switch m := msg.(type) {
	case models.Handshake:
		return c.EncodeHandshake(dst, m, ctx)
	case models.KeepAlive:
		if dst.Available() < lengthPrefixSize {
			return false, nil
		}
		binary.BigEndian.PutUint32(dst.Free(), 0)
		dst.Commit(lengthPrefixSize)
		return true, nil
	case models.Typed:
		return c.encodeTyped(dst, m, ctx)
	default:
		return false, errors.Wrapf(ErrInvalid, "unsupported message %T", msg)
	}
}

func (c *Codec) encodeTyped(dst *Buffer, m models.Typed, ctx Context) (bool, error) {
	e := c.entries[m.ID()]
	if e == nil {
		return false, errors.Wrapf(ErrUnknownMessage, "encode %s", m.ID())
	}
	n, err := e.length(m, ctx)
	if err != nil {
		return false, err
	}
	if err := e.size(n, ctx); err != nil {
		return false, errors.WithMessagef(err, "encode %s", m.ID())
	}
	frame := headerSize + n
	if ctx.MaxFrameSize > 0 && frame > ctx.MaxFrameSize {
		return false, errors.Wrapf(ErrFrameTooLarge, "encode %s: %d > %d", m.ID(), frame, ctx.MaxFrameSize)
	}
	if dst.Available() < frame {
		return false, nil
	}
	p := dst.Free()[:frame]
	binary.BigEndian.PutUint32(p, uint32(1+n))
	p[lengthPrefixSize] = byte(m.ID())
	e.encode(m, p[headerSize:])
	dst.Commit(frame)
	return true, nil
}

// Decode interprets one length-prefixed frame at the start of src. On success
// it returns the message and the exact number of bytes it consumed.
// ErrIncomplete means src holds only part of a frame; every other error wraps
// ErrInvalid.
func (c *Codec) Decode(src []byte, ctx Context) (models.Message, int, error) {
	if len(src) < lengthPrefixSize {
		return nil, 0, ErrIncomplete
	}
	length := binary.BigEndian.Uint32(src)
	if length == 0 {
		return models.KeepAlive{}, lengthPrefixSize, nil
	}
	if length > math.MaxInt32 {
		return nil, 0, errors.Wrapf(ErrInvalidLength, "length prefix %d", length)
	}
	frame := lengthPrefixSize + int(length)
	if ctx.MaxFrameSize > 0 && frame > ctx.MaxFrameSize {
		return nil, 0, errors.Wrapf(ErrFrameTooLarge, "%d > %d", frame, ctx.MaxFrameSize)
	}
	if len(src) < headerSize {
		return nil, 0, ErrIncomplete
	}

	id := models.MessageID(src[lengthPrefixSize])
	e := c.entries[id]
	if e == nil {
		return nil, 0, errors.Wrapf(ErrUnknownMessage, "id %d", uint8(id))
	}
	n := int(length) - 1
	if err := e.size(n, ctx); err != nil {
		return nil, 0, errors.WithMessagef(err, "decode %s", id)
	}
	if len(src) < frame {
		return nil, 0, ErrIncomplete
	}

	msg, err := e.decode(src[headerSize:frame], ctx)
	if err != nil {
		return nil, 0, errors.WithMessagef(err, "decode %s", id)
	}
	return msg, frame, nil
}
