package protocol

import (
	"encoding/binary"
	"math"

	"github.com/WendelHime/peerwire/internal/shared/models"
	"github.com/pkg/errors"
)

// entry describes the payload of one message type. Adding a message type means
// adding a models variant and one entry here.
type entry struct {
	// size validates a payload length before the payload has arrived.
	size   func(n int, ctx Context) error
	length func(m models.Typed, ctx Context) (int, error)
	encode func(m models.Typed, p []byte)
	decode func(p []byte, ctx Context) (models.Typed, error)
}

// registry is indexed by message id. A nil slot is an unknown type.
type registry [math.MaxUint8 + 1]*entry

var defaultEntries = registry{
	models.MessageIDChoke:         empty(models.Choke{}),
	models.MessageIDUnchoke:       empty(models.Unchoke{}),
	models.MessageIDInterested:    empty(models.Interested{}),
	models.MessageIDNotInterested: empty(models.NotInterested{}),
	models.MessageIDHave: {
		size:   fixed(4),
		length: constant(4),
		encode: func(m models.Typed, p []byte) {
			binary.BigEndian.PutUint32(p, m.(models.Have).PieceIndex)
		},
		decode: func(p []byte, _ Context) (models.Typed, error) {
			return models.Have{PieceIndex: binary.BigEndian.Uint32(p)}, nil
		},
	},
	models.MessageIDBitfield: {
		size:   bitfieldSize,
		length: bitfieldLength,
		encode: func(m models.Typed, p []byte) {
			copy(p, m.(models.Bitfield).Bits.Bytes())
		},
		decode: decodeBitfield,
	},
	models.MessageIDRequest: {
		size:   fixed(12),
		length: constant(12),
		encode: func(m models.Typed, p []byte) {
			r := m.(models.Request)
			putTriple(p, r.PieceIndex, r.Offset, r.Length)
		},
		decode: func(p []byte, _ Context) (models.Typed, error) {
			index, offset, length := triple(p)
			return models.Request{PieceIndex: index, Offset: offset, Length: length}, nil
		},
	},
	models.MessageIDPiece: {
		size: atLeast(8),
		length: func(m models.Typed, _ Context) (int, error) {
			return 8 + len(m.(models.Piece).Block), nil
		},
		encode: func(m models.Typed, p []byte) {
			pc := m.(models.Piece)
			binary.BigEndian.PutUint32(p[0:4], pc.PieceIndex)
			binary.BigEndian.PutUint32(p[4:8], pc.Offset)
			copy(p[8:], pc.Block)
		},
		decode: func(p []byte, _ Context) (models.Typed, error) {
			block := make([]byte, len(p)-8)
			copy(block, p[8:])
			return models.Piece{
				PieceIndex: binary.BigEndian.Uint32(p[0:4]),
				Offset:     binary.BigEndian.Uint32(p[4:8]),
				Block:      block,
			}, nil
		},
	},
	models.MessageIDCancel: {
		size:   fixed(12),
		length: constant(12),
		encode: func(m models.Typed, p []byte) {
			c := m.(models.Cancel)
			putTriple(p, c.PieceIndex, c.Offset, c.Length)
		},
		decode: func(p []byte, _ Context) (models.Typed, error) {
			index, offset, length := triple(p)
			return models.Cancel{PieceIndex: index, Offset: offset, Length: length}, nil
		},
	},
	models.MessageIDPort: {
		size:   fixed(2),
		length: constant(2),
		encode: func(m models.Typed, p []byte) {
			binary.BigEndian.PutUint16(p, m.(models.Port).Port)
		},
		decode: func(p []byte, _ Context) (models.Typed, error) {
			return models.Port{Port: binary.BigEndian.Uint16(p)}, nil
		},
	},
}

func empty(m models.Typed) *entry {
	return &entry{
		size:   fixed(0),
		length: constant(0),
		encode: func(models.Typed, []byte) {},
		decode: func([]byte, Context) (models.Typed, error) { return m, nil },
	}
}

func fixed(want int) func(int, Context) error {
	return func(n int, _ Context) error {
		if n != want {
			return errors.Wrapf(ErrInvalidLength, "payload %d, want %d", n, want)
		}
		return nil
	}
}

func atLeast(least int) func(int, Context) error {
	return func(n int, _ Context) error {
		if n < least {
			return errors.Wrapf(ErrInvalidLength, "payload %d, want at least %d", n, least)
		}
		return nil
	}
}

func constant(n int) func(models.Typed, Context) (int, error) {
	return func(models.Typed, Context) (int, error) { return n, nil }
}

func bitfieldSize(n int, ctx Context) error {
	if ctx.PieceCount > 0 && n != models.BitsetByteLen(ctx.PieceCount) {
		return errors.Wrapf(ErrBitfieldLength, "payload %d, want %d", n, models.BitsetByteLen(ctx.PieceCount))
	}
	return nil
}

func bitfieldLength(m models.Typed, ctx Context) (int, error) {
	bits := m.(models.Bitfield).Bits
	if ctx.PieceCount > 0 && bits.Len() != ctx.PieceCount {
		return 0, errors.Wrapf(ErrBitfieldLength, "bitfield of %d pieces, want %d", bits.Len(), ctx.PieceCount)
	}
	return len(bits.Bytes()), nil
}

func decodeBitfield(p []byte, ctx Context) (models.Typed, error) {
	n := ctx.PieceCount
	if n == 0 {
		n = len(p) * 8
	}
	bits, err := models.BitsetFromBytes(p, n)
	switch {
	case errors.Is(err, models.ErrBitsetSpareBits):
		return nil, ErrBitfieldSpareBits
	case err != nil:
		return nil, ErrBitfieldLength
	}
	return models.Bitfield{Bits: bits}, nil
}

func putTriple(p []byte, a, b, c uint32) {
	binary.BigEndian.PutUint32(p[0:4], a)
	binary.BigEndian.PutUint32(p[4:8], b)
	binary.BigEndian.PutUint32(p[8:12], c)
}

func triple(p []byte) (uint32, uint32, uint32) {
	return binary.BigEndian.Uint32(p[0:4]), binary.BigEndian.Uint32(p[4:8]), binary.BigEndian.Uint32(p[8:12])
}
