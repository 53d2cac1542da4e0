package p2p

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WendelHime/peerwire/internal/protocol"
	"github.com/WendelHime/peerwire/internal/shared/models"
)

func TestReaderPartialDelivery(t *testing.T) {
	ctx := testSession()
	h := remoteHandshake(ctx)
	msgs := []models.Message{
		models.Bitfield{Bits: fullBitset(16)},
		models.KeepAlive{},
		models.Unchoke{},
		models.Request{PieceIndex: 1, Offset: 2, Length: 3},
		models.Piece{PieceIndex: 1, Offset: 2, Block: []byte("some block bytes")},
		models.Have{PieceIndex: 15},
		models.Port{Port: 6881},
	}
	stream := frames(t, ctx, append([]models.Message{h}, msgs...)...)

	for _, chunk := range []int{1, 2, 3, 5, 7, 64, 0} {
		ch := &fakeChannel{in: append([]byte(nil), stream...), chunk: chunk}
		r := NewReader(ch, protocol.New(), 256, ctx)

		var got models.Handshake
		for i := 0; ; i++ {
			require.Less(t, i, len(stream)+1, "chunk %d", chunk)
			hs, ok, err := r.PollHandshake()
			require.NoError(t, err)
			if ok {
				got = hs
				break
			}
		}
		assert.Equal(t, h, got, "chunk %d", chunk)

		var decoded []models.Message
		for i := 0; len(decoded) < len(msgs); i++ {
			require.Less(t, i, len(stream)+len(msgs)+1, "chunk %d", chunk)
			msg, ok, err := r.Poll()
			require.NoError(t, err)
			if ok {
				decoded = append(decoded, msg)
			}
		}
		assert.Equal(t, msgs, decoded, "chunk %d", chunk)
		assert.Zero(t, r.Buffered())
	}
}

func TestReaderPoll(t *testing.T) {
	ctx := testSession()
	var tests = []struct {
		name   string
		setup  func(t *testing.T) *fakeChannel
		assert func(t *testing.T, r *Reader, msg models.Message, ok bool, err error)
	}{
		{
			name: "nothing available is pending",
			setup: func(t *testing.T) *fakeChannel {
				return &fakeChannel{}
			},
			assert: func(t *testing.T, r *Reader, msg models.Message, ok bool, err error) {
				assert.NoError(t, err)
				assert.False(t, ok)
				assert.Nil(t, msg)
			},
		},
		{
			name: "half a frame is pending",
			setup: func(t *testing.T) *fakeChannel {
				return &fakeChannel{in: frames(t, ctx, models.Have{PieceIndex: 1})[:6]}
			},
			assert: func(t *testing.T, r *Reader, msg models.Message, ok bool, err error) {
				assert.NoError(t, err)
				assert.False(t, ok)
				assert.Equal(t, 6, r.Buffered())
			},
		},
		{
			name: "end of stream between frames",
			setup: func(t *testing.T) *fakeChannel {
				return &fakeChannel{eof: true}
			},
			assert: func(t *testing.T, r *Reader, msg models.Message, ok bool, err error) {
				assert.ErrorIs(t, err, ErrConnectionClosed)
				assert.False(t, ok)
			},
		},
		{
			name: "end of stream after a partial frame drops it on the next poll",
			setup: func(t *testing.T) *fakeChannel {
				return &fakeChannel{in: frames(t, ctx, models.Have{PieceIndex: 1})[:7], eof: true}
			},
			assert: func(t *testing.T, r *Reader, msg models.Message, ok bool, err error) {
				require.NoError(t, err)
				assert.False(t, ok)
				assert.Equal(t, 7, r.Buffered())

				_, ok, err = r.Poll()
				assert.ErrorIs(t, err, ErrConnectionClosed)
				assert.False(t, ok)
				assert.Zero(t, r.Buffered())
			},
		},
		{
			name: "end of stream with a partial frame drops it",
			setup: func(t *testing.T) *fakeChannel {
				return &fakeChannel{in: frames(t, ctx, models.Have{PieceIndex: 1})[:7], eof: true, eagerEOF: true}
			},
			assert: func(t *testing.T, r *Reader, msg models.Message, ok bool, err error) {
				assert.ErrorIs(t, err, ErrConnectionClosed)
				assert.False(t, ok)
				assert.Zero(t, r.Buffered())
			},
		},
		{
			name: "last frame before end of stream is delivered",
			setup: func(t *testing.T) *fakeChannel {
				return &fakeChannel{in: frames(t, ctx, models.Choke{}), eof: true}
			},
			assert: func(t *testing.T, r *Reader, msg models.Message, ok bool, err error) {
				assert.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, models.Choke{}, msg)
			},
		},
		{
			name: "unknown message id",
			setup: func(t *testing.T) *fakeChannel {
				return &fakeChannel{in: []byte{0, 0, 0, 1, 42}}
			},
			assert: func(t *testing.T, r *Reader, msg models.Message, ok bool, err error) {
				assert.ErrorIs(t, err, protocol.ErrUnknownMessage)
				assert.True(t, protocol.IsInvalid(err))
			},
		},
		{
			name: "frame longer than the buffer",
			setup: func(t *testing.T) *fakeChannel {
				return &fakeChannel{in: []byte{0, 0, 1, 0, byte(models.MessageIDPiece)}}
			},
			assert: func(t *testing.T, r *Reader, msg models.Message, ok bool, err error) {
				assert.ErrorIs(t, err, protocol.ErrFrameTooLarge)
			},
		},
		{
			name: "channel failure",
			setup: func(t *testing.T) *fakeChannel {
				return &fakeChannel{readErr: errors.New("connection reset")}
			},
			assert: func(t *testing.T, r *Reader, msg models.Message, ok bool, err error) {
				var ioErr *IOError
				require.ErrorAs(t, err, &ioErr)
				assert.Equal(t, "read", ioErr.Op)
				assert.False(t, protocol.IsInvalid(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.setup(t), protocol.New(), 128, ctx)
			msg, ok, err := r.Poll()
			tt.assert(t, r, msg, ok, err)
		})
	}
}

func TestReaderPollHandshakeRejectsProtocolName(t *testing.T) {
	ch := &fakeChannel{in: []byte{18}}
	r := NewReader(ch, protocol.New(), 128, testSession())
	_, ok, err := r.PollHandshake()
	assert.False(t, ok)
	assert.ErrorIs(t, err, protocol.ErrProtocolName)
}
