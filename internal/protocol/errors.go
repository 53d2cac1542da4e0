package protocol

import "github.com/pkg/errors"

// ErrIncomplete is not a failure: the frame needs more bytes and decoding
// should be retried from the same position once they arrive.
var ErrIncomplete = errors.New("protocol: incomplete frame")

// ErrInvalid is the root of every protocol violation. Once it is returned the
// framing of the stream can no longer be trusted.
var ErrInvalid = errors.New("protocol: invalid message")

var (
	ErrUnknownMessage    = errors.WithMessage(ErrInvalid, "unknown message id")
	ErrInvalidLength     = errors.WithMessage(ErrInvalid, "invalid length")
	ErrFrameTooLarge     = errors.WithMessage(ErrInvalid, "frame too large")
	ErrBitfieldLength    = errors.WithMessage(ErrInvalid, "bitfield length mismatch")
	ErrBitfieldSpareBits = errors.WithMessage(ErrInvalid, "bitfield spare bits set")
	ErrProtocolName      = errors.WithMessage(ErrInvalid, "unexpected protocol name")
)

// IsInvalid reports whether err is a protocol violation.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}
