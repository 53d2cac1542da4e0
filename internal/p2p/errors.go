package p2p

import (
	"github.com/pkg/errors"

	"github.com/WendelHime/peerwire/internal/protocol"
)

var (
	ErrConnectionClosed   = errors.New("p2p: connection closed")
	ErrHandshakeRequired  = errors.New("p2p: handshake must be sent first")
	ErrDuplicateHandshake = errors.New("p2p: handshake already sent")
	ErrAlreadyRunning     = errors.New("p2p: multiplexer already running")
	ErrInfoHashMismatch   = errors.WithMessage(protocol.ErrInvalid, "info hash mismatch")
)

// IOError is a failure of the underlying channel. It is fatal to the
// connection and never retried here.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return "p2p: " + e.Op + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error {
	return e.Err
}
