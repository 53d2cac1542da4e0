package p2p

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/WendelHime/peerwire/internal/protocol"
	"github.com/WendelHime/peerwire/internal/shared/models"
)

type State int32

const (
	StateConnecting State = iota
	StateHandshakePending
	StateEstablished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshakePending:
		return "handshake_pending"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Connection is one peer wire session over a Channel. ReadMessageNow must have
// a single caller at a time; the write side (SendMessage, Flush) is serialized
// internally and may run concurrently with the read side.
type Connection struct {
	session protocol.Context
	cfg     Config
	codec   *protocol.Codec
	log     *slog.Logger

	state             atomic.Int32
	sentHandshake     atomic.Bool
	receivedHandshake atomic.Bool
	closeOnce         sync.Once

	mu       sync.Mutex
	remoteID models.PeerID
	err      error

	ch     Channel
	reader *Reader
	writer *Writer
	wmu    sync.Mutex
	worker worker
}

func newConnection(session protocol.Context, cfg Config, codec *protocol.Codec, logger *slog.Logger) *Connection {
	if codec == nil {
		codec = protocol.New()
	}
	c := &Connection{
		session: session,
		cfg:     cfg.withDefaults(),
		codec:   codec,
		log:     orNop(logger),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// attach completes the connect step.
func (c *Connection) attach(ch Channel) {
	c.ch = ch
	c.reader = NewReader(ch, c.codec, c.cfg.BufferSize, c.session)
	c.writer = NewWriter(ch, c.codec, c.cfg.BufferSize, c.session)
	c.log = c.log.With(slog.String("peer", ch.String()))
	if c.state.CompareAndSwap(int32(StateConnecting), int32(StateHandshakePending)) {
		c.log.Debug("connection open", slog.String("info_hash", c.session.InfoHash.String()))
	}
}

// Open wraps an already connected channel. Sends are written through
// immediately.
func Open(ch Channel, session protocol.Context, cfg Config, logger *slog.Logger) *Connection {
	c := newConnection(session, cfg, nil, logger)
	c.worker = directWorker{c: c}
	c.attach(ch)
	return c
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

// RemotePeerID is the peer id from the remote handshake, zero until it arrives.
func (c *Connection) RemotePeerID() models.PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteID
}

// Err returns why the connection was torn down. It is nil while open and
// after a graceful or requested close.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Connection) String() string {
	if c.ch == nil {
		return "peer(" + c.State().String() + ")"
	}
	return "peer(" + c.ch.String() + ", " + c.State().String() + ")"
}

// ReadMessageNow returns the next decoded message, or (nil, nil) when none is
// ready. The remote handshake is always the first message returned. Any
// failure closes the connection; later calls return ErrConnectionClosed.
func (c *Connection) ReadMessageNow() (models.Message, error) {
	switch c.State() {
	case StateClosed:
		if c.reader != nil {
			c.reader.Discard()
		}
		return nil, ErrConnectionClosed
	case StateConnecting:
		return nil, nil
	}

	if !c.receivedHandshake.Load() {
		return c.readHandshake()
	}
	msg, ok, err := c.reader.Poll()
	if err != nil {
		return nil, c.failRead(err)
	}
	if !ok {
		return nil, nil
	}
	return msg, nil
}

func (c *Connection) readHandshake() (models.Message, error) {
	h, ok, err := c.reader.PollHandshake()
	if err != nil {
		return nil, c.failRead(err)
	}
	if !ok {
		return nil, nil
	}
	if h.InfoHash != c.session.InfoHash {
		return nil, c.failRead(errors.Wrapf(ErrInfoHashMismatch, "got %s, want %s", h.InfoHash, c.session.InfoHash))
	}

	c.mu.Lock()
	c.remoteID = h.PeerID
	c.mu.Unlock()
	c.receivedHandshake.Store(true)
	c.log.Debug("handshake received", slog.String("peer_id", h.PeerID.String()))
	c.maybeEstablish()
	return h, nil
}

// SendMessage hands msg to the writer. It returns false when the previous
// frame has not drained yet. The local handshake must be the first message
// sent and may be sent only once.
func (c *Connection) SendMessage(msg models.Message) (bool, error) {
	switch c.State() {
	case StateClosed:
		c.discardWrites()
		return false, ErrConnectionClosed
	case StateConnecting:
		return false, nil
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	_, isHandshake := msg.(models.Handshake)
	sent := c.sentHandshake.Load()
	switch {
	case !sent && !isHandshake:
		return false, ErrHandshakeRequired
	case sent && isHandshake:
		return false, ErrDuplicateHandshake
	}

	ok, err := c.worker.send(msg)
	if err != nil {
		return false, err
	}
	if ok && isHandshake {
		c.sentHandshake.Store(true)
		c.log.Debug("handshake sent")
		c.maybeEstablish()
	}
	return ok, nil
}

// Flush continues writing a partially sent frame.
func (c *Connection) Flush() (WriteStatus, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.flushLocked()
}

func (c *Connection) flushLocked() (WriteStatus, error) {
	switch c.State() {
	case StateClosed:
		c.writer.Discard()
		return WriteIdle, ErrConnectionClosed
	case StateConnecting:
		return WriteIdle, nil
	}
	status, err := c.writer.Pump()
	if err != nil {
		c.writer.Discard()
		return status, c.fail(err)
	}
	return status, nil
}

// Pending reports how many outbound bytes are still unsent. It is zero once
// the connection is closed.
func (c *Connection) Pending() int {
	if c.writer == nil || c.State() == StateClosed {
		return 0
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.writer.Pending()
}

// Buffered reports how many received bytes are waiting to be decoded. It is
// zero once the connection is closed. It belongs to the read side.
func (c *Connection) Buffered() int {
	if c.reader == nil || c.State() == StateClosed {
		return 0
	}
	return c.reader.Buffered()
}

// Close tears the connection down and drops unsent bytes. Inbound bytes are
// released by the reading side on its next call. Calling it again is a no-op.
func (c *Connection) Close() error {
	err := c.teardown(nil)
	c.discardWrites()
	return err
}

func (c *Connection) maybeEstablish() {
	if !c.sentHandshake.Load() || !c.receivedHandshake.Load() {
		return
	}
	if c.state.CompareAndSwap(int32(StateHandshakePending), int32(StateEstablished)) {
		c.log.Info("connection established", slog.String("remote_peer_id", c.RemotePeerID().String()))
	}
}

// fail tears the connection down because of err and returns what the caller
// should see.
func (c *Connection) fail(err error) error {
	if c.State() == StateClosed {
		return ErrConnectionClosed
	}
	if errors.Is(err, ErrConnectionClosed) {
		c.log.Info("peer closed the connection")
		_ = c.teardown(nil)
		return ErrConnectionClosed
	}
	if protocol.IsInvalid(err) {
		c.log.Warn("protocol violation", slog.Any("error", err))
	} else {
		c.log.Warn("connection failed", slog.Any("error", err))
	}
	_ = c.teardown(err)
	return err
}

// failRead is fail for the read side, which owns the reader buffer.
func (c *Connection) failRead(err error) error {
	err = c.fail(err)
	c.reader.Discard()
	return err
}

func (c *Connection) teardown(cause error) error {
	var err error
	c.closeOnce.Do(func() {
		prev := State(c.state.Swap(int32(StateClosed)))
		c.mu.Lock()
		c.err = cause
		c.mu.Unlock()
		if c.ch != nil {
			err = c.ch.Close()
		}
		c.log.Debug("connection closed", slog.String("from", prev.String()))
	})
	return err
}

func (c *Connection) discardWrites() {
	if c.writer == nil {
		return
	}
	c.wmu.Lock()
	c.writer.Discard()
	c.wmu.Unlock()
}
