package p2p

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/WendelHime/peerwire/internal/protocol"
	"github.com/WendelHime/peerwire/internal/shared/models"
)

// Handler receives the traffic of every connection a Multiplexer serves. Both
// callbacks run on the multiplexer goroutine.
type Handler struct {
	OnMessage func(c *Connection, msg models.Message)
	OnClose   func(c *Connection, err error)
}

// Multiplexer drives many connections from one loop. On every pass it pumps
// each connection's pending write and drains its ready messages.
type Multiplexer struct {
	cfg     Config
	codec   *protocol.Codec
	handler Handler
	log     *slog.Logger

	running atomic.Bool
	wake    chan struct{}

	mu    sync.Mutex
	conns []*Connection
}

func NewMultiplexer(cfg Config, handler Handler, logger *slog.Logger) *Multiplexer {
	return &Multiplexer{
		cfg:     cfg.withDefaults(),
		codec:   protocol.New(),
		handler: handler,
		log:     orNop(logger),
		wake:    make(chan struct{}, 1),
	}
}

// Register adds a connected channel. The returned connection must only be
// read by the multiplexer; SendMessage may be called from any goroutine.
func (m *Multiplexer) Register(ch Channel, session protocol.Context) *Connection {
	c := newConnection(session, m.cfg, m.codec, m.log)
	c.worker = muxWorker{c: c, wake: m.notify}
	c.attach(ch)

	m.mu.Lock()
	m.conns = append(m.conns, c)
	m.mu.Unlock()

	m.notify()
	return c
}

// Len is the number of connections still being served.
func (m *Multiplexer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Run serves connections until ctx is done, then closes them all.
func (m *Multiplexer) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	m.log.Debug("multiplexer started", slog.Duration("interval", m.cfg.PollInterval))
	for {
		m.pass()
		select {
		case <-ctx.Done():
			m.closeAll()
			m.log.Debug("multiplexer stopped")
			return nil
		case <-ticker.C:
		case <-m.wake:
		}
	}
}

func (m *Multiplexer) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Multiplexer) pass() {
	m.mu.Lock()
	conns := append([]*Connection(nil), m.conns...)
	m.mu.Unlock()

	var closed []*Connection
	for _, c := range conns {
		m.service(c)
		if c.State() == StateClosed {
			closed = append(closed, c)
		}
	}
	if len(closed) == 0 {
		return
	}
	m.remove(closed)
	for _, c := range closed {
		m.closed(c)
	}
}

func (m *Multiplexer) service(c *Connection) {
	if _, err := c.Flush(); err != nil {
		return
	}
	for i := 0; i < m.cfg.MaxBatch; i++ {
		msg, err := c.ReadMessageNow()
		if err != nil || msg == nil {
			break
		}
		if m.handler.OnMessage != nil {
			m.handler.OnMessage(c, msg)
		}
	}
	_, _ = c.Flush()
}

func (m *Multiplexer) remove(closed []*Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.conns[:0]
	for _, c := range m.conns {
		if !contains(closed, c) {
			kept = append(kept, c)
		}
	}
	for i := len(kept); i < len(m.conns); i++ {
		m.conns[i] = nil
	}
	m.conns = kept
}

func (m *Multiplexer) closeAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = nil
	m.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
		m.closed(c)
	}
}

func (m *Multiplexer) closed(c *Connection) {
	if m.handler.OnClose != nil {
		m.handler.OnClose(c, c.Err())
	}
}

func contains(conns []*Connection, c *Connection) bool {
	for _, x := range conns {
		if x == c {
			return true
		}
	}
	return false
}
