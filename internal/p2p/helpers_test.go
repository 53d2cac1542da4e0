package p2p

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/WendelHime/peerwire/internal/protocol"
	"github.com/WendelHime/peerwire/internal/shared/models"
)

// fakeChannel is an in-memory Channel. Reads hand out at most chunk bytes per
// call. With eagerEOF the last chunk comes back together with io.EOF, otherwise
// io.EOF is reported by the following read, as a net.Conn does. Writes take at most writeLimit bytes per call and, when throttle is
// set, every call after a successful write makes no progress.
type fakeChannel struct {
	mu sync.Mutex

	in       []byte
	chunk    int
	eof      bool
	eagerEOF bool

	out        bytes.Buffer
	writeLimit int
	throttle   bool
	wrote      bool

	readErr  error
	writeErr error
	closed   int
}

func (f *fakeChannel) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.in) == 0 {
		if f.eof {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := len(p)
	if f.chunk > 0 && n > f.chunk {
		n = f.chunk
	}
	n = copy(p[:n], f.in)
	f.in = f.in[n:]
	if len(f.in) == 0 && f.eof && f.eagerEOF {
		return n, io.EOF
	}
	return n, nil
}

func (f *fakeChannel) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.throttle && f.wrote {
		f.wrote = false
		return 0, nil
	}
	n := len(p)
	if f.writeLimit > 0 && n > f.writeLimit {
		n = f.writeLimit
	}
	f.out.Write(p[:n])
	f.wrote = n > 0
	return n, nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeChannel) String() string {
	return "fake"
}

func (f *fakeChannel) feed(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in = append(f.in, p...)
}

func (f *fakeChannel) written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.out.Bytes()...)
}

func fullBitset(n int) models.Bitset {
	s := models.NewBitset(n)
	for i := 0; i < n; i++ {
		s.Set(i)
	}
	return s
}

func testSession() protocol.Context {
	var ctx protocol.Context
	copy(ctx.InfoHash[:], "aaaaaaaaaaaaaaaaaaaa")
	copy(ctx.PeerID[:], "-PW0100-bbbbbbbbbbbb")
	ctx.PieceCount = 16
	return ctx
}

func remoteHandshake(ctx protocol.Context) models.Handshake {
	h := models.Handshake{InfoHash: ctx.InfoHash}
	copy(h.PeerID[:], "-XX0001-cccccccccccc")
	return h
}

// frames encodes msgs back to back as they would appear on the wire.
func frames(t *testing.T, ctx protocol.Context, msgs ...models.Message) []byte {
	t.Helper()
	codec := protocol.New()
	var out []byte
	for _, msg := range msgs {
		buf := protocol.NewBuffer(1 << 16)
		ok, err := codec.Encode(buf, msg, ctx)
		require.NoError(t, err)
		require.True(t, ok)
		out = append(out, buf.Bytes()...)
	}
	return out
}

// nextMessage polls c until a message arrives, the connection fails or the
// timeout passes.
func nextMessage(t *testing.T, c *Connection, timeout time.Duration) models.Message {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_, err := c.Flush()
		require.NoError(t, err)
		msg, err := c.ReadMessageNow()
		require.NoError(t, err)
		if msg != nil {
			return msg
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no message from %s within %s", c, timeout)
	return nil
}
