package p2p

import (
	"io"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Channel is a duplex byte stream with non-blocking semantics: Read and Write
// return immediately with whatever progress was possible. (0, nil) means "try
// again later"; io.EOF from Read means the remote end closed the stream.
type Channel interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	String() string
}

const defaultPollTimeout = time.Millisecond

type connChannel struct {
	conn        net.Conn
	pollTimeout time.Duration
}

// NewConnChannel adapts a blocking net.Conn. Every call arms a deadline
// pollTimeout in the future and reports an expired deadline as no progress.
func NewConnChannel(conn net.Conn, pollTimeout time.Duration) Channel {
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	return &connChannel{conn: conn, pollTimeout: pollTimeout}
}

func (c *connChannel) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.pollTimeout)); err != nil {
		return 0, errors.Wrapf(err, "set read deadline on %s", c)
	}
	n, err := c.conn.Read(p)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return n, nil
	case errors.Is(err, io.EOF):
		return n, io.EOF
	default:
		return n, errors.Wrapf(err, "read from %s", c)
	}
}

func (c *connChannel) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.pollTimeout)); err != nil {
		return 0, errors.Wrapf(err, "set write deadline on %s", c)
	}
	n, err := c.conn.Write(p)
	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		return n, errors.Wrapf(err, "write to %s", c)
	}
	return n, nil
}

func (c *connChannel) Close() error {
	return c.conn.Close()
}

func (c *connChannel) String() string {
	return c.conn.RemoteAddr().String()
}
