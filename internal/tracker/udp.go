package tracker

import (
	"context"
	"encoding/binary"
	"math/rand"
	"net"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/WendelHime/peerwire/internal/shared/models"
)

const (
	udpProtocolID     = 0x41727101980
	udpActionConnect  = 0
	udpActionAnnounce = 1
	udpActionError    = 3

	udpAnnounceSize = 98
	udpNumWant      = 100
	udpTimeout      = 15 * time.Second
)

type UDPGetter struct {
	self Announce
}

func NewUDPGetter(self Announce) PeersGetter {
	return UDPGetter{self: self}
}

func (u UDPGetter) GetPeers(ctx context.Context, announce string, metafile models.Metafile) ([]models.Peer, error) {
	tracker, err := url.Parse(announce)
	if err != nil {
		return nil, errors.Wrap(err, "parse announce url")
	}
	raddr, err := net.ResolveUDPAddr("udp", tracker.Host)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", tracker.Host)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", raddr)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(udpTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, errors.Wrap(err, "set deadline")
	}

	transactionID := rand.Uint32()
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:], udpProtocolID)
	binary.BigEndian.PutUint32(buf[8:], udpActionConnect)
	binary.BigEndian.PutUint32(buf[12:], transactionID)
	resp, err := roundTrip(conn, buf, udpActionConnect, transactionID, 16)
	if err != nil {
		return nil, errors.WithMessage(err, "connect")
	}
	connectionID := binary.BigEndian.Uint64(resp[8:16])

	buf = make([]byte, udpAnnounceSize)
	binary.BigEndian.PutUint64(buf[0:8], connectionID)
	binary.BigEndian.PutUint32(buf[8:12], udpActionAnnounce)
	binary.BigEndian.PutUint32(buf[12:16], transactionID)
	copy(buf[16:36], metafile.InfoHash[:])
	copy(buf[36:56], u.self.PeerID[:])
	binary.BigEndian.PutUint64(buf[56:64], 0) // downloaded
	binary.BigEndian.PutUint64(buf[64:72], uint64(left(metafile)))
	binary.BigEndian.PutUint64(buf[72:80], 0) // uploaded
	binary.BigEndian.PutUint32(buf[80:84], 0) // event
	binary.BigEndian.PutUint32(buf[84:88], 0) // ip: sender address
	binary.BigEndian.PutUint32(buf[88:92], transactionID)
	binary.BigEndian.PutUint32(buf[92:96], udpNumWant)
	binary.BigEndian.PutUint16(buf[96:98], u.self.Port)
	resp, err = roundTrip(conn, buf, udpActionAnnounce, transactionID, 20)
	if err != nil {
		return nil, errors.WithMessage(err, "announce")
	}

	// interval, leechers and seeders sit at resp[8:20]
	return parseCompactPeers(resp[20:])
}

// roundTrip sends req and reads one reply, checking its action and
// transaction id.
func roundTrip(conn *net.UDPConn, req []byte, action, transactionID uint32, least int) ([]byte, error) {
	if _, err := conn.Write(req); err != nil {
		return nil, errors.Wrap(err, "write")
	}
	resp := make([]byte, 20+udpNumWant*6)
	n, err := conn.Read(resp)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	resp = resp[:n]
	if n < 8 {
		return nil, errors.Wrapf(ErrInvalidResponse, "%d bytes", n)
	}
	if got := binary.BigEndian.Uint32(resp[4:8]); got != transactionID {
		return nil, errors.Wrapf(ErrInvalidResponse, "transaction id %d, want %d", got, transactionID)
	}
	if got := binary.BigEndian.Uint32(resp[0:4]); got != action {
		if got == udpActionError {
			return nil, errors.Wrap(ErrInvalidResponse, string(resp[8:]))
		}
		return nil, errors.Wrapf(ErrInvalidResponse, "action %d, want %d", got, action)
	}
	if n < least {
		return nil, errors.Wrapf(ErrInvalidResponse, "%d bytes, want at least %d", n, least)
	}
	return resp, nil
}
