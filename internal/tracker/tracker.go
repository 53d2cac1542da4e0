package tracker

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/WendelHime/peerwire/internal/shared/models"
)

var (
	ErrUnsupportedProtocol = errors.New("tracker: unsupported announce protocol")
	ErrInvalidPeers        = errors.New("tracker: compact peer list is not a multiple of 6 bytes")
	ErrInvalidResponse     = errors.New("tracker: invalid response")
)

// Tracker finds peers for a torrent.
type Tracker interface {
	GetPeers(ctx context.Context, metafile models.Metafile) ([]models.Peer, error)
	WithHTTPClient(client *http.Client) Tracker
}

type PeersGetter interface {
	GetPeers(ctx context.Context, announce string, metafile models.Metafile) ([]models.Peer, error)
}

// Announce is what we tell the tracker about ourselves.
type Announce struct {
	PeerID models.PeerID
	// Port is where we accept peers.
	Port uint16
}

type tracker struct {
	AnnounceURL string
	self        Announce
	HTTPClient  PeersGetter
	UDPClient   PeersGetter
}

func NewTracker(announceURL string, self Announce) Tracker {
	return &tracker{
		AnnounceURL: announceURL,
		self:        self,
		HTTPClient:  NewHTTPGetter(&http.Client{Timeout: 60 * time.Second}, self),
		UDPClient:   NewUDPGetter(self),
	}
}

func (t *tracker) WithHTTPClient(client *http.Client) Tracker {
	t.HTTPClient = NewHTTPGetter(client, t.self)
	return t
}

func (t *tracker) GetPeers(ctx context.Context, metafile models.Metafile) ([]models.Peer, error) {
	if t.AnnounceURL == "" {
		return nil, errors.New("tracker: announce url is empty")
	}
	switch {
	case strings.HasPrefix(t.AnnounceURL, "http"):
		return t.HTTPClient.GetPeers(ctx, t.AnnounceURL, metafile)
	case strings.HasPrefix(t.AnnounceURL, "udp"):
		return t.UDPClient.GetPeers(ctx, t.AnnounceURL, metafile)
	default:
		slog.Error("unsupported protocol", slog.String("announce-url", t.AnnounceURL))
		return nil, errors.Wrap(ErrUnsupportedProtocol, t.AnnounceURL)
	}
}

// parseCompactPeers reads the 6-byte IPv4 address and port records trackers
// return in compact mode.
func parseCompactPeers(b []byte) ([]models.Peer, error) {
	if len(b)%6 != 0 {
		return nil, errors.Wrapf(ErrInvalidPeers, "got %d bytes", len(b))
	}
	peers := make([]models.Peer, 0, len(b)/6)
	for i := 0; i < len(b); i += 6 {
		addr := models.Addr{
			IP:   net.IPv4(b[i], b[i+1], b[i+2], b[i+3]),
			Port: uint16(b[i+4])<<8 | uint16(b[i+5]),
		}
		if addr.Port == 0 || addr.IP.IsUnspecified() {
			continue
		}
		peers = append(peers, models.Peer{Addr: addr})
	}
	return peers, nil
}
