package tracker

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/jackpal/bencode-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WendelHime/peerwire/internal/shared/models"
)

type RoundTripFunc func(req *http.Request) *http.Response

func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func NewTestClient(fn RoundTripFunc) *http.Client {
	return &http.Client{
		Transport: RoundTripFunc(fn),
	}
}

func testAnnounce() Announce {
	self := Announce{Port: 6881}
	copy(self.PeerID[:], "-PW0100-abcdefghijkl")
	return self
}

func testMetafile() models.Metafile {
	m := models.Metafile{Info: models.Info{Length: 100, PiecesHashes: make([][20]byte, 1)}}
	copy(m.InfoHash[:], "01234567891012345678")
	return m
}

func compactPeer(ip net.IP, port uint16) []byte {
	b := append([]byte(nil), ip.To4()...)
	return binary.BigEndian.AppendUint16(b, port)
}

func bencoded(t *testing.T, v interface{}) io.ReadCloser {
	t.Helper()
	resp := bytes.NewBuffer([]byte{})
	require.NoError(t, bencode.Marshal(resp, v))
	return io.NopCloser(resp)
}

func TestGetPeers(t *testing.T) {
	var tests = []struct {
		name   string
		setup  func(t *testing.T) (Tracker, models.Metafile)
		assert func(t *testing.T, actual []models.Peer, err error)
	}{
		{
			name: "get peers with success",
			setup: func(t *testing.T) (Tracker, models.Metafile) {
				tracker := NewTracker("http://tracker.example.com", testAnnounce()).WithHTTPClient(NewTestClient(func(req *http.Request) *http.Response {
					assert.Equal(t, "http://tracker.example.com?compact=1&downloaded=0&event=started&info_hash=01234567891012345678&left=100&peer_id=-PW0100-abcdefghijkl&port=6881&uploaded=0", req.URL.String())
					peers := compactPeer(net.IPv4(192, 168, 100, 100), 6889)
					peers = append(peers, compactPeer(net.IPv4(0, 0, 0, 0), 6889)...)
					return &http.Response{
						StatusCode: http.StatusOK,
						Body:       bencoded(t, peersResponse{Interval: 60, Peers: string(peers)}),
					}
				}))
				return tracker, testMetafile()
			},
			assert: func(t *testing.T, actual []models.Peer, err error) {
				assert.Nil(t, err)
				require.Len(t, actual, 1)
				assert.True(t, net.IPv4(192, 168, 100, 100).Equal(actual[0].Addr.IP))
				assert.Equal(t, 6889, int(actual[0].Addr.Port))
			},
		},
		{
			name: "tracker failure reason",
			setup: func(t *testing.T) (Tracker, models.Metafile) {
				tracker := NewTracker("http://tracker.example.com", testAnnounce()).WithHTTPClient(NewTestClient(func(req *http.Request) *http.Response {
					return &http.Response{
						StatusCode: http.StatusOK,
						Body:       bencoded(t, peersResponse{FailureReason: "unregistered torrent"}),
					}
				}))
				return tracker, testMetafile()
			},
			assert: func(t *testing.T, actual []models.Peer, err error) {
				assert.ErrorIs(t, err, ErrInvalidResponse)
				assert.Contains(t, err.Error(), "unregistered torrent")
			},
		},
		{
			name: "http error status",
			setup: func(t *testing.T) (Tracker, models.Metafile) {
				tracker := NewTracker("http://tracker.example.com", testAnnounce()).WithHTTPClient(NewTestClient(func(req *http.Request) *http.Response {
					return &http.Response{
						StatusCode: http.StatusBadGateway,
						Status:     "502 Bad Gateway",
						Body:       io.NopCloser(bytes.NewReader(nil)),
					}
				}))
				return tracker, testMetafile()
			},
			assert: func(t *testing.T, actual []models.Peer, err error) {
				assert.ErrorIs(t, err, ErrInvalidResponse)
			},
		},
		{
			name: "truncated compact peers",
			setup: func(t *testing.T) (Tracker, models.Metafile) {
				tracker := NewTracker("http://tracker.example.com", testAnnounce()).WithHTTPClient(NewTestClient(func(req *http.Request) *http.Response {
					return &http.Response{
						StatusCode: http.StatusOK,
						Body:       bencoded(t, peersResponse{Interval: 60, Peers: "12345"}),
					}
				}))
				return tracker, testMetafile()
			},
			assert: func(t *testing.T, actual []models.Peer, err error) {
				assert.ErrorIs(t, err, ErrInvalidPeers)
			},
		},
		{
			name: "unsupported protocol",
			setup: func(t *testing.T) (Tracker, models.Metafile) {
				return NewTracker("wss://tracker.example.com", testAnnounce()), testMetafile()
			},
			assert: func(t *testing.T, actual []models.Peer, err error) {
				assert.ErrorIs(t, err, ErrUnsupportedProtocol)
			},
		},
		{
			name: "udp tracker",
			setup: func(t *testing.T) (Tracker, models.Metafile) {
				addr := fakeUDPTracker(t, testMetafile().InfoHash, compactPeer(net.IPv4(10, 0, 0, 7), 51413))
				return NewTracker("udp://"+addr+"/announce", testAnnounce()), testMetafile()
			},
			assert: func(t *testing.T, actual []models.Peer, err error) {
				require.NoError(t, err)
				require.Len(t, actual, 1)
				assert.Equal(t, "10.0.0.7:51413", actual[0].Addr.String())
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tracker, metafile := tt.setup(t)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			actual, err := tracker.GetPeers(ctx, metafile)
			tt.assert(t, actual, err)
		})
	}
}

// fakeUDPTracker answers one connect and one announce request.
func fakeUDPTracker(t *testing.T, infoHash models.InfoHash, peers []byte) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { pc.Close() })

	const connectionID = 0x1122334455667788
	go func() {
		buf := make([]byte, 1024)

		n, from, err := pc.ReadFrom(buf)
		if err != nil || n != 16 || binary.BigEndian.Uint64(buf[0:8]) != udpProtocolID {
			return
		}
		tx := binary.BigEndian.Uint32(buf[12:16])
		resp := make([]byte, 16)
		binary.BigEndian.PutUint32(resp[0:4], udpActionConnect)
		binary.BigEndian.PutUint32(resp[4:8], tx)
		binary.BigEndian.PutUint64(resp[8:16], connectionID)
		if _, err := pc.WriteTo(resp, from); err != nil {
			return
		}

		n, from, err = pc.ReadFrom(buf)
		if err != nil || n != udpAnnounceSize || binary.BigEndian.Uint64(buf[0:8]) != connectionID {
			return
		}
		if !bytes.Equal(buf[16:36], infoHash[:]) {
			return
		}
		tx = binary.BigEndian.Uint32(buf[12:16])
		resp = make([]byte, 20, 20+len(peers))
		binary.BigEndian.PutUint32(resp[0:4], udpActionAnnounce)
		binary.BigEndian.PutUint32(resp[4:8], tx)
		binary.BigEndian.PutUint32(resp[8:12], 1800)
		resp = append(resp, peers...)
		_, _ = pc.WriteTo(resp, from)
	}()

	return pc.LocalAddr().String()
}
