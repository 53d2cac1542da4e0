package tracker

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jackpal/bencode-go"
	"github.com/pkg/errors"

	"github.com/WendelHime/peerwire/internal/shared/models"
)

type HTTPGetter struct {
	client *http.Client
	self   Announce
}

func NewHTTPGetter(client *http.Client, self Announce) PeersGetter {
	return &HTTPGetter{client: client, self: self}
}

type peersResponse struct {
	FailureReason string `bencode:"failure reason"`
	Interval      int    `bencode:"interval"`
	Peers         string `bencode:"peers"`
}

func (h *HTTPGetter) GetPeers(ctx context.Context, announce string, metafile models.Metafile) ([]models.Peer, error) {
	tracker, err := url.Parse(announce)
	if err != nil {
		return nil, errors.Wrap(err, "parse announce url")
	}

	query := tracker.Query()
	query.Add("info_hash", string(metafile.InfoHash[:]))
	query.Add("peer_id", string(h.self.PeerID[:]))
	query.Add("port", strconv.Itoa(int(h.self.Port)))
	query.Add("uploaded", "0")
	query.Add("downloaded", "0")
	query.Add("left", strconv.Itoa(left(metafile)))
	query.Add("compact", "1")
	query.Add("event", "started")
	tracker.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tracker.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build announce request")
	}
	response, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "announce")
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrInvalidResponse, "http status %s", response.Status)
	}

	return decodeHTTPResponse(response.Body)
}

func decodeHTTPResponse(response io.Reader) ([]models.Peer, error) {
	resp := peersResponse{}
	if err := bencode.Unmarshal(response, &resp); err != nil {
		return nil, errors.Wrap(ErrInvalidResponse, err.Error())
	}
	if resp.FailureReason != "" {
		return nil, errors.Wrap(ErrInvalidResponse, resp.FailureReason)
	}
	return parseCompactPeers([]byte(resp.Peers))
}

func left(metafile models.Metafile) int {
	if metafile.Info.Length > 0 {
		return metafile.Info.Length
	}
	total := 0
	for _, f := range metafile.Info.Files {
		total += f.Length
	}
	return total
}
