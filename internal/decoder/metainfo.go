package decoder

import (
	"crypto/sha1"
	"io"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/zeebo/bencode"

	"github.com/WendelHime/peerwire/internal/shared/models"
)

var ErrInvalidPieces = errors.New("decoder: pieces is not a multiple of 20 bytes")

type MetafileDecoder interface {
	Decode(io.Reader) (models.Metafile, error)
}

type decoder struct{}

func NewDecoder() MetafileDecoder {
	return decoder{}
}

// serialization struct the represents the structure of a .torrent file
// it is not immediately usable, so it can be converted to a Metafile
type bencodeTorrent struct {
	// URL of tracker server to get peers from
	Announce     string     `bencode:"announce"`
	AnnounceList [][]string `bencode:"announce-list"`
	// Info is parsed as a RawMessage to ensure that the final info_hash is
	// correct even in the case of the info dictionary being an unexpected shape
	Info bencode.RawMessage `bencode:"info"`
}

func (decoder) Decode(torrent io.Reader) (models.Metafile, error) {
	var response models.Metafile
	var bt bencodeTorrent
	err := bencode.NewDecoder(torrent).Decode(&bt)
	if err != nil {
		slog.Error("failed to decode torrent", slog.Any("error", err))
		return response, errors.Wrap(err, "decode torrent")
	}
	if len(bt.Info) == 0 {
		return response, errors.New("decoder: torrent has no info dictionary")
	}

	response.Announce = bt.Announce
	response.AnnounceList = bt.AnnounceList
	response.InfoHash = calculateInfoHash(bt.Info)
	err = bencode.DecodeBytes(bt.Info, &response.Info)
	if err != nil {
		slog.Error("failed to decode torrent info", slog.Any("error", err))
		return response, errors.Wrap(err, "decode torrent info")
	}

	response.Info.PiecesHashes, err = calculatePiecesHashes(response.Info.Pieces)
	if err != nil {
		return response, err
	}

	if response.Info.Length > 0 {
		response.Info.Files = []models.File{{Length: response.Info.Length, Path: []string{response.Info.Name}}}
	}

	slog.Debug("torrent decoded",
		slog.String("name", response.Info.Name),
		slog.String("info_hash", response.InfoHash.String()),
		slog.Int("pieces", response.PieceCount()))
	return response, nil
}

func calculateInfoHash(info []byte) models.InfoHash {
	return sha1.Sum(info)
}

func calculatePiecesHashes(pieces string) ([][20]byte, error) {
	if len(pieces)%20 != 0 {
		return nil, errors.Wrapf(ErrInvalidPieces, "got %d bytes", len(pieces))
	}
	piecesHashes := make([][20]byte, len(pieces)/20)
	for i := range piecesHashes {
		copy(piecesHashes[i][:], pieces[i*20:])
	}
	return piecesHashes, nil
}
