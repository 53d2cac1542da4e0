package protocol

import (
	"github.com/WendelHime/peerwire/internal/shared/models"
	"github.com/pkg/errors"
)

const ProtocolName = "BitTorrent protocol"

// HandshakeSize is pstrlen + pstr + reserved + info_hash + peer_id.
const HandshakeSize = 49 + len(ProtocolName)

const (
	reservedOffset = 1 + len(ProtocolName)
	infoHashOffset = reservedOffset + 8
	peerIDOffset   = infoHashOffset + 20
)

// EncodeHandshake writes the handshake frame. A zero InfoHash or PeerID in h
// is replaced by the one in ctx.
func (c *Codec) EncodeHandshake(dst *Buffer, h models.Handshake, ctx Context) (bool, error) {
	if h.InfoHash.IsZero() {
		h.InfoHash = ctx.InfoHash
	}
	if h.PeerID == (models.PeerID{}) {
		h.PeerID = ctx.PeerID
	}
	if dst.Available() < HandshakeSize {
		return false, nil
	}
	p := dst.Free()[:HandshakeSize]
	p[0] = byte(len(ProtocolName))
	copy(p[1:reservedOffset], ProtocolName)
	copy(p[reservedOffset:infoHashOffset], h.Reserved[:])
	copy(p[infoHashOffset:peerIDOffset], h.InfoHash[:])
	copy(p[peerIDOffset:], h.PeerID[:])
	dst.Commit(HandshakeSize)
	return true, nil
}

// DecodeHandshake interprets the fixed-size handshake at the start of src. A
// wrong protocol-name length is reported as soon as the first byte is seen.
func (c *Codec) DecodeHandshake(src []byte) (models.Handshake, int, error) {
	var h models.Handshake
	if len(src) == 0 {
		return h, 0, ErrIncomplete
	}
	if int(src[0]) != len(ProtocolName) {
		return h, 0, errors.Wrapf(ErrProtocolName, "pstrlen %d", src[0])
	}
	if len(src) < HandshakeSize {
		return h, 0, ErrIncomplete
	}
	if string(src[1:reservedOffset]) != ProtocolName {
		return h, 0, errors.Wrapf(ErrProtocolName, "%q", src[1:reservedOffset])
	}
	copy(h.Reserved[:], src[reservedOffset:infoHashOffset])
	copy(h.InfoHash[:], src[infoHashOffset:peerIDOffset])
	copy(h.PeerID[:], src[peerIDOffset:HandshakeSize])
	return h, HandshakeSize, nil
}
