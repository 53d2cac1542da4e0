package models

import (
	"encoding/hex"
	"errors"
	"math/rand"
	"strconv"
	"time"
)

const peerIDPrefix = "-PW0100-"

var ErrInvalidInfoHash = errors.New("invalid info hash")

// PeerID identifies a remote endpoint. It is only used for bookkeeping.
type PeerID [20]byte

// NewPeerID returns an Azureus-style id: the client prefix followed by random
// alphanumerics.
func NewPeerID() PeerID {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	var id PeerID
	copy(id[:], peerIDPrefix)
	for i := len(peerIDPrefix); i < len(id); i++ {
		id[i] = charset[r.Intn(len(charset))]
	}
	return id
}

func (id PeerID) String() string {
	for _, b := range id {
		if b < 0x20 || b > 0x7e {
			return hex.EncodeToString(id[:])
		}
	}
	return strconv.Quote(string(id[:]))
}

// InfoHash identifies the swarm a connection serves.
type InfoHash [20]byte

func ParseInfoHash(s string) (InfoHash, error) {
	var h InfoHash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return h, ErrInvalidInfoHash
	}
	copy(h[:], b)
	return h, nil
}

func (h InfoHash) String() string {
	return hex.EncodeToString(h[:])
}

func (h InfoHash) IsZero() bool {
	return h == InfoHash{}
}

type Peer struct {
	Addr Addr
	ID   PeerID
}
