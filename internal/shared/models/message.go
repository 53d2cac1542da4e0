package models

import "fmt"

type MessageID uint8

const (
	MessageIDChoke MessageID = iota
	MessageIDUnchoke
	MessageIDInterested
	MessageIDNotInterested
	MessageIDHave
	MessageIDBitfield
	MessageIDRequest
	MessageIDPiece
	MessageIDCancel
	MessageIDPort
)

var messageIDNames = [...]string{
	MessageIDChoke:         "choke",
	MessageIDUnchoke:       "unchoke",
	MessageIDInterested:    "interested",
	MessageIDNotInterested: "not_interested",
	MessageIDHave:          "have",
	MessageIDBitfield:      "bitfield",
	MessageIDRequest:       "request",
	MessageIDPiece:         "piece",
	MessageIDCancel:        "cancel",
	MessageIDPort:          "port",
}

func (id MessageID) String() string {
	if int(id) < len(messageIDNames) {
		return messageIDNames[id]
	}
	return fmt.Sprintf("unknown(%d)", uint8(id))
}

// Message is one unit of the peer wire protocol. The set of implementations is
// closed: only the types in this file satisfy it.
type Message interface {
	fmt.Stringer
	isMessage()
}

// Typed is a message carried in a length-prefixed frame with a type byte.
type Typed interface {
	Message
	ID() MessageID
}

type Handshake struct {
	Reserved [8]byte
	InfoHash InfoHash
	PeerID   PeerID
}

type KeepAlive struct{}

type Choke struct{}

type Unchoke struct{}

type Interested struct{}

type NotInterested struct{}

type Have struct {
	PieceIndex uint32
}

type Bitfield struct {
	Bits Bitset
}

type Request struct {
	PieceIndex uint32
	Offset     uint32
	Length     uint32
}

type Piece struct {
	PieceIndex uint32
	Offset     uint32
	Block      []byte
}

type Cancel struct {
	PieceIndex uint32
	Offset     uint32
	Length     uint32
}

// Port advertises the DHT listen port of the sender.
type Port struct {
	Port uint16
}

func (Handshake) isMessage()     {}
func (KeepAlive) isMessage()     {}
func (Choke) isMessage()         {}
func (Unchoke) isMessage()       {}
func (Interested) isMessage()    {}
func (NotInterested) isMessage() {}
func (Have) isMessage()          {}
func (Bitfield) isMessage()      {}
func (Request) isMessage()       {}
func (Piece) isMessage()         {}
func (Cancel) isMessage()        {}
func (Port) isMessage()          {}

func (Choke) ID() MessageID         { return MessageIDChoke }
func (Unchoke) ID() MessageID       { return MessageIDUnchoke }
func (Interested) ID() MessageID    { return MessageIDInterested }
func (NotInterested) ID() MessageID { return MessageIDNotInterested }
func (Have) ID() MessageID          { return MessageIDHave }
func (Bitfield) ID() MessageID      { return MessageIDBitfield }
func (Request) ID() MessageID       { return MessageIDRequest }
func (Piece) ID() MessageID         { return MessageIDPiece }
func (Cancel) ID() MessageID        { return MessageIDCancel }
func (Port) ID() MessageID          { return MessageIDPort }

func (h Handshake) String() string {
	return fmt.Sprintf("handshake{info_hash=%s peer_id=%s}", h.InfoHash, h.PeerID)
}

func (KeepAlive) String() string     { return "keep_alive" }
func (Choke) String() string         { return "choke" }
func (Unchoke) String() string       { return "unchoke" }
func (Interested) String() string    { return "interested" }
func (NotInterested) String() string { return "not_interested" }

func (m Have) String() string {
	return fmt.Sprintf("have{piece=%d}", m.PieceIndex)
}

func (m Bitfield) String() string {
	return fmt.Sprintf("bitfield{pieces=%d have=%d}", m.Bits.Len(), m.Bits.Count())
}

func (m Request) String() string {
	return fmt.Sprintf("request{piece=%d offset=%d length=%d}", m.PieceIndex, m.Offset, m.Length)
}

func (m Piece) String() string {
	return fmt.Sprintf("piece{piece=%d offset=%d length=%d}", m.PieceIndex, m.Offset, len(m.Block))
}

func (m Cancel) String() string {
	return fmt.Sprintf("cancel{piece=%d offset=%d length=%d}", m.PieceIndex, m.Offset, m.Length)
}

func (m Port) String() string {
	return fmt.Sprintf("port{%d}", m.Port)
}
