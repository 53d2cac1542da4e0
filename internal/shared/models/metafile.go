package models

type Metafile struct {
	Announce     string     `bencode:"announce"`
	AnnounceList [][]string `bencode:"announce-list"`
	Info         Info       `bencode:"info"`
	InfoHash     InfoHash   `bencode:"-"`
}

type Info struct {
	Name         string     `bencode:"name"`
	Length       int        `bencode:"length"`
	PieceLength  int        `bencode:"piece length"`
	Pieces       string     `bencode:"pieces"`
	PiecesHashes [][20]byte `bencode:"-"`
	Files        []File     `bencode:"files,omitempty"`
}

type File struct {
	Length int      `bencode:"length"`
	Path   []string `bencode:"path"`
}

// PieceCount is the number of pieces a bitfield for this torrent covers.
func (m Metafile) PieceCount() int {
	return len(m.Info.PiecesHashes)
}
