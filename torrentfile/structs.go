package torrentfile

type torrentFileInfo struct {
	Pieces      string `bencode:"pieces"`
	PieceLength int    `bencode:"piece length"`
	Length      uint64 `bencode:"length"`
	Name        string `bencode:"name"`
}

type torrentFile struct {
	Announce string `bencode:"announce"`
	Info     torrentFileInfo
}

// Torrent Represents a single-file torrent entity
type Torrent struct {
	Announce    string
	InfoHash    [20]byte
	PieceHashes [][20]byte
	PieceLength int
	Length      uint64
	Name        string
}

// NumPieces returns the piece count advertised by the metainfo.
func (t *Torrent) NumPieces() int {
	return len(t.PieceHashes)
}

// PieceSize returns the payload length of a piece. Every piece is
// PieceLength bytes except the last, which holds the remainder.
func (t *Torrent) PieceSize(index int) int {
	begin, end := t.BoundsForPiece(index)
	return end - begin
}

// BoundsForPiece returns the [begin, end) byte range of a piece within
// the payload.
func (t *Torrent) BoundsForPiece(index int) (begin int, end int) {
	begin = index * t.PieceLength
	end = begin + t.PieceLength
	if uint64(end) > t.Length {
		end = int(t.Length)
	}
	return begin, end
}
