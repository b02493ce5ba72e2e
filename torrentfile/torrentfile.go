package torrentfile

import (
	"bytes"
	"crypto/sha1"
	"os"

	bencodego "github.com/jackpal/bencode-go"
	"github.com/pkg/errors"

	"github.com/vaguilera/gotorrent/bencode"
)

var (
	ErrMissingField = errors.New("torrentfile: missing field")
	ErrBadType      = errors.New("torrentfile: field has wrong type")
	ErrBadLength    = errors.New("torrentfile: pieces length is not a multiple of 20")
)

func (tf *torrentFile) pieceHashes() ([][20]byte, error) {
	buffer := []byte(tf.Info.Pieces)
	lenbuffer := len(buffer)

	if lenbuffer%20 != 0 {
		return nil, errors.Wrapf(ErrBadLength, "got %d bytes", lenbuffer)
	}

	hashes := make([][20]byte, lenbuffer/20)
	for i := 0; i < len(hashes); i++ {
		copy(hashes[i][:], buffer[i*20:(i+1)*20])
	}
	return hashes, nil
}

// infoHash computes the SHA-1 of the raw bencoded "info" dictionary. The
// span comes straight from the source bytes, so the digest matches what
// peers advertise even for keys the struct mapping does not cover.
func infoHash(data []byte) ([20]byte, error) {
	decoded, err := bencode.Decode(data)
	if err != nil {
		return [20]byte{}, errors.Wrap(err, "parsing metainfo")
	}
	if decoded.Kind != bencode.KindDict {
		return [20]byte{}, errors.Wrap(ErrBadType, "top-level value is not a dictionary")
	}

	info, ok := decoded.Lookup("info")
	if !ok {
		return [20]byte{}, errors.Wrap(ErrMissingField, "info")
	}
	if info.Kind != bencode.KindDict {
		return [20]byte{}, errors.Wrap(ErrBadType, "info is not a dictionary")
	}

	return sha1.Sum(info.Raw), nil
}

func newTorrent(tf *torrentFile, hash [20]byte) (*Torrent, error) {
	if tf.Announce == "" {
		return nil, errors.Wrap(ErrMissingField, "announce")
	}
	if tf.Info.Length == 0 {
		return nil, errors.Wrap(ErrMissingField, "info.length")
	}
	if tf.Info.PieceLength <= 0 {
		return nil, errors.Wrap(ErrMissingField, "info.piece length")
	}
	if len(tf.Info.Pieces) == 0 {
		return nil, errors.Wrap(ErrMissingField, "info.pieces")
	}

	hashes, err := tf.pieceHashes()
	if err != nil {
		return nil, err
	}

	return &Torrent{
		Announce:    tf.Announce,
		InfoHash:    hash,
		PieceHashes: hashes,
		PieceLength: tf.Info.PieceLength,
		Length:      tf.Info.Length,
		Name:        tf.Info.Name,
	}, nil
}

// TorrentFromFile creates a Torrent entity from a .torrent file
func TorrentFromFile(fileName string) (*Torrent, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}
	return TorrentFromBytes(data)
}

// TorrentFromBytes creates a Torrent entity from raw metainfo bytes
func TorrentFromBytes(data []byte) (*Torrent, error) {
	hash, err := infoHash(data)
	if err != nil {
		return nil, err
	}

	tfile := torrentFile{}
	if err := bencodego.Unmarshal(bytes.NewReader(data), &tfile); err != nil {
		return nil, errors.Wrap(err, "couldn't parse torrent file")
	}

	return newTorrent(&tfile, hash)
}
