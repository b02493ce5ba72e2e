package torrentfile

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func buildMetainfo(announce, name string, length, pieceLength int, pieces string) []byte {
	info := fmt.Sprintf("d6:lengthi%de4:name%d:%s12:piece lengthi%de6:pieces%d:%se",
		length, len(name), name, pieceLength, len(pieces), pieces)
	return []byte(fmt.Sprintf("d8:announce%d:%s4:info%se", len(announce), announce, info))
}

func Test_TorrentFromBytes(t *testing.T) {
	pieces := strings.Repeat("a", 20) + strings.Repeat("b", 20)
	data := buildMetainfo("http://tracker.example/announce", "blob.bin", 300000, 262144, pieces)

	torrent, err := TorrentFromBytes(data)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if torrent.Announce != "http://tracker.example/announce" {
		t.Errorf("Unexpected announce: %s", torrent.Announce)
	}
	if torrent.Length != 300000 {
		t.Errorf("Expected length 300000, got %d", torrent.Length)
	}
	if torrent.PieceLength != 262144 {
		t.Errorf("Expected piece length 262144, got %d", torrent.PieceLength)
	}
	if torrent.Name != "blob.bin" {
		t.Errorf("Unexpected name: %s", torrent.Name)
	}
	if torrent.NumPieces() != 2 {
		t.Fatalf("Expected 2 pieces, got %d", torrent.NumPieces())
	}
	if string(torrent.PieceHashes[0][:]) != strings.Repeat("a", 20) {
		t.Errorf("Unexpected first piece hash: %v", torrent.PieceHashes[0])
	}

	info := fmt.Sprintf("d6:lengthi300000e4:name8:blob.bin12:piece lengthi262144e6:pieces40:%se", pieces)
	expected := sha1.Sum([]byte(info))
	if torrent.InfoHash != expected {
		t.Errorf("Expected info hash %x, got %x", expected, torrent.InfoHash)
	}
}

func Test_TorrentFromFile(t *testing.T) {
	data := buildMetainfo("http://tracker.example/announce", "f", 100, 100, strings.Repeat("h", 20))
	path := filepath.Join(t.TempDir(), "test.torrent")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	torrent, err := TorrentFromFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if torrent.Length != 100 {
		t.Errorf("Expected length 100, got %d", torrent.Length)
	}
}

func Test_pieceSizes(t *testing.T) {
	torrent := Torrent{
		PieceHashes: make([][20]byte, 3),
		PieceLength: 10,
		Length:      25,
	}

	if size := torrent.PieceSize(0); size != 10 {
		t.Errorf("Expected piece 0 size 10, got %d", size)
	}
	if size := torrent.PieceSize(2); size != 5 {
		t.Errorf("Expected last piece size 5, got %d", size)
	}
	begin, end := torrent.BoundsForPiece(2)
	if begin != 20 || end != 25 {
		t.Errorf("Expected bounds [20, 25), got [%d, %d)", begin, end)
	}
}

func Test_corruptedPieces(t *testing.T) {
	data := buildMetainfo("http://tracker.example/announce", "f", 100, 100, strings.Repeat("h", 30))

	if _, err := TorrentFromBytes(data); !errors.Is(err, ErrBadLength) {
		t.Errorf("Expected ErrBadLength, got %v", err)
	}
}

func Test_missingFields(t *testing.T) {
	pieces := strings.Repeat("h", 20)

	noAnnounce := fmt.Sprintf("d4:infod6:lengthi100e4:name1:f12:piece lengthi100e6:pieces20:%see", pieces)
	if _, err := TorrentFromBytes([]byte(noAnnounce)); !errors.Is(err, ErrMissingField) {
		t.Errorf("Expected ErrMissingField for announce, got %v", err)
	}

	noInfo := "d8:announce3:urle"
	if _, err := TorrentFromBytes([]byte(noInfo)); !errors.Is(err, ErrMissingField) {
		t.Errorf("Expected ErrMissingField for info, got %v", err)
	}

	noLength := fmt.Sprintf("d8:announce3:url4:infod4:name1:f12:piece lengthi100e6:pieces20:%see", pieces)
	if _, err := TorrentFromBytes([]byte(noLength)); !errors.Is(err, ErrMissingField) {
		t.Errorf("Expected ErrMissingField for length, got %v", err)
	}
}
