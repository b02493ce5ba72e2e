package torrentp2p

import (
	"bytes"
	"testing"
)

func Test_handshakeRoundTrip(t *testing.T) {
	infoHash := [20]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	var peerID [20]byte
	copy(peerID[:], "PeerIDPeerIDPeerIDPe")

	h := Handshake{InfoHash: infoHash, PeerID: peerID}
	serialized := h.Serialize()
	if len(serialized) != 68 {
		t.Fatalf("Expected 68 bytes, got %d", len(serialized))
	}

	parsed, err := ReadHandshake(bytes.NewReader(serialized))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if *parsed != h {
		t.Errorf("Expected %v, got %v", h, *parsed)
	}
}

func Test_readHandshakeWire(t *testing.T) {
	infoHash := [20]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	data := []byte{19}
	data = append(data, "BitTorrent protocol"...)
	data = append(data, make([]byte, 8)...)
	data = append(data, infoHash[:]...)
	data = append(data, "PeerIDPeerIDPeerIDPe"...)

	parsed, err := ReadHandshake(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if parsed.InfoHash != infoHash {
		t.Errorf("Expected %v, got %v", infoHash, parsed.InfoHash)
	}
	if string(parsed.PeerID[:]) != "PeerIDPeerIDPeerIDPe" {
		t.Errorf("Expected 'PeerIDPeerIDPeerIDPe', got %s", parsed.PeerID)
	}
	if !bytes.Equal(parsed.Serialize(), data) {
		t.Error("Re-serialized handshake differs from wire bytes")
	}
}

func Test_readHandshakeRejectsBadProtocol(t *testing.T) {
	data := []byte{10}
	data = append(data, make([]byte, 67)...)

	if _, err := ReadHandshake(bytes.NewReader(data)); err == nil {
		t.Error("Expected error for bad protocol length")
	}

	data = []byte{19}
	data = append(data, "BitTorrent PROTOCOL"...)
	data = append(data, make([]byte, 48)...)

	if _, err := ReadHandshake(bytes.NewReader(data)); err == nil {
		t.Error("Expected error for bad protocol string")
	}
}

func Test_readHandshakeTruncated(t *testing.T) {
	h := Handshake{}
	if _, err := ReadHandshake(bytes.NewReader(h.Serialize()[:40])); err == nil {
		t.Error("Expected error for truncated handshake")
	}
}
