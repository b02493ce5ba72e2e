package torrentp2p

import (
	"io"

	"github.com/pkg/errors"
)

const protocolID = "BitTorrent protocol"

const handshakeLength = 68

// Handshake is the fixed 68-byte frame both ends exchange before any
// peer message.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

func (h *Handshake) Serialize() []byte {
	buf := make([]byte, 0, handshakeLength)
	buf = append(buf, byte(len(protocolID)))
	buf = append(buf, protocolID...)
	buf = append(buf, make([]byte, 8)...) // reserved
	buf = append(buf, h.InfoHash[:]...)
	buf = append(buf, h.PeerID[:]...)
	return buf
}

// ReadHandshake reads and validates a peer's handshake frame.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	buffer := make([]byte, handshakeLength)
	if _, err := io.ReadFull(r, buffer); err != nil {
		return nil, errors.Wrap(err, "reading handshake")
	}

	if buffer[0] != byte(len(protocolID)) {
		return nil, errors.Errorf("bad handshake: protocol length %d", buffer[0])
	}
	if string(buffer[1:20]) != protocolID {
		return nil, errors.Errorf("bad handshake: protocol %q", buffer[1:20])
	}

	response := Handshake{}
	copy(response.InfoHash[:], buffer[28:48])
	copy(response.PeerID[:], buffer[48:68])

	return &response, nil
}
