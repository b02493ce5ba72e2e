package torrentp2p

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	CHOKE = iota
	UNCHOKE
	INTERESTED
	NOT_INTERESTED
	HAVE
	BITFIELD
	REQUEST
	PIECE
	CANCEL
)

// A frame bigger than a block plus headers is not something this client
// ever requests; treat it as a framing error instead of allocating it.
const maxMessageLength = maxBlockSize + 1024

// Message is a framed peer message. A nil *Message stands for keep-alive.
type Message struct {
	ID      byte
	Payload []byte
}

// Serialize frames the message with its big-endian length prefix.
func (m *Message) Serialize() []byte {
	if m == nil {
		return []byte{0, 0, 0, 0}
	}

	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = m.ID
	copy(buf[5:], m.Payload)
	return buf
}

// ReadMessage reads one frame. TCP does not preserve message boundaries,
// so both the length prefix and the body are read to completion. Returns
// (nil, nil) on keep-alive.
func ReadMessage(r io.Reader) (*Message, error) {
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lengthBuf)
	if length == 0 {
		return nil, nil
	}
	if length > maxMessageLength {
		return nil, errors.Errorf("frame of %d bytes exceeds limit", length)
	}

	messageBuf := make([]byte, length)
	if _, err := io.ReadFull(r, messageBuf); err != nil {
		return nil, err
	}

	return &Message{
		ID:      messageBuf[0],
		Payload: messageBuf[1:],
	}, nil
}

// FormatRequest builds a request message for one block.
func FormatRequest(index, begin, length uint32) *Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)
	binary.BigEndian.PutUint32(payload[8:12], length)
	return &Message{ID: REQUEST, Payload: payload}
}

// FormatHave builds a have message for one piece.
func FormatHave(index uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, index)
	return &Message{ID: HAVE, Payload: payload}
}

// ParsePiece pulls index, begin and block out of a piece message.
func ParsePiece(m *Message) (index, begin uint32, block []byte, err error) {
	if m.ID != PIECE {
		return 0, 0, nil, errors.Errorf("expected PIECE (%d), got id %d", PIECE, m.ID)
	}
	if len(m.Payload) < 8 {
		return 0, 0, nil, errors.Errorf("piece payload of %d bytes is incomplete", len(m.Payload))
	}

	index = binary.BigEndian.Uint32(m.Payload[0:4])
	begin = binary.BigEndian.Uint32(m.Payload[4:8])
	block = m.Payload[8:]
	return index, begin, block, nil
}

// ParseHave pulls the piece index out of a have message.
func ParseHave(m *Message) (uint32, error) {
	if m.ID != HAVE {
		return 0, errors.Errorf("expected HAVE (%d), got id %d", HAVE, m.ID)
	}
	if len(m.Payload) != 4 {
		return 0, errors.Errorf("have payload of %d bytes is incomplete", len(m.Payload))
	}
	return binary.BigEndian.Uint32(m.Payload), nil
}

// Bitfield is a packed piece bitmap, bit i of byte i/8, MSB first.
type Bitfield []byte

func (bf Bitfield) HasPiece(index int) bool {
	byteIndex := index / 8
	offset := index % 8
	if byteIndex < 0 || byteIndex >= len(bf) {
		return false
	}
	return bf[byteIndex]>>(7-offset)&1 != 0
}

func (bf Bitfield) SetPiece(index int) {
	byteIndex := index / 8
	offset := index % 8
	if byteIndex < 0 || byteIndex >= len(bf) {
		return
	}
	bf[byteIndex] |= 1 << (7 - offset)
}
