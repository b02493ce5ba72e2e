package torrentp2p

import (
	"crypto/sha1"
	"net"
	"testing"

	"github.com/vaguilera/gotorrent/torrentfile"
	"github.com/vaguilera/gotorrent/tracker"
)

// fixturePeer is a minimal in-test seeder: it accepts connections,
// answers the handshake, advertises every piece and serves blocks out
// of a content buffer.
type fixturePeer struct {
	torrent *torrentfile.Torrent
	content []byte

	// serve a corrupted first block on every connection
	corrupt bool
	// answer the first request of the first connection with choke,
	// then unchoke, to exercise piece rescheduling
	chokeOnce bool
}

// fixtureTorrent builds a torrent over content cut into pieceLength
// pieces; the last piece holds the remainder, so it is short when
// pieceLength does not divide len(content).
func fixtureTorrent(content []byte, pieceLength int) *torrentfile.Torrent {
	var hashes [][20]byte
	for begin := 0; begin < len(content); begin += pieceLength {
		end := begin + pieceLength
		if end > len(content) {
			end = len(content)
		}
		hashes = append(hashes, sha1.Sum(content[begin:end]))
	}

	return &torrentfile.Torrent{
		Announce:    "http://tracker.invalid/announce",
		InfoHash:    [20]byte{0xde, 0xad, 0xbe, 0xef},
		PieceHashes: hashes,
		PieceLength: pieceLength,
		Length:      uint64(len(content)),
		Name:        "fixture.bin",
	}
}

func fixtureContent(size int) []byte {
	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i * 31)
	}
	return content
}

// start listens on a loopback port and serves connections until the
// test ends. Returns the peer address to dial.
func (fp *fixturePeer) start(t *testing.T) tracker.Peer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fixture listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	choke := fp.chokeOnce
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			chokeThis := choke
			choke = false
			go fp.serveConn(conn, chokeThis)
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	return tracker.Peer{IP: addr.IP, Port: uint16(addr.Port)}
}

func (fp *fixturePeer) serveConn(conn net.Conn, chokeFirst bool) {
	defer conn.Close()

	request, err := ReadHandshake(conn)
	if err != nil {
		return
	}

	var fixtureID [20]byte
	copy(fixtureID[:], "fixturepeer-00000000")
	reply := Handshake{InfoHash: request.InfoHash, PeerID: fixtureID}
	if _, err := conn.Write(reply.Serialize()); err != nil {
		return
	}

	bf := make(Bitfield, (fp.torrent.NumPieces()+7)/8)
	for i := 0; i < fp.torrent.NumPieces(); i++ {
		bf.SetPiece(i)
	}
	if _, err := conn.Write((&Message{ID: BITFIELD, Payload: bf}).Serialize()); err != nil {
		return
	}

	corruptNext := fp.corrupt
	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			return
		}
		if msg == nil {
			continue
		}

		switch msg.ID {
		case INTERESTED:
			if _, err := conn.Write((&Message{ID: UNCHOKE}).Serialize()); err != nil {
				return
			}
		case REQUEST:
			if chokeFirst {
				chokeFirst = false
				conn.Write((&Message{ID: CHOKE}).Serialize())
				conn.Write((&Message{ID: UNCHOKE}).Serialize())
				continue
			}
			if !fp.serveBlock(conn, msg, &corruptNext) {
				return
			}
		}
	}
}

func (fp *fixturePeer) serveBlock(conn net.Conn, request *Message, corruptNext *bool) bool {
	if len(request.Payload) != 12 {
		return false
	}
	index := beUint32(request.Payload[0:4])
	begin := beUint32(request.Payload[4:8])
	length := beUint32(request.Payload[8:12])

	pieceBegin, pieceEnd := fp.torrent.BoundsForPiece(int(index))
	start := pieceBegin + int(begin)
	end := start + int(length)
	if end > pieceEnd {
		return false
	}

	block := make([]byte, length)
	copy(block, fp.content[start:end])
	if *corruptNext {
		*corruptNext = false
		block[0] ^= 0xff
	}

	payload := make([]byte, 8+len(block))
	copy(payload[0:4], request.Payload[0:4])
	copy(payload[4:8], request.Payload[4:8])
	copy(payload[8:], block)

	_, err := conn.Write((&Message{ID: PIECE, Payload: payload}).Serialize())
	return err == nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func dummyPeer() tracker.Peer {
	return tracker.Peer{IP: net.IPv4(127, 0, 0, 1), Port: 1}
}
