package torrentp2p

import (
	"crypto/sha1"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/vaguilera/gotorrent/torrentfile"
	"github.com/vaguilera/gotorrent/tracker"
)

var (
	errChoked       = errors.New("peer choked mid-piece")
	errHashMismatch = errors.New("piece hash mismatch")
)

// sessionFlags holds the four-bit choke/interest state of a connection.
type sessionFlags struct {
	amChoking      bool
	amInterested   bool
	peerChoking    bool
	peerInterested bool
}

type peerWorker struct {
	peer     tracker.Peer
	torrent  *torrentfile.Torrent
	peerID   [20]byte
	remoteID [20]byte
	conn     net.Conn
	state    peerState
	flags    sessionFlags
	bitfield Bitfield

	assign chan int
	events chan<- workerEvent
	quit   <-chan struct{}

	log zerolog.Logger
}

func newPeerWorker(
	log zerolog.Logger,
	torrent *torrentfile.Torrent,
	peer tracker.Peer,
	peerID [20]byte,
	assign chan int,
	events chan<- workerEvent,
	quit <-chan struct{},
) *peerWorker {
	return &peerWorker{
		peer:    peer,
		torrent: torrent,
		peerID:  peerID,
		state:   stateConnecting,
		flags:   sessionFlags{amChoking: true, peerChoking: true},
		assign:  assign,
		events:  events,
		quit:    quit,
		log:     log.With().Str("peer", peer.String()).Logger(),
	}
}

// emit hands an event to the scheduler. Returns false when the scheduler
// is gone and the worker should wind down.
func (w *peerWorker) emit(ev workerEvent) bool {
	ev.worker = w
	select {
	case w.events <- ev:
		return true
	case <-w.quit:
		return false
	}
}

func (w *peerWorker) fail(piece int, err error) {
	w.state = stateFailed
	w.emit(workerEvent{kind: eventWorkerFailed, piece: piece, err: err})
}

// run drives the worker through Connecting -> Handshaking ->
// PostHandshake -> Ready and then serves piece assignments until the
// scheduler shuts it down or the connection dies.
func (w *peerWorker) run() {
	if err := w.connect(); err != nil {
		w.log.Debug().Err(err).Msg("can't connect peer")
		w.fail(-1, err)
		return
	}
	defer w.conn.Close()

	if err := w.handshake(); err != nil {
		w.log.Debug().Err(err).Msg("handshake failed")
		w.fail(-1, err)
		return
	}
	w.log.Debug().Hex("id", w.remoteID[:]).Msg("handshake received from peer")

	if err := w.awaitUnchoke(); err != nil {
		w.log.Debug().Err(err).Msg("peer never unchoked")
		w.fail(-1, err)
		return
	}

	w.state = stateReady
	if !w.emit(workerEvent{kind: eventReady, piece: -1}) {
		return
	}

	for {
		select {
		case index, ok := <-w.assign:
			if !ok {
				return
			}
			if !w.serveAssignment(index) {
				return
			}
		case <-w.quit:
			return
		}
	}
}

// serveAssignment downloads one assigned piece and reports the outcome.
// Returns false once the worker must stop.
func (w *peerWorker) serveAssignment(index int) bool {
	w.state = stateDownloading
	data, err := w.downloadPiece(index)

	switch {
	case err == nil:
		w.log.Debug().Int("piece", index).Msg("piece complete, sha1 valid")
		w.state = stateReady
		if !w.emit(workerEvent{kind: eventPieceDone, piece: index, data: data}) {
			return false
		}

	case errors.Is(err, errChoked):
		w.log.Debug().Int("piece", index).Msg("choked, returning piece")
		if !w.emit(workerEvent{kind: eventPieceFailed, piece: index, err: err}) {
			return false
		}
		if err := w.awaitUnchoke(); err != nil {
			w.fail(-1, err)
			return false
		}
		w.state = stateReady

	case errors.Is(err, errHashMismatch):
		w.log.Warn().Int("piece", index).Msg("sha1 check failed, returning piece")
		w.state = stateReady
		if !w.emit(workerEvent{kind: eventPieceFailed, piece: index, err: err}) {
			return false
		}

	default:
		w.fail(index, err)
		return false
	}

	return w.emit(workerEvent{kind: eventReady, piece: -1})
}

func (w *peerWorker) connect() error {
	w.state = stateConnecting
	w.log.Debug().Msg("trying to connect")

	conn, err := net.DialTimeout("tcp", w.peer.String(), dialTimeout)
	if err != nil {
		return errors.Wrapf(err, "connecting to %s", w.peer)
	}
	w.conn = conn
	return nil
}

// handshake exchanges the 68-byte frames and verifies the peer serves the
// same torrent. A mismatched info hash is fatal to the session.
func (w *peerWorker) handshake() error {
	w.state = stateHandshaking
	w.conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer w.conn.SetDeadline(time.Time{})

	request := Handshake{InfoHash: w.torrent.InfoHash, PeerID: w.peerID}
	if _, err := w.conn.Write(request.Serialize()); err != nil {
		return errors.Wrap(err, "sending handshake")
	}

	response, err := ReadHandshake(w.conn)
	if err != nil {
		return err
	}
	if response.InfoHash != w.torrent.InfoHash {
		return errors.Errorf("info hash mismatch: expected %x, got %x",
			w.torrent.InfoHash, response.InfoHash)
	}

	w.remoteID = response.PeerID
	return nil
}

// awaitUnchoke consumes frames until the peer unchokes us. The first
// received frame triggers our single interested message; a peer may also
// send unchoke outright without a preceding bitfield.
func (w *peerWorker) awaitUnchoke() error {
	w.state = statePostHandshake

	for {
		w.conn.SetReadDeadline(time.Now().Add(controlReadTimeout))
		msg, err := ReadMessage(w.conn)
		if err != nil {
			return errors.Wrap(err, "waiting for unchoke")
		}

		if !w.flags.amInterested {
			if err := w.send(&Message{ID: INTERESTED}); err != nil {
				return errors.Wrap(err, "sending interested")
			}
			w.flags.amInterested = true
		}

		if msg == nil { // keep-alive
			continue
		}

		switch msg.ID {
		case BITFIELD:
			w.bitfield = Bitfield(msg.Payload)
		case HAVE:
			index, err := ParseHave(msg)
			if err != nil {
				return err
			}
			w.markHave(int(index))
		case CHOKE:
			w.flags.peerChoking = true
		case UNCHOKE:
			w.flags.peerChoking = false
			return nil
		case INTERESTED:
			w.flags.peerInterested = true
		case NOT_INTERESTED:
			w.flags.peerInterested = false
		default:
			w.log.Debug().Uint8("id", msg.ID).Msg("skipping frame before unchoke")
		}
	}
}

// downloadPiece requests the piece block by block, keeping up to
// maxBacklog requests in flight, and verifies the assembled bytes
// against the piece hash.
func (w *peerWorker) downloadPiece(index int) ([]byte, error) {
	pieceSize := w.torrent.PieceSize(index)
	buf := make([]byte, pieceSize)
	requested, received, backlog := 0, 0, 0

	for received < pieceSize {
		for !w.flags.peerChoking && backlog < maxBacklog && requested < pieceSize {
			blockSize := maxBlockSize
			if pieceSize-requested < blockSize {
				blockSize = pieceSize - requested
			}
			if err := w.send(FormatRequest(uint32(index), uint32(requested), uint32(blockSize))); err != nil {
				return nil, errors.Wrap(err, "requesting block")
			}
			requested += blockSize
			backlog++
		}

		w.conn.SetReadDeadline(time.Now().Add(blockReadTimeout))
		msg, err := ReadMessage(w.conn)
		if err != nil {
			return nil, errors.Wrap(err, "reading block")
		}
		if msg == nil { // keep-alive
			continue
		}

		switch msg.ID {
		case CHOKE:
			w.flags.peerChoking = true
			return nil, errChoked
		case UNCHOKE:
			w.flags.peerChoking = false
		case HAVE:
			other, err := ParseHave(msg)
			if err != nil {
				return nil, err
			}
			w.markHave(int(other))
		case PIECE:
			pieceIndex, begin, block, err := ParsePiece(msg)
			if err != nil {
				return nil, err
			}
			if int(pieceIndex) != index {
				w.log.Debug().Uint32("piece", pieceIndex).Msg("dropping block of unrequested piece")
				continue
			}
			if int(begin)+len(block) > pieceSize {
				return nil, errors.Errorf("block [%d, %d) overflows piece of %d bytes",
					begin, int(begin)+len(block), pieceSize)
			}
			copy(buf[begin:], block)
			received += len(block)
			backlog--
		default:
			w.log.Debug().Uint8("id", msg.ID).Msg("skipping frame while downloading")
		}
	}

	sum := sha1.Sum(buf)
	if sum != w.torrent.PieceHashes[index] {
		return nil, errors.Wrapf(errHashMismatch, "piece %d", index)
	}
	return buf, nil
}

func (w *peerWorker) send(m *Message) error {
	_, err := w.conn.Write(m.Serialize())
	return err
}

func (w *peerWorker) markHave(index int) {
	if w.bitfield == nil {
		w.bitfield = make(Bitfield, (w.torrent.NumPieces()+7)/8)
	}
	w.bitfield.SetPiece(index)
}

// HandshakePeer dials a single peer, performs the handshake and returns
// the peer's id.
func HandshakePeer(log zerolog.Logger, torrent *torrentfile.Torrent, peer tracker.Peer, peerID [20]byte) ([20]byte, error) {
	w := newPeerWorker(log, torrent, peer, peerID, nil, nil, nil)
	if err := w.connect(); err != nil {
		return [20]byte{}, err
	}
	defer w.conn.Close()

	if err := w.handshake(); err != nil {
		return [20]byte{}, err
	}
	return w.remoteID, nil
}

// DownloadPiece downloads exactly one piece from one specific peer and
// writes the verified bytes to out.
func DownloadPiece(log zerolog.Logger, torrent *torrentfile.Torrent, peer tracker.Peer, peerID [20]byte, index int, out io.Writer) error {
	if index < 0 || index >= torrent.NumPieces() {
		return errors.Errorf("piece %d out of range (torrent has %d pieces)", index, torrent.NumPieces())
	}

	w := newPeerWorker(log, torrent, peer, peerID, nil, nil, nil)
	if err := w.connect(); err != nil {
		return err
	}
	defer w.conn.Close()

	if err := w.handshake(); err != nil {
		return err
	}
	if err := w.awaitUnchoke(); err != nil {
		return err
	}

	w.state = stateDownloading
	data, err := w.downloadPiece(index)
	if err != nil {
		return err
	}

	_, err = out.Write(data)
	return errors.Wrap(err, "writing piece")
}
