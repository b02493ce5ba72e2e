package torrentp2p

import "time"

// peerState tracks a worker through its connection lifecycle. Transitions
// only ever move forward except Downloading -> Ready, and Downloading ->
// PostHandshake -> Ready when the peer chokes mid-piece.
type peerState int

const (
	stateConnecting peerState = iota
	stateHandshaking
	statePostHandshake
	stateReady
	stateDownloading
	stateFailed
)

type eventKind int

const (
	eventReady eventKind = iota
	eventPieceDone
	eventPieceFailed
	eventWorkerFailed
)

// workerEvent is the only channel of communication from a worker to the
// scheduler. piece is -1 when no piece was in flight.
type workerEvent struct {
	worker *peerWorker
	kind   eventKind
	piece  int
	data   []byte
	err    error
}

const (
	// Request-size ceiling virtually all peers accept.
	maxBlockSize = 16384
	// Outstanding requests kept in flight per peer.
	maxBacklog = 5

	dialTimeout        = 10 * time.Second
	handshakeTimeout   = 10 * time.Second
	controlReadTimeout = 10 * time.Second
	blockReadTimeout   = 20 * time.Second
)
