package torrentp2p

import (
	"math/rand"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/vaguilera/gotorrent/torrentfile"
	"github.com/vaguilera/gotorrent/tracker"
)

var ErrNoPeers = errors.New("no peers available")

// Downloader coordinates one worker per peer over a shared piece plan.
// It is the only goroutine that touches the remaining-piece set and the
// output file; workers report back through a single event channel.
type Downloader struct {
	Torrent *torrentfile.Torrent
	Peers   []tracker.Peer
	PeerID  [20]byte
	Log     zerolog.Logger
}

func (down *Downloader) peerExists(list []tracker.Peer, peer tracker.Peer) bool {
	for _, exPeer := range list {
		if peer.IP.Equal(exPeer.IP) && peer.Port == exPeer.Port {
			return true
		}
	}
	return false
}

func (down *Downloader) dedupePeers() []tracker.Peer {
	var unique []tracker.Peer
	for _, peer := range down.Peers {
		if !down.peerExists(unique, peer) {
			unique = append(unique, peer)
		}
	}
	return unique
}

// Run downloads the whole payload to outPath. It returns once every
// piece has been verified and written, or with ErrNoPeers when all
// workers died with pieces still missing.
func (down *Downloader) Run(outPath string) error {
	peers := down.dedupePeers()
	if len(peers) == 0 {
		return ErrNoPeers
	}

	writer, err := createFile(outPath)
	if err != nil {
		return errors.Wrapf(err, "creating %s", outPath)
	}
	defer writer.close()

	numPieces := down.Torrent.NumPieces()
	// Shuffled so a cold swarm is not hammered on a prefix of the piece
	// space by every worker at once.
	remaining := rand.Perm(numPieces)

	events := make(chan workerEvent)
	quit := make(chan struct{})
	defer close(quit)

	alive := 0
	for _, peer := range peers {
		worker := newPeerWorker(down.Log, down.Torrent, peer, down.PeerID,
			make(chan int, 1), events, quit)
		alive++
		go worker.run()
	}
	down.Log.Info().Int("peers", alive).Int("pieces", numPieces).Msg("starting download")

	var idle []*peerWorker
	assignNext := func(w *peerWorker) {
		index := remaining[0]
		remaining = remaining[1:]
		w.assign <- index
	}
	assignIdle := func() {
		for len(remaining) > 0 && len(idle) > 0 {
			w := idle[len(idle)-1]
			idle = idle[:len(idle)-1]
			assignNext(w)
		}
	}

	done := 0
	for done < numPieces {
		if alive == 0 {
			return errors.Wrapf(ErrNoPeers, "%d pieces missing", numPieces-done)
		}

		ev := <-events
		switch ev.kind {
		case eventReady:
			if len(remaining) > 0 {
				assignNext(ev.worker)
			} else {
				idle = append(idle, ev.worker)
			}

		case eventPieceDone:
			begin, _ := down.Torrent.BoundsForPiece(ev.piece)
			if err := writer.writeAt(ev.data, int64(begin)); err != nil {
				return errors.Wrapf(err, "writing piece %d", ev.piece)
			}
			done++
			down.Log.Info().
				Str("peer", ev.worker.peer.String()).
				Int("piece", ev.piece).
				Msgf("piece %d/%d done", done, numPieces)

		case eventPieceFailed:
			remaining = append(remaining, ev.piece)
			assignIdle()

		case eventWorkerFailed:
			alive--
			down.Log.Debug().Err(ev.err).
				Str("peer", ev.worker.peer.String()).
				Msg("peer worker failed")
			if ev.piece >= 0 {
				remaining = append(remaining, ev.piece)
				assignIdle()
			}
		}
	}

	down.Log.Info().Str("file", outPath).Msg("file downloaded")
	return nil
}
