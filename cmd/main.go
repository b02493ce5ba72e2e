package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/vaguilera/gotorrent/bencode"
	"github.com/vaguilera/gotorrent/torrentfile"
	"github.com/vaguilera/gotorrent/torrentp2p"
	"github.com/vaguilera/gotorrent/tracker"
)

// 20-byte id reported to trackers and peers, chosen at process start.
const clientID = "00112233445566778899"

func printHelp() {
	fmt.Printf(`gotorrent client V1.0
Usage:
	gotorrent [flags] decode <bencoded-string>
	gotorrent [flags] info <torrentfile>
	gotorrent [flags] peers <torrentfile>
	gotorrent [flags] handshake <torrentfile> <ip>:<port>
	gotorrent [flags] download_piece -o <outfile> <torrentfile> <piece-index>
	gotorrent [flags] download -o <outfile> <torrentfile>
`)
	flag.PrintDefaults()
}

func main() {
	verbose := flag.Bool("v", false, "verbose logging")
	port := flag.Uint("port", 6881, "port reported to the tracker")
	flag.Usage = printHelp
	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		printHelp()
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	var peerID [20]byte
	copy(peerID[:], clientID)

	var err error
	switch args[0] {
	case "decode":
		err = runDecode(args[1:])
	case "info":
		err = runInfo(args[1:])
	case "peers":
		err = runPeers(args[1:], peerID, uint16(*port))
	case "handshake":
		err = runHandshake(args[1:], logger, peerID)
	case "download_piece":
		err = runDownloadPiece(args[1:], logger, peerID, uint16(*port))
	case "download":
		err = runDownload(args[1:], logger, peerID, uint16(*port))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printHelp()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func runDecode(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: decode <bencoded-string>")
	}

	value, err := bencode.Decode([]byte(args[0]))
	if err != nil {
		return err
	}

	out, err := value.JSON()
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runInfo(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: info <torrentfile>")
	}

	torrent, err := torrentfile.TorrentFromFile(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Tracker URL: %s\n", torrent.Announce)
	fmt.Printf("Length: %d\n", torrent.Length)
	fmt.Printf("Info Hash: %x\n", torrent.InfoHash)
	fmt.Printf("Piece Length: %d\n", torrent.PieceLength)
	fmt.Println("Piece Hashes:")
	for _, hash := range torrent.PieceHashes {
		fmt.Printf("%x\n", hash)
	}
	return nil
}

func announce(torrent *torrentfile.Torrent, peerID [20]byte, port uint16) ([]tracker.Peer, error) {
	tr := tracker.HTTPTracker{
		AnnounceURL: torrent.Announce,
		InfoHash:    torrent.InfoHash,
		PeerID:      peerID,
		Port:        port,
		Length:      torrent.Length,
	}
	return tr.Announce()
}

func runPeers(args []string, peerID [20]byte, port uint16) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: peers <torrentfile>")
	}

	torrent, err := torrentfile.TorrentFromFile(args[0])
	if err != nil {
		return err
	}

	peers, err := announce(torrent, peerID, port)
	if err != nil {
		return err
	}

	for _, peer := range peers {
		fmt.Println(peer)
	}
	return nil
}

func runHandshake(args []string, logger zerolog.Logger, peerID [20]byte) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: handshake <torrentfile> <ip>:<port>")
	}

	torrent, err := torrentfile.TorrentFromFile(args[0])
	if err != nil {
		return err
	}

	peer, err := tracker.ParsePeer(args[1])
	if err != nil {
		return err
	}

	remoteID, err := torrentp2p.HandshakePeer(logger, torrent, peer, peerID)
	if err != nil {
		return err
	}

	fmt.Printf("Peer ID: %x\n", remoteID)
	return nil
}

func runDownloadPiece(args []string, logger zerolog.Logger, peerID [20]byte, port uint16) error {
	flags := flag.NewFlagSet("download_piece", flag.ExitOnError)
	outPath := flags.String("o", "", "output file")
	flags.Parse(args)

	rest := flags.Args()
	if *outPath == "" || len(rest) != 2 {
		return fmt.Errorf("usage: download_piece -o <outfile> <torrentfile> <piece-index>")
	}

	torrent, err := torrentfile.TorrentFromFile(rest[0])
	if err != nil {
		return err
	}

	index, err := strconv.Atoi(rest[1])
	if err != nil {
		return fmt.Errorf("bad piece index %q", rest[1])
	}

	peers, err := announce(torrent, peerID, port)
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		return torrentp2p.ErrNoPeers
	}

	// One peer is enough for a single piece; walk the list until one
	// serves it.
	var buf bytes.Buffer
	for _, peer := range peers {
		buf.Reset()
		if err = torrentp2p.DownloadPiece(logger, torrent, peer, peerID, index, &buf); err == nil {
			return os.WriteFile(*outPath, buf.Bytes(), 0600)
		}
		logger.Debug().Err(err).Str("peer", peer.String()).Msg("piece download failed, trying next peer")
	}
	return err
}

func runDownload(args []string, logger zerolog.Logger, peerID [20]byte, port uint16) error {
	flags := flag.NewFlagSet("download", flag.ExitOnError)
	outPath := flags.String("o", "", "output file")
	flags.Parse(args)

	rest := flags.Args()
	if *outPath == "" || len(rest) != 1 {
		return fmt.Errorf("usage: download -o <outfile> <torrentfile>")
	}

	torrent, err := torrentfile.TorrentFromFile(rest[0])
	if err != nil {
		return err
	}

	peers, err := announce(torrent, peerID, port)
	if err != nil {
		return err
	}

	downloader := torrentp2p.Downloader{
		Torrent: torrent,
		Peers:   peers,
		PeerID:  peerID,
		Log:     logger,
	}
	return downloader.Run(*outPath)
}
