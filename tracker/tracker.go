package tracker

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	bencodego "github.com/jackpal/bencode-go"
	"github.com/pkg/errors"
)

const peerChunkSize = 6

type HTTPTracker struct {
	AnnounceURL string
	InfoHash    [20]byte
	PeerID      [20]byte
	Port        uint16
	Length      uint64
}

type announceResponse struct {
	FailureReason string `bencode:"failure reason"`
	Interval      int    `bencode:"interval"`
	Peers         string `bencode:"peers"`
}

func (t *HTTPTracker) announceURL() (string, error) {
	base, err := url.Parse(t.AnnounceURL)
	if err != nil {
		return "", errors.Wrapf(err, "bad announce URL %q", t.AnnounceURL)
	}

	params := url.Values{
		"info_hash":  []string{string(t.InfoHash[:])},
		"peer_id":    []string{string(t.PeerID[:])},
		"port":       []string{strconv.Itoa(int(t.Port))},
		"uploaded":   []string{"0"},
		"downloaded": []string{"0"},
		"left":       []string{strconv.FormatUint(t.Length, 10)},
		"compact":    []string{"1"},
	}
	base.RawQuery = params.Encode()

	return base.String(), nil
}

// Announce queries the tracker and returns the compact peer list.
func (t *HTTPTracker) Announce() ([]Peer, error) {
	announce, err := t.announceURL()
	if err != nil {
		return nil, err
	}

	client := http.Client{Timeout: 15 * time.Second}
	response, err := client.Get(announce)
	if err != nil {
		return nil, errors.Wrap(err, "announcing to tracker")
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, errors.Errorf("tracker answered with status %s", response.Status)
	}

	answer := announceResponse{}
	if err := bencodego.Unmarshal(response.Body, &answer); err != nil {
		return nil, errors.Wrap(err, "bad response from tracker")
	}
	if answer.FailureReason != "" {
		return nil, errors.Errorf("tracker failure: %s", answer.FailureReason)
	}

	return UnmarshalPeers([]byte(answer.Peers))
}

// UnmarshalPeers cuts a compact peers blob into 6-byte groups: four IPv4
// octets followed by a big-endian port.
func UnmarshalPeers(blob []byte) ([]Peer, error) {
	if len(blob)%peerChunkSize != 0 {
		return nil, errors.Errorf("peers blob of %d bytes is not a multiple of %d", len(blob), peerChunkSize)
	}

	peers := make([]Peer, 0, len(blob)/peerChunkSize)
	for i := 0; i < len(blob); i += peerChunkSize {
		peers = append(peers, Peer{
			IP:   net.IPv4(blob[i], blob[i+1], blob[i+2], blob[i+3]),
			Port: uint16(blob[i+4])<<8 | uint16(blob[i+5]),
		})
	}

	return peers, nil
}
