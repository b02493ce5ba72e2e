package tracker

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
)

type Peer struct {
	IP   net.IP
	Port uint16
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// ParsePeer parses an "ip:port" string as received on the command line.
func ParsePeer(s string) (Peer, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Peer{}, errors.Wrapf(err, "bad peer address %q", s)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return Peer{}, errors.Errorf("bad peer address %q: invalid IP", s)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Peer{}, errors.Wrapf(err, "bad peer address %q", s)
	}

	return Peer{IP: ip, Port: uint16(port)}, nil
}
