// Package topology derives the deterministic peer network layout for a
// distributed run.
//
// Rank assignment and the simulation's own peer discovery both depend on the
// address list order matching rank order exactly: the i-th address belongs to
// rank i, always. Everything here is pure; validation of the peer count is
// the caller's responsibility.
package topology

import (
	"net"
	"strconv"
	"strings"
)

// LoopbackHost is the host every peer binds in a single-machine run.
const LoopbackHost = "127.0.0.1"

// DefaultBasePort is the listening port assigned to rank 0. Subsequent ranks
// get contiguous ports above it.
const DefaultBasePort = 8000

// Address is one peer's network endpoint.
type Address struct {
	Host string
	Port int
}

// String renders the address as "host:port".
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Build returns one address per rank for a run with peerCount peers.
//
// Invariants:
//   - exactly peerCount addresses are returned, in rank order
//   - address[i].Port == basePort + i (unique, contiguous)
//   - the same inputs always produce the same list
func Build(peerCount, basePort int) []Address {
	addrs := make([]Address, peerCount)
	for rank := range addrs {
		addrs[rank] = Address{Host: LoopbackHost, Port: basePort + rank}
	}
	return addrs
}

// Join renders the full peer list as a single whitespace-joined argument,
// the form the simulation's --peers flag expects.
func Join(addrs []Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}
