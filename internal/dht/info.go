// Package dht implements the Kademlia overlay that runs inside each
// simulated peer: the k-bucket routing table, the record store, the
// iterative query engine, and the peer that binds them together and
// answers inbound RPCs.
package dht

import (
	"fmt"

	"github.com/das67333/ipfs-simulator/internal/vnet"
	"github.com/das67333/ipfs-simulator/pkg/key"
)

// PeerInfo identifies a remote peer: its DHT key, its opaque network
// address, and the logical time we last heard from it.
type PeerInfo struct {
	ID       key.Key       `cbor:"id"`
	Addr     vnet.NodeAddr `cbor:"addr"`
	LastSeen float64       `cbor:"-"`
}

// String returns a short form for logging.
func (p PeerInfo) String() string {
	return fmt.Sprintf("%s@%d", p.ID.ShortString(), p.Addr)
}

// SortClosest sorts infos in place, closest to target first, ties broken
// by key order. The result is a deterministic function of the input set.
func SortClosest(infos []PeerInfo, target key.Key) {
	// Insertion sort keeps the hot path allocation-free; candidate sets
	// are small (a few k at most).
	for i := 1; i < len(infos); i++ {
		cur := infos[i]
		j := i - 1
		for j >= 0 && key.Closer(cur.ID, infos[j].ID, target) {
			infos[j+1] = infos[j]
			j--
		}
		infos[j+1] = cur
	}
}
