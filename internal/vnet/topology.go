package vnet

import (
	"fmt"

	"github.com/das67333/ipfs-simulator/pkg/config"
)

// Topology yields the seed-neighbor set each peer is told about at
// bootstrap. It only shapes initial routing tables; once the run starts,
// every peer may talk to every other.
type Topology interface {
	// Neighbors returns the addresses peer addr initially knows.
	Neighbors(addr NodeAddr) []NodeAddr
}

// FullTopology connects every peer in [First, Last] to every other peer
// in the range.
type FullTopology struct {
	First, Last NodeAddr
}

// Neighbors implements Topology.
func (t FullTopology) Neighbors(addr NodeAddr) []NodeAddr {
	if addr < t.First || addr > t.Last {
		return nil
	}
	out := make([]NodeAddr, 0, int(t.Last-t.First))
	for a := t.First; a <= t.Last; a++ {
		if a != addr {
			out = append(out, a)
		}
	}
	return out
}

// RingTopology connects each peer to its two neighbors in address order,
// with the first and last peers adjacent.
type RingTopology struct {
	NumPeers int
}

// Neighbors implements Topology.
func (t RingTopology) Neighbors(addr NodeAddr) []NodeAddr {
	n := t.NumPeers
	if n <= 1 {
		return nil
	}
	prev := NodeAddr((int(addr) - 1 + n) % n)
	next := NodeAddr((int(addr) + 1) % n)
	if prev == next {
		// Two-peer ring degenerates to a single link.
		return []NodeAddr{prev}
	}
	return []NodeAddr{prev, next}
}

// StarTopology connects every peer to a single center; the center knows
// all others.
type StarTopology struct {
	Center   NodeAddr
	NumPeers int
}

// Neighbors implements Topology.
func (t StarTopology) Neighbors(addr NodeAddr) []NodeAddr {
	if addr != t.Center {
		return []NodeAddr{t.Center}
	}
	out := make([]NodeAddr, 0, t.NumPeers-1)
	for a := 0; a < t.NumPeers; a++ {
		if NodeAddr(a) != t.Center {
			out = append(out, NodeAddr(a))
		}
	}
	return out
}

// TopologyFromConfig builds the configured topology.
func TopologyFromConfig(cfg *config.Config) (Topology, error) {
	switch cfg.Topology {
	case config.TopologyFull:
		return FullTopology{
			First: NodeAddr(cfg.TopologyFirstID),
			Last:  NodeAddr(cfg.TopologyLastID),
		}, nil
	case config.TopologyRing:
		return RingTopology{NumPeers: cfg.NumPeers}, nil
	case config.TopologyStar:
		return StarTopology{
			Center:   NodeAddr(cfg.TopologyCenter),
			NumPeers: cfg.NumPeers,
		}, nil
	default:
		return nil, fmt.Errorf("unknown topology %q", cfg.Topology)
	}
}
