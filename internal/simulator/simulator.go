// Package simulator assembles a complete run from a validated
// configuration: scheduler, random stream, virtual network, peers seeded
// by the topology, and the optional background user load.
package simulator

import (
	"fmt"
	"math/rand"

	"github.com/das67333/ipfs-simulator/internal/dht"
	"github.com/das67333/ipfs-simulator/internal/sim"
	"github.com/das67333/ipfs-simulator/internal/telemetry"
	"github.com/das67333/ipfs-simulator/internal/vnet"
	"github.com/das67333/ipfs-simulator/pkg/config"
	"github.com/das67333/ipfs-simulator/pkg/identity"
)

// Simulation owns every component of one run. Independent simulations
// never share state, so tests can run them side by side.
type Simulation struct {
	cfg   *config.Config
	sched *sim.Scheduler
	rng   *rand.Rand
	net   *vnet.Network
	peers []*dht.Peer
	sink  *telemetry.Sink
	load  *userLoad
}

// New builds a simulation from a validated config. Peer identities are
// drawn from the seeded stream in address order, then each peer is
// seeded with its topology neighbors and scheduled to start.
func New(cfg *config.Config, sink *telemetry.Sink) (*Simulation, error) {
	delay, err := vnet.DelayFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	topo, err := vnet.TopologyFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	sched := sim.NewScheduler()
	if cfg.Horizon > 0 {
		sched.SetHorizon(cfg.Horizon)
	}
	rng := sim.NewRand(cfg.Seed)
	net := vnet.NewNetwork(sched, rng, delay, cfg.NumPeers)
	params := dht.ParamsFromConfig(cfg)

	s := &Simulation{
		cfg:   cfg,
		sched: sched,
		rng:   rng,
		net:   net,
		sink:  sink,
	}

	infos := make([]dht.PeerInfo, cfg.NumPeers)
	for i := 0; i < cfg.NumPeers; i++ {
		ident, err := identity.Generate(rng)
		if err != nil {
			return nil, fmt.Errorf("failed to create peer %d: %w", i, err)
		}
		p := dht.NewPeer(ident, vnet.NodeAddr(i), params, sched, net, rng, sink)
		s.peers = append(s.peers, p)
		infos[i] = p.Info()
	}

	for i, p := range s.peers {
		neighbors := topo.Neighbors(vnet.NodeAddr(i))
		seed := make([]dht.PeerInfo, len(neighbors))
		for j, addr := range neighbors {
			seed[j] = infos[addr]
		}
		p.Seed(seed)
	}

	for _, p := range s.peers {
		p.Start()
	}

	if cfg.EnableUserLoadGeneration {
		s.load = newUserLoad(cfg, sched, rng, s.peers)
		s.load.start()
	}

	return s, nil
}

// Run drives the scheduler until the event queue drains or the horizon
// is reached, and returns the number of dispatched events.
func (s *Simulation) Run() uint64 {
	return s.sched.Run()
}

// SetHorizon bounds the run in logical time.
func (s *Simulation) SetHorizon(t float64) {
	s.sched.SetHorizon(t)
}

// Scheduler exposes the event scheduler, mainly for tests that need to
// interleave their own events with the run.
func (s *Simulation) Scheduler() *sim.Scheduler {
	return s.sched
}

// Peer returns the peer at the given address.
func (s *Simulation) Peer(i int) *dht.Peer {
	return s.peers[i]
}

// NumPeers returns the population size.
func (s *Simulation) NumPeers() int {
	return len(s.peers)
}

// Stats returns the aggregate run counters.
func (s *Simulation) Stats() telemetry.Stats {
	return s.sink.Stats()
}
