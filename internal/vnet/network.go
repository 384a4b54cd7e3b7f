package vnet

import (
	"fmt"
	"math/rand"

	"github.com/das67333/ipfs-simulator/internal/sim"
)

// NodeAddr is a peer's opaque network address: its stable index in the
// simulation. Peers never hold references to each other; the network
// mediates every interaction through addresses.
type NodeAddr int

// Handler consumes messages delivered by the network.
type Handler interface {
	HandleMessage(from NodeAddr, msg any)
}

// Network routes messages between peers. Each send samples one link
// delay and schedules a delivery event; delays on the same link are
// independent, so two messages between the same pair of peers may be
// reordered in flight.
type Network struct {
	sched    *sim.Scheduler
	rng      *rand.Rand
	delay    DelayDistribution
	handlers []Handler
}

// NewNetwork creates a network for numPeers attachable handlers.
func NewNetwork(sched *sim.Scheduler, rng *rand.Rand, delay DelayDistribution, numPeers int) *Network {
	return &Network{
		sched:    sched,
		rng:      rng,
		delay:    delay,
		handlers: make([]Handler, numPeers),
	}
}

// Attach registers the handler living at addr.
func (n *Network) Attach(addr NodeAddr, h Handler) {
	n.handlers[addr] = h
}

// Send samples a delay for the link from→to and schedules delivery of
// msg. A message to self is delivered with zero delay. Send never
// blocks; delivery happens when the scheduler reaches the event.
func (n *Network) Send(from, to NodeAddr, msg any) {
	if int(to) < 0 || int(to) >= len(n.handlers) {
		panic(fmt.Sprintf("vnet: send to unknown address %d", to))
	}
	var delay float64
	if from != to {
		delay = n.delay.Sample(n.rng)
	}
	n.sched.Schedule(delay, "deliver", func() {
		h := n.handlers[to]
		if h == nil {
			return
		}
		h.HandleMessage(from, msg)
	})
}

// NumPeers returns the number of attachable addresses.
func (n *Network) NumPeers() int {
	return len(n.handlers)
}
