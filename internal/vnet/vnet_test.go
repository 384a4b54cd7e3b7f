package vnet

import (
	"math/rand"
	"testing"

	"github.com/das67333/ipfs-simulator/internal/sim"
	"github.com/das67333/ipfs-simulator/pkg/config"
)

func TestConstantDelay(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	d := ConstantDelay{Mean: 0.25}
	for i := 0; i < 10; i++ {
		if got := d.Sample(rng); got != 0.25 {
			t.Fatalf("constant delay = %v, want 0.25", got)
		}
	}
}

func TestUniformDelayBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	d := UniformDelay{Min: 0.5, Max: 2.5}
	for i := 0; i < 1000; i++ {
		got := d.Sample(rng)
		if got < d.Min || got > d.Max {
			t.Fatalf("uniform sample %v outside [%v, %v]", got, d.Min, d.Max)
		}
	}
}

func TestPositiveNormalNonNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	d := PositiveNormalDelay{Mean: 0.1, StdDev: 5.0}
	for i := 0; i < 1000; i++ {
		if got := d.Sample(rng); got < 0 {
			t.Fatalf("positive normal sample is negative: %v", got)
		}
	}
}

func TestDelayFromConfig(t *testing.T) {
	cfg := &config.Config{DelayDistribution: config.DelayUniform, DelayMin: 1, DelayMax: 2}
	d, err := DelayFromConfig(cfg)
	if err != nil {
		t.Fatalf("DelayFromConfig: %v", err)
	}
	if _, ok := d.(UniformDelay); !ok {
		t.Fatalf("got %T, want UniformDelay", d)
	}
	cfg.DelayDistribution = "bogus"
	if _, err := DelayFromConfig(cfg); err == nil {
		t.Fatalf("unknown distribution must error")
	}
}

func TestFullTopology(t *testing.T) {
	topo := FullTopology{First: 0, Last: 4}
	got := topo.Neighbors(2)
	want := []NodeAddr{0, 1, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("neighbors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("neighbors = %v, want %v", got, want)
		}
	}
	if topo.Neighbors(7) != nil {
		t.Fatalf("peer outside the range must have no seed neighbors")
	}
}

func TestRingTopology(t *testing.T) {
	topo := RingTopology{NumPeers: 5}
	cases := map[NodeAddr][]NodeAddr{
		0: {4, 1},
		2: {1, 3},
		4: {3, 0},
	}
	for addr, want := range cases {
		got := topo.Neighbors(addr)
		if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("Neighbors(%d) = %v, want %v", addr, got, want)
		}
	}

	two := RingTopology{NumPeers: 2}
	if got := two.Neighbors(0); len(got) != 1 || got[0] != 1 {
		t.Fatalf("two-peer ring Neighbors(0) = %v, want [1]", got)
	}
}

func TestStarTopology(t *testing.T) {
	topo := StarTopology{Center: 1, NumPeers: 4}
	if got := topo.Neighbors(3); len(got) != 1 || got[0] != 1 {
		t.Fatalf("leaf must know only the center, got %v", got)
	}
	got := topo.Neighbors(1)
	want := []NodeAddr{0, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("center neighbors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("center neighbors = %v, want %v", got, want)
		}
	}
}

type recordingHandler struct {
	from []NodeAddr
	msgs []any
}

func (h *recordingHandler) HandleMessage(from NodeAddr, msg any) {
	h.from = append(h.from, from)
	h.msgs = append(h.msgs, msg)
}

func TestNetworkDelivery(t *testing.T) {
	sched := sim.NewScheduler()
	rng := sim.NewRand(1)
	net := NewNetwork(sched, rng, ConstantDelay{Mean: 2.0}, 2)

	h0, h1 := &recordingHandler{}, &recordingHandler{}
	net.Attach(0, h0)
	net.Attach(1, h1)

	net.Send(0, 1, "hello")
	if len(h1.msgs) != 0 {
		t.Fatalf("delivery must wait for the scheduler")
	}
	sched.Run()

	if len(h1.msgs) != 1 || h1.msgs[0] != "hello" || h1.from[0] != 0 {
		t.Fatalf("message not delivered: %+v", h1)
	}
	if sched.Now() != 2.0 {
		t.Fatalf("delivery time = %v, want 2.0", sched.Now())
	}
}

func TestNetworkSelfSendInstant(t *testing.T) {
	sched := sim.NewScheduler()
	net := NewNetwork(sched, sim.NewRand(1), ConstantDelay{Mean: 5.0}, 1)
	h := &recordingHandler{}
	net.Attach(0, h)

	net.Send(0, 0, "loop")
	sched.Run()

	if len(h.msgs) != 1 || sched.Now() != 0 {
		t.Fatalf("self send must deliver at the current time")
	}
}
