package dht

import (
	"math/rand"
	"testing"

	"github.com/das67333/ipfs-simulator/internal/vnet"
	"github.com/das67333/ipfs-simulator/pkg/key"
)

func testInfo(rng *rand.Rand, addr int) PeerInfo {
	return PeerInfo{ID: key.Random(rng), Addr: vnet.NodeAddr(addr)}
}

// infoAtCPL builds a PeerInfo whose key has the given prefix length with
// local.
func infoAtCPL(local key.Key, cpl int, rng *rand.Rand, addr int) PeerInfo {
	return PeerInfo{ID: key.ForCPL(local, cpl, rng), Addr: vnet.NodeAddr(addr)}
}

func TestObserveRefusesSelf(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	local := key.Random(rng)
	rt := NewRoutingTable(local, 4)

	rt.Observe(PeerInfo{ID: local}, 0)
	if rt.Size() != 0 {
		t.Fatalf("local key must never enter its own table")
	}
}

func TestObserveBucketPlacement(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	local := key.Random(rng)
	rt := NewRoutingTable(local, 4)

	for cpl := 0; cpl < 8; cpl++ {
		rt.Observe(infoAtCPL(local, cpl, rng, cpl), 1.0)
	}
	if rt.Size() != 8 {
		t.Fatalf("size = %d, want 8", rt.Size())
	}
	rt.CheckInvariants()
}

func TestObserveMovesToMRU(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	local := key.Random(rng)
	rt := NewRoutingTable(local, 3)

	// Three peers in one bucket, observed in order a, b, c.
	a := infoAtCPL(local, 5, rng, 0)
	b := infoAtCPL(local, 5, rng, 1)
	c := infoAtCPL(local, 5, rng, 2)
	rt.Observe(a, 1)
	rt.Observe(b, 2)
	rt.Observe(c, 3)

	// Re-observe a: it becomes most recent, so b is now the LRU a full
	// bucket would liveness-check.
	rt.Observe(a, 4)
	d := infoAtCPL(local, 5, rng, 3)
	lru := rt.Observe(d, 5)
	if lru == nil || lru.ID != b.ID {
		t.Fatalf("full bucket must hand back the LRU (b), got %v", lru)
	}
	rt.CheckInvariants()
}

func TestResolveLivenessAlive(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	local := key.Random(rng)
	rt := NewRoutingTable(local, 2)

	a := infoAtCPL(local, 3, rng, 0)
	b := infoAtCPL(local, 3, rng, 1)
	c := infoAtCPL(local, 3, rng, 2)
	rt.Observe(a, 1)
	rt.Observe(b, 2)
	lru := rt.Observe(c, 3)
	if lru == nil || lru.ID != a.ID {
		t.Fatalf("expected LRU a, got %v", lru)
	}

	rt.ResolveLiveness(a.ID, true, c, 4)
	if !rt.Contains(a.ID) || !rt.Contains(b.ID) {
		t.Fatalf("live set must be preserved when the LRU answers")
	}
	if rt.Contains(c.ID) {
		t.Fatalf("candidate must go to the replacement cache, not the live set")
	}
	rt.CheckInvariants()
}

func TestResolveLivenessDead(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	local := key.Random(rng)
	rt := NewRoutingTable(local, 2)

	a := infoAtCPL(local, 3, rng, 0)
	b := infoAtCPL(local, 3, rng, 1)
	c := infoAtCPL(local, 3, rng, 2)
	rt.Observe(a, 1)
	rt.Observe(b, 2)
	if lru := rt.Observe(c, 3); lru == nil {
		t.Fatalf("expected a liveness check")
	}

	rt.ResolveLiveness(a.ID, false, c, 4)
	if rt.Contains(a.ID) {
		t.Fatalf("unresponsive LRU must be evicted")
	}
	if !rt.Contains(c.ID) {
		t.Fatalf("candidate must take the evicted slot")
	}
	rt.CheckInvariants()
}

func TestClosestOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	local := key.Random(rng)
	rt := NewRoutingTable(local, 20)

	var infos []PeerInfo
	for i := 0; i < 50; i++ {
		p := testInfo(rng, i)
		infos = append(infos, p)
		rt.Observe(p, 1)
	}

	target := key.Random(rng)
	got := rt.Closest(target, 10)
	if len(got) != 10 {
		t.Fatalf("got %d peers, want 10", len(got))
	}
	for i := 1; i < len(got); i++ {
		if key.Closer(got[i].ID, got[i-1].ID, target) {
			t.Fatalf("closest result not sorted at %d", i)
		}
	}

	// Brute-force cross-check of the winner.
	best := infos[0]
	for _, p := range infos[1:] {
		if key.Closer(p.ID, best.ID, target) {
			best = p
		}
	}
	if got[0].ID != best.ID {
		t.Fatalf("closest peer mismatch: got %s, want %s", got[0].ID, best.ID)
	}
}

func TestClosestDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	local := key.Random(rng)
	target := key.Random(rng)

	var infos []PeerInfo
	for i := 0; i < 30; i++ {
		infos = append(infos, testInfo(rng, i))
	}

	// Two tables fed the same peers in different orders must agree.
	rt1 := NewRoutingTable(local, 20)
	rt2 := NewRoutingTable(local, 20)
	for _, p := range infos {
		rt1.Observe(p, 1)
	}
	for i := len(infos) - 1; i >= 0; i-- {
		rt2.Observe(infos[i], 1)
	}

	a, b := rt1.Closest(target, 8), rt2.Closest(target, 8)
	if len(a) != len(b) {
		t.Fatalf("result sizes differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("closest sets diverge at %d", i)
		}
	}
}

func TestLastSeenMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	local := key.Random(rng)
	rt := NewRoutingTable(local, 4)

	p := infoAtCPL(local, 2, rng, 0)
	rt.Observe(p, 5)
	rt.Observe(p, 3) // stale observation must not move LastSeen back

	b := rt.buckets[rt.bucketIndex(p.ID)]
	if got := b.live[b.findLive(p.ID)].LastSeen; got != 5 {
		t.Fatalf("LastSeen = %v, want 5", got)
	}
}

func TestStaleBuckets(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	local := key.Random(rng)
	rt := NewRoutingTable(local, 4)

	a := infoAtCPL(local, 1, rng, 0)
	b := infoAtCPL(local, 7, rng, 1)
	rt.Observe(a, 0)
	rt.Observe(b, 0)

	// Refresh the bucket holding a at t=50; bucket of b stays untouched.
	rt.NoteLookup(a.ID, 50)

	stale := rt.StaleBuckets(60, 30)
	if len(stale) != 1 || stale[0] != rt.bucketIndex(b.ID) {
		t.Fatalf("stale buckets = %v, want just %d", stale, rt.bucketIndex(b.ID))
	}

	stale = rt.StaleBuckets(100, 30)
	if len(stale) != 2 {
		t.Fatalf("both buckets must be stale at t=100, got %v", stale)
	}
}

func TestReplacementCacheBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	local := key.Random(rng)
	rt := NewRoutingTable(local, 2)

	// Fill a bucket, then cache more candidates than fit.
	for i := 0; i < 2; i++ {
		rt.Observe(infoAtCPL(local, 4, rng, i), 1)
	}
	for i := 0; i < 5; i++ {
		rt.CacheCandidate(infoAtCPL(local, 4, rng, 10+i))
	}
	b := rt.buckets[4]
	if len(b.replacements) > 2 {
		t.Fatalf("replacement cache over capacity: %d", len(b.replacements))
	}
	rt.CheckInvariants()
}
