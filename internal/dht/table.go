package dht

import (
	"sort"

	"github.com/das67333/ipfs-simulator/pkg/key"
)

// RoutingTable is a peer's view of the overlay: one k-bucket per common
// prefix length with the local key. Buckets are allocated lazily, so a
// large simulated population does not pay for 256 buckets per peer.
type RoutingTable struct {
	local      key.Key
	k          int
	buckets    map[int]*bucket
	lastLookup map[int]float64
}

// NewRoutingTable creates an empty table for the peer with the given
// local key and bucket size k.
func NewRoutingTable(local key.Key, k int) *RoutingTable {
	return &RoutingTable{
		local:      local,
		k:          k,
		buckets:    make(map[int]*bucket),
		lastLookup: make(map[int]float64),
	}
}

// Local returns the owner's key.
func (rt *RoutingTable) Local() key.Key {
	return rt.local
}

func (rt *RoutingTable) bucketIndex(id key.Key) int {
	return rt.local.CommonPrefixLen(id)
}

func (rt *RoutingTable) bucketFor(id key.Key) *bucket {
	idx := rt.bucketIndex(id)
	b, ok := rt.buckets[idx]
	if !ok {
		b = newBucket(rt.k)
		rt.buckets[idx] = b
	}
	return b
}

// Observe records a successful exchange with p at logical time now.
//
// If p is known it moves to the most-recently-seen end; if its bucket
// has room it is appended. When the bucket is full and p is already in
// its replacement cache, the cache entry is refreshed. Otherwise, when
// the bucket is full, Observe returns the
// bucket's least-recently-seen entry: the caller must liveness-check it
// and report the outcome through ResolveLiveness. A nil return means the
// observation was absorbed.
func (rt *RoutingTable) Observe(p PeerInfo, now float64) *PeerInfo {
	if p.ID == rt.local {
		return nil
	}
	b := rt.bucketFor(p.ID)
	if b.touch(p.ID, now) {
		return nil
	}
	if !b.full() {
		if p.LastSeen < now {
			p.LastSeen = now
		}
		b.removeReplacement(p.ID)
		b.appendLive(p)
		return nil
	}
	if b.findReplacement(p.ID) >= 0 {
		b.cacheReplacement(p)
		return nil
	}
	lru := b.lru()
	return &lru
}

// CacheCandidate stashes p in its bucket's replacement cache without
// touching the live set. Used while a liveness check for the same
// bucket is already in flight, and during topology seeding overflow.
func (rt *RoutingTable) CacheCandidate(p PeerInfo) {
	if p.ID == rt.local {
		return
	}
	rt.bucketFor(p.ID).cacheReplacement(p)
}

// ResolveLiveness reports the outcome of the liveness check started by
// Observe. If the checked peer answered, it stays and the candidate is
// cached; if it did not, it is evicted and the candidate takes its slot.
func (rt *RoutingTable) ResolveLiveness(checked key.Key, alive bool, candidate PeerInfo, now float64) {
	b := rt.bucketFor(checked)
	if alive {
		b.touch(checked, now)
		if candidate.ID != rt.local && b.findLive(candidate.ID) < 0 {
			b.cacheReplacement(candidate)
		}
		return
	}
	b.evict(checked)
	cb := rt.bucketFor(candidate.ID)
	if candidate.ID != rt.local && cb.findLive(candidate.ID) < 0 {
		if cb.full() {
			cb.cacheReplacement(candidate)
		} else {
			cb.removeReplacement(candidate.ID)
			cb.appendLive(candidate)
		}
	}
}

// Remove evicts id from the table entirely.
func (rt *RoutingTable) Remove(id key.Key) {
	b, ok := rt.buckets[rt.bucketIndex(id)]
	if !ok {
		return
	}
	if !b.removeLive(id) {
		b.removeReplacement(id)
	}
}

// Contains reports whether id is in the live set of its bucket.
func (rt *RoutingTable) Contains(id key.Key) bool {
	b, ok := rt.buckets[rt.bucketIndex(id)]
	return ok && b.findLive(id) >= 0
}

// Closest returns up to count live peers with the smallest XOR distance
// to target, ties broken by key order. This is the table's hot path.
func (rt *RoutingTable) Closest(target key.Key, count int) []PeerInfo {
	var all []PeerInfo
	for _, idx := range rt.bucketIndexes() {
		all = append(all, rt.buckets[idx].live...)
	}
	SortClosest(all, target)
	if len(all) > count {
		all = all[:count]
	}
	return all
}

// Size returns the number of live entries across all buckets.
func (rt *RoutingTable) Size() int {
	total := 0
	for _, b := range rt.buckets {
		total += len(b.live)
	}
	return total
}

// bucketIndexes returns the allocated bucket indexes in ascending order
// so that scans are deterministic.
func (rt *RoutingTable) bucketIndexes() []int {
	idxs := make([]int, 0, len(rt.buckets))
	for idx := range rt.buckets {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	return idxs
}

// NoteLookup marks the bucket covering target as refreshed at now.
func (rt *RoutingTable) NoteLookup(target key.Key, now float64) {
	idx := rt.bucketIndex(target)
	if idx >= key.Bits {
		return // self lookup refreshes nothing
	}
	if now > rt.lastLookup[idx] {
		rt.lastLookup[idx] = now
	}
}

// StaleBuckets returns the indexes of allocated, non-empty buckets that
// have not seen a lookup within interval before now, in ascending order.
func (rt *RoutingTable) StaleBuckets(now, interval float64) []int {
	var stale []int
	for _, idx := range rt.bucketIndexes() {
		if len(rt.buckets[idx].live) == 0 {
			continue
		}
		if last, ok := rt.lastLookup[idx]; !ok || last+interval <= now {
			stale = append(stale, idx)
		}
	}
	return stale
}

// CheckInvariants panics if the table's structural invariants are
// broken; it indicates an implementation bug, not a protocol condition.
func (rt *RoutingTable) CheckInvariants() {
	seen := make(map[key.Key]bool)
	for idx, b := range rt.buckets {
		if len(b.live) > rt.k || len(b.replacements) > rt.k {
			panic("dht: bucket over capacity")
		}
		for _, p := range b.live {
			if p.ID == rt.local {
				panic("dht: local key in own routing table")
			}
			if rt.local.CommonPrefixLen(p.ID) != idx {
				panic("dht: peer in wrong bucket")
			}
			if seen[p.ID] {
				panic("dht: duplicate peer in routing table")
			}
			seen[p.ID] = true
		}
		for _, p := range b.replacements {
			if seen[p.ID] {
				panic("dht: peer in both live set and replacement cache")
			}
			seen[p.ID] = true
		}
	}
}
