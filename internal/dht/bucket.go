package dht

import "github.com/das67333/ipfs-simulator/pkg/key"

// bucket is one k-bucket: up to capacity live entries ordered least
// recently seen first, plus a bounded replacement cache of recently
// observed but uninserted peers, in the same order.
type bucket struct {
	live         []PeerInfo
	replacements []PeerInfo
	capacity     int
}

func newBucket(capacity int) *bucket {
	return &bucket{capacity: capacity}
}

func (b *bucket) findLive(id key.Key) int {
	for i, p := range b.live {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (b *bucket) findReplacement(id key.Key) int {
	for i, p := range b.replacements {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// touch moves the live entry for id to the most-recently-seen end and
// raises its LastSeen. It reports whether id was present.
func (b *bucket) touch(id key.Key, now float64) bool {
	i := b.findLive(id)
	if i < 0 {
		return false
	}
	p := b.live[i]
	if now > p.LastSeen {
		p.LastSeen = now
	}
	b.live = append(append(b.live[:i:i], b.live[i+1:]...), p)
	return true
}

// appendLive adds p at the most-recently-seen end. The caller must have
// checked for room and absence.
func (b *bucket) appendLive(p PeerInfo) {
	b.live = append(b.live, p)
}

func (b *bucket) full() bool {
	return len(b.live) >= b.capacity
}

// lru returns the least-recently-seen live entry.
func (b *bucket) lru() PeerInfo {
	return b.live[0]
}

// evict removes id from the live set without touching the replacement
// cache. It reports whether id was present.
func (b *bucket) evict(id key.Key) bool {
	i := b.findLive(id)
	if i < 0 {
		return false
	}
	b.live = append(b.live[:i:i], b.live[i+1:]...)
	return true
}

// removeLive evicts id from the live set and promotes the most recent
// replacement into the freed slot, if any. It reports whether id was
// present.
func (b *bucket) removeLive(id key.Key) bool {
	if !b.evict(id) {
		return false
	}
	if n := len(b.replacements); n > 0 && !b.full() {
		promoted := b.replacements[n-1]
		b.replacements = b.replacements[:n-1]
		b.live = append(b.live, promoted)
	}
	return true
}

// cacheReplacement remembers p in the replacement cache, evicting the
// least recent entry when the cache is full. A peer already present is
// refreshed instead.
func (b *bucket) cacheReplacement(p PeerInfo) {
	if i := b.findReplacement(p.ID); i >= 0 {
		if p.LastSeen < b.replacements[i].LastSeen {
			p.LastSeen = b.replacements[i].LastSeen
		}
		b.replacements = append(b.replacements[:i:i], b.replacements[i+1:]...)
	} else if len(b.replacements) >= b.capacity {
		b.replacements = b.replacements[1:]
	}
	b.replacements = append(b.replacements, p)
}

func (b *bucket) removeReplacement(id key.Key) bool {
	i := b.findReplacement(id)
	if i < 0 {
		return false
	}
	b.replacements = append(b.replacements[:i:i], b.replacements[i+1:]...)
	return true
}
