package dht

import "github.com/das67333/ipfs-simulator/pkg/key"

// QueryKind selects the RPC a query issues and how it completes.
type QueryKind uint8

const (
	// QueryFindNode locates the k closest peers to a target key.
	QueryFindNode QueryKind = iota
	// QueryFindValue retrieves a record, collecting write-back targets.
	QueryFindValue
	// QueryPut is the FindNode precursor of a STORE fan-out.
	QueryPut
)

// String returns the kind's wire name.
func (k QueryKind) String() string {
	switch k {
	case QueryFindNode:
		return "find_node"
	case QueryFindValue:
		return "find_value"
	case QueryPut:
		return "put"
	default:
		return "unknown"
	}
}

type candidateStatus uint8

const (
	statusPending candidateStatus = iota
	statusInFlight
	statusResponded
	statusFailed
)

type candidate struct {
	info   PeerInfo
	status candidateStatus
	depth  int // 1 for table seeds, parent+1 for learned peers
}

// QueryResult is what a finished query hands back to its initiator.
type QueryResult struct {
	Kind      QueryKind
	Target    key.Key
	Closest   []PeerInfo // the k closest responded peers, closest first
	Record    *Record    // FindValue only
	Holder    *PeerInfo  // FindValue only: the peer that returned the record
	WriteBack []PeerInfo // FindValue only: closest responders without the value
	Hops      int        // RPCs dispatched by the initiator
	Depth     int        // deepest iteration level that responded
	TimedOut  bool
}

// query is the iterative α-parallel lookup state machine. It is advanced
// purely by its owner's calls; the owner performs all sends and timer
// scheduling, so the machine itself never touches the network.
type query struct {
	id     uint64
	kind   QueryKind
	target key.Key
	self   key.Key

	k               int
	alpha           int
	cachingMaxPeers int
	deadline        float64

	candidates map[key.Key]*candidate
	pending    []key.Key // sorted closest-first
	responded  []key.Key // sorted closest-first
	inFlight   int

	record   *Record
	holder   *PeerInfo
	hops     int
	maxDepth int
	done     bool
	timedOut bool
}

// newQuery seeds the candidate set with the initiator's closest known
// peers, all marked pending.
func newQuery(id uint64, kind QueryKind, target, self key.Key, seeds []PeerInfo,
	k, alpha, cachingMaxPeers int, deadline float64) *query {

	q := &query{
		id:              id,
		kind:            kind,
		target:          target,
		self:            self,
		k:               k,
		alpha:           alpha,
		cachingMaxPeers: cachingMaxPeers,
		deadline:        deadline,
		candidates:      make(map[key.Key]*candidate),
	}
	for _, p := range seeds {
		q.insert(p, 1)
	}
	return q
}

// insert adds p as a pending candidate unless it is already tracked.
func (q *query) insert(p PeerInfo, depth int) {
	if p.ID == q.self {
		return
	}
	if _, ok := q.candidates[p.ID]; ok {
		return
	}
	q.candidates[p.ID] = &candidate{info: p, status: statusPending, depth: depth}
	q.pending = insertSorted(q.pending, p.ID, q.target)
}

// next pops candidates to dispatch until α RPCs are in flight, marking
// each in-flight. It also detects convergence: when the closest pending
// candidate cannot improve the k closest responders, or nothing is left
// to wait for, the query completes instead of dispatching.
func (q *query) next() []PeerInfo {
	var out []PeerInfo
	for !q.done && q.inFlight < q.alpha && len(q.pending) > 0 {
		best := q.pending[0]
		if len(q.responded) >= q.k {
			kth := q.responded[q.k-1]
			if !key.Closer(best, kth, q.target) {
				q.complete(false)
				return out
			}
		}
		q.pending = q.pending[1:]
		c := q.candidates[best]
		c.status = statusInFlight
		q.inFlight++
		q.hops++
		out = append(out, c.info)
	}
	if !q.done && len(q.pending) == 0 && q.inFlight == 0 {
		q.complete(false)
	}
	return out
}

// onResponse feeds a peer's answer into the machine and returns the next
// candidates to dispatch. Late or duplicate responses are ignored.
func (q *query) onResponse(from key.Key, closer []PeerInfo, rec *Record) []PeerInfo {
	if q.done {
		return nil
	}
	c, ok := q.candidates[from]
	if !ok || c.status != statusInFlight {
		return nil
	}
	c.status = statusResponded
	q.inFlight--
	q.responded = insertSorted(q.responded, from, q.target)
	if c.depth > q.maxDepth {
		q.maxDepth = c.depth
	}
	for _, p := range closer {
		q.insert(p, c.depth+1)
	}

	if q.kind == QueryFindValue && rec != nil {
		q.record = rec
		info := c.info
		q.holder = &info
		q.complete(false)
		return nil
	}
	return q.next()
}

// onFailure marks an in-flight candidate failed and returns the next
// candidates to dispatch.
func (q *query) onFailure(from key.Key) []PeerInfo {
	if q.done {
		return nil
	}
	c, ok := q.candidates[from]
	if !ok || c.status != statusInFlight {
		return nil
	}
	c.status = statusFailed
	q.inFlight--
	return q.next()
}

// onDeadline terminates the query, failing whatever is still in flight,
// and returns the peers whose RPCs were abandoned.
func (q *query) onDeadline() []PeerInfo {
	if q.done {
		return nil
	}
	var abandoned []PeerInfo
	for _, c := range q.candidates {
		if c.status == statusInFlight {
			c.status = statusFailed
			q.inFlight--
			abandoned = append(abandoned, c.info)
		}
	}
	SortClosest(abandoned, q.target)
	q.complete(true)
	return abandoned
}

func (q *query) complete(timedOut bool) {
	q.done = true
	q.timedOut = timedOut
}

func (q *query) finished() bool {
	return q.done
}

// result assembles the final QueryResult. Valid only once finished.
func (q *query) result() QueryResult {
	res := QueryResult{
		Kind:     q.kind,
		Target:   q.target,
		Record:   q.record,
		Holder:   q.holder,
		Hops:     q.hops,
		Depth:    q.maxDepth,
		TimedOut: q.timedOut,
	}
	n := len(q.responded)
	if n > q.k {
		n = q.k
	}
	for _, id := range q.responded[:n] {
		res.Closest = append(res.Closest, q.candidates[id].info)
	}
	if q.kind == QueryFindValue && q.record != nil {
		// Write-back targets: the closest peers that responded without
		// the value.
		for _, id := range q.responded {
			if len(res.WriteBack) >= q.cachingMaxPeers {
				break
			}
			if q.holder != nil && id == q.holder.ID {
				continue
			}
			res.WriteBack = append(res.WriteBack, q.candidates[id].info)
		}
	}
	return res
}

// insertSorted inserts id into ids keeping them sorted closest-first to
// target.
func insertSorted(ids []key.Key, id key.Key, target key.Key) []key.Key {
	lo, hi := 0, len(ids)
	for lo < hi {
		mid := (lo + hi) / 2
		if key.Closer(ids[mid], id, target) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	ids = append(ids, key.Key{})
	copy(ids[lo+1:], ids[lo:])
	ids[lo] = id
	return ids
}
