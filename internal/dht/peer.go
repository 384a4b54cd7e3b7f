package dht

import (
	"errors"
	"math/rand"

	"github.com/das67333/ipfs-simulator/internal/sim"
	"github.com/das67333/ipfs-simulator/internal/telemetry"
	"github.com/das67333/ipfs-simulator/internal/vnet"
	"github.com/das67333/ipfs-simulator/pkg/config"
	"github.com/das67333/ipfs-simulator/pkg/constants"
	"github.com/das67333/ipfs-simulator/pkg/identity"
	"github.com/das67333/ipfs-simulator/pkg/key"
)

// ErrNotFound is returned when a FindValue converges without any peer
// producing the record.
var ErrNotFound = errors.New("record not found")

// ErrPublishTimeout is returned when no STORE was acknowledged before
// the publication deadline.
var ErrPublishTimeout = errors.New("no store acknowledged before deadline")

// Params are the protocol knobs a peer runs with.
type Params struct {
	K               int
	Alpha           int
	QueryTimeout    float64
	CachingMaxPeers int

	RecordPublicationInterval float64
	RecordExpirationInterval  float64
	KBucketsRefreshInterval   float64

	EnableBootstrap    bool
	EnableRepublishing bool
}

// ParamsFromConfig extracts the peer parameters from a validated config.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		K:                         cfg.K,
		Alpha:                     cfg.Alpha,
		QueryTimeout:              cfg.QueryTimeout,
		CachingMaxPeers:           cfg.CachingMaxPeers,
		RecordPublicationInterval: cfg.RecordPublicationInterval,
		RecordExpirationInterval:  cfg.RecordExpirationInterval,
		KBucketsRefreshInterval:   cfg.KBucketsRefreshInterval,
		EnableBootstrap:           cfg.EnableBootstrap,
		EnableRepublishing:        cfg.EnableRepublishing,
	}
}

// PublishResult reports the outcome of a PublishData operation.
type PublishResult struct {
	Key    key.Key
	Stored int // STOREs acknowledged so far at report time
	Err    error
}

// RetrieveResult reports the outcome of a RetrieveData operation.
type RetrieveResult struct {
	Key       key.Key
	Value     []byte
	Closest   []PeerInfo // k closest responders, also set on NotFound
	WriteBack []PeerInfo
	Hops      int
	Depth     int
	Err       error
}

// Found reports whether the value was retrieved.
func (r RetrieveResult) Found() bool {
	return r.Err == nil
}

type putState struct {
	record   Record
	acks     int
	reported bool
	onDone   func(PublishResult)
}

type pingState struct {
	checked   PeerInfo
	candidate PeerInfo
}

// Peer is one simulated DHT node: an identity, a routing table, a record
// store and the set of queries it currently drives. It owns its state
// exclusively; all interaction with other peers goes through the virtual
// network.
type Peer struct {
	ident  *identity.Identity
	info   PeerInfo
	params Params

	table *RoutingTable
	store *RecordStore

	sched *sim.Scheduler
	net   *vnet.Network
	rng   *rand.Rand
	sink  *telemetry.Sink

	nextQueryID uint64
	queries     map[uint64]*query
	callbacks   map[uint64]func(QueryResult)
	puts        map[uint64]*putState

	nextNonce    uint64
	pendingPings map[uint64]pingState
	checking     map[key.Key]bool

	published map[key.Key]Record
}

// NewPeer creates a peer bound to addr on the given network.
func NewPeer(ident *identity.Identity, addr vnet.NodeAddr, params Params,
	sched *sim.Scheduler, net *vnet.Network, rng *rand.Rand, sink *telemetry.Sink) *Peer {

	p := &Peer{
		ident:  ident,
		info:   PeerInfo{ID: ident.Key(), Addr: addr},
		params: params,
		table:  NewRoutingTable(ident.Key(), params.K),
		store:  NewRecordStore(params.RecordExpirationInterval > 0),
		sched:  sched,
		net:    net,
		rng:    rng,
		sink:   sink,
		// Query id 0 is reserved for fire-and-forget STOREs (write-back),
		// so acknowledgements for them never credit a pending publication.
		nextQueryID:  1,
		queries:      make(map[uint64]*query),
		callbacks:    make(map[uint64]func(QueryResult)),
		puts:         make(map[uint64]*putState),
		pendingPings: make(map[uint64]pingState),
		checking:     make(map[key.Key]bool),
		published:    make(map[key.Key]Record),
	}
	net.Attach(addr, p)
	return p
}

// ID returns the peer's DHT key.
func (p *Peer) ID() key.Key { return p.info.ID }

// Addr returns the peer's network address.
func (p *Peer) Addr() vnet.NodeAddr { return p.info.Addr }

// Info returns the peer's own PeerInfo.
func (p *Peer) Info() PeerInfo { return p.info }

// Table exposes the routing table, for seeding and inspection.
func (p *Peer) Table() *RoutingTable { return p.table }

// Store exposes the record store, for inspection.
func (p *Peer) Store() *RecordStore { return p.store }

// Seed fills the routing table with the topology-provided neighbor set.
// Full buckets overflow into the replacement cache; no liveness checks
// run at bootstrap.
func (p *Peer) Seed(neighbors []PeerInfo) {
	for _, n := range neighbors {
		if lru := p.table.Observe(n, p.sched.Now()); lru != nil {
			p.table.CacheCandidate(n)
		}
	}
}

// Start schedules the peer's recurring duties: the bootstrap self-lookup,
// bucket refresh, and the record expiration sweep.
func (p *Peer) Start() {
	if p.params.EnableBootstrap {
		p.sched.Schedule(0, "bootstrap", func() {
			p.startQuery(QueryFindNode, p.info.ID, nil)
		})
	}
	if p.params.KBucketsRefreshInterval > 0 {
		p.sched.Schedule(p.params.KBucketsRefreshInterval, "refresh", p.refreshTick)
	}
	if p.params.RecordExpirationInterval > 0 {
		p.sched.Schedule(p.params.RecordExpirationInterval, "expire", p.expireTick)
	}
}

// PublishData makes the peer the publisher of value: it stores the
// record locally, locates the k closest peers to the record key, and
// sends each a STORE. The operation succeeds once one STORE is
// acknowledged before the deadline. Returns the record key immediately.
func (p *Peer) PublishData(value []byte, onDone func(PublishResult)) key.Key {
	now := p.sched.Now()
	rec := NewRecord(value, p.ident, now, p.params.RecordExpirationInterval)
	p.publishRecord(rec, onDone)
	if p.params.EnableRepublishing {
		if _, ok := p.published[rec.Key]; !ok {
			p.scheduleRepublish(rec.Key)
		}
	}
	p.published[rec.Key] = rec
	return rec.Key
}

// RetrieveData looks up the record for k, checking the local store
// first. The result is delivered through onDone once the lookup
// finishes.
func (p *Peer) RetrieveData(k key.Key, onDone func(RetrieveResult)) {
	if rec, ok := p.store.Get(k, p.sched.Now()); ok {
		if onDone != nil {
			onDone(RetrieveResult{Key: k, Value: rec.Value})
		}
		return
	}
	qid := p.nextQueryID
	p.nextQueryID++
	p.startQueryWithID(qid, QueryFindValue, k, func(res QueryResult) {
		out := RetrieveResult{
			Key:       k,
			Closest:   res.Closest,
			WriteBack: res.WriteBack,
			Hops:      res.Hops,
			Depth:     res.Depth,
		}
		if res.Record != nil {
			out.Value = res.Record.Value
			p.sink.ValueFound(p.sched.Now(), p.info.String(), qid)
			p.writeBack(*res.Record, res.WriteBack)
		} else {
			out.Err = ErrNotFound
			p.sink.ValueNotFound(p.sched.Now(), p.info.String(), qid)
		}
		if onDone != nil {
			onDone(out)
		}
	})
}

// publishRecord runs the Put composition for rec: a FindNode precursor
// on the record key, then a STORE fan-out to the k closest peers found.
// The whole operation shares one deadline, measured from its start.
func (p *Peer) publishRecord(rec Record, onDone func(PublishResult)) {
	p.store.Put(rec)
	start := p.sched.Now()
	qid := p.nextQueryID
	p.nextQueryID++
	ps := &putState{record: rec, onDone: onDone}
	p.puts[qid] = ps
	p.startQueryWithID(qid, QueryPut, rec.Key, func(res QueryResult) {
		if len(res.Closest) == 0 {
			p.finishPut(qid, ps, ErrPublishTimeout)
			return
		}
		for _, target := range res.Closest {
			p.sendRPC(target, &StoreRequest{From: p.senderInfo(), QueryID: qid, Record: rec}, qid)
		}
		remaining := start + p.params.QueryTimeout - p.sched.Now()
		p.sched.Schedule(remaining, "put_deadline", func() {
			if !ps.reported {
				p.finishPut(qid, ps, ErrPublishTimeout)
			}
		})
	})
}

func (p *Peer) finishPut(qid uint64, ps *putState, err error) {
	if ps.reported {
		return
	}
	ps.reported = true
	delete(p.puts, qid)
	if ps.onDone != nil {
		ps.onDone(PublishResult{Key: ps.record.Key, Stored: ps.acks, Err: err})
	}
}

// writeBack sends the retrieved record to the closest responders that
// did not have it, populating caches near the target key.
func (p *Peer) writeBack(rec Record, targets []PeerInfo) {
	for _, target := range targets {
		p.sendRPC(target, &StoreRequest{From: p.senderInfo(), Record: rec}, 0)
	}
}

// scheduleRepublish re-runs the publication for k on the configured
// cadence, for as long as this peer remains its publisher.
func (p *Peer) scheduleRepublish(k key.Key) {
	p.sched.Schedule(p.params.RecordPublicationInterval, "republish", func() {
		rec, ok := p.published[k]
		if !ok {
			return
		}
		fresh := rec.Refresh(p.ident, p.sched.Now(), p.params.RecordExpirationInterval)
		p.published[k] = fresh
		p.publishRecord(fresh, nil)
		p.scheduleRepublish(k)
	})
}

// refreshTick issues a FindNode for a random key in every bucket that
// has not seen a lookup within the refresh interval.
func (p *Peer) refreshTick() {
	now := p.sched.Now()
	for _, idx := range p.table.StaleBuckets(now, p.params.KBucketsRefreshInterval) {
		target := key.ForCPL(p.info.ID, idx, p.rng)
		p.startQuery(QueryFindNode, target, nil)
	}
	p.sched.Schedule(p.params.KBucketsRefreshInterval, "refresh", p.refreshTick)
}

// expireTick sweeps the record store on the expiration cadence.
func (p *Peer) expireTick() {
	now := p.sched.Now()
	for _, rec := range p.store.Sweep(now) {
		p.sink.RecordExpired(now, p.info.String(), rec.Key.ShortString())
	}
	p.sched.Schedule(p.params.RecordExpirationInterval, "expire", p.expireTick)
}

// startQuery creates a query seeded from the routing table and
// dispatches its first wave. It returns the query id.
func (p *Peer) startQuery(kind QueryKind, target key.Key, onDone func(QueryResult)) uint64 {
	qid := p.nextQueryID
	p.nextQueryID++
	p.startQueryWithID(qid, kind, target, onDone)
	return qid
}

// startQueryWithID is startQuery for callers that need the id wired into
// the completion callback before the query can possibly finish.
func (p *Peer) startQueryWithID(qid uint64, kind QueryKind, target key.Key, onDone func(QueryResult)) {
	now := p.sched.Now()
	seeds := p.table.Closest(target, p.params.K)
	q := newQuery(qid, kind, target, p.info.ID, seeds,
		p.params.K, p.params.Alpha, p.params.CachingMaxPeers, now+p.params.QueryTimeout)
	p.queries[qid] = q
	if onDone != nil {
		p.callbacks[qid] = onDone
	}
	p.sink.QueryStarted(now, p.info.String(), qid, kind.String(), target.ShortString())

	p.sched.Schedule(p.params.QueryTimeout, "query_deadline", func() {
		q, ok := p.queries[qid]
		if !ok {
			return
		}
		for _, abandoned := range q.onDeadline() {
			p.sink.RPCTimeout(p.sched.Now(), p.info.String(), abandoned.String(), qid)
		}
		p.finalizeQuery(qid, q)
	})

	p.dispatch(qid, q, q.next())
	if q.finished() {
		p.finalizeQuery(qid, q)
	}
}

// dispatch sends the query's RPC to each target.
func (p *Peer) dispatch(qid uint64, q *query, targets []PeerInfo) {
	for _, target := range targets {
		var msg any
		switch q.kind {
		case QueryFindValue:
			msg = &FindValueRequest{From: p.senderInfo(), QueryID: qid, Key: q.target}
		default:
			msg = &FindNodeRequest{From: p.senderInfo(), QueryID: qid, Target: q.target}
		}
		p.sendRPC(target, msg, qid)
	}
}

// finalizeQuery removes the query, notes the lookup for bucket refresh
// accounting, and fires the completion callback.
func (p *Peer) finalizeQuery(qid uint64, q *query) {
	if _, ok := p.queries[qid]; !ok {
		return
	}
	delete(p.queries, qid)
	res := q.result()
	now := p.sched.Now()
	if !res.TimedOut {
		p.table.NoteLookup(q.target, now)
	}
	p.sink.QueryCompleted(now, p.info.String(), qid, res.Hops, res.Depth, res.TimedOut)
	if cb, ok := p.callbacks[qid]; ok {
		delete(p.callbacks, qid)
		cb(res)
	}
}

func (p *Peer) senderInfo() PeerInfo {
	return PeerInfo{ID: p.info.ID, Addr: p.info.Addr, LastSeen: p.sched.Now()}
}

func (p *Peer) sendRPC(to PeerInfo, msg any, qid uint64) {
	p.sink.RPCSent(p.sched.Now(), p.info.String(), to.String(),
		constants.KindName(messageKind(msg)), qid)
	p.net.Send(p.info.Addr, to.Addr, msg)
}

// HandleMessage dispatches an inbound message. It implements
// vnet.Handler.
func (p *Peer) HandleMessage(from vnet.NodeAddr, msg any) {
	now := p.sched.Now()
	switch m := msg.(type) {
	case *PingRequest:
		p.observe(m.From)
		p.net.Send(p.info.Addr, from, &PingResponse{From: p.senderInfo(), Nonce: m.Nonce})

	case *PingResponse:
		p.observe(m.From)
		if st, ok := p.pendingPings[m.Nonce]; ok {
			delete(p.pendingPings, m.Nonce)
			delete(p.checking, st.checked.ID)
			p.table.ResolveLiveness(st.checked.ID, true, st.candidate, now)
		}

	case *FindNodeRequest:
		p.sink.RPCReceived(now, p.info.String(), m.From.String(), constants.KindName(constants.KindFindNode))
		p.observe(m.From)
		p.net.Send(p.info.Addr, from, &FindNodeResponse{
			From:    p.senderInfo(),
			QueryID: m.QueryID,
			Closest: p.table.Closest(m.Target, p.params.K),
		})

	case *FindNodeResponse:
		p.observe(m.From)
		if q, ok := p.queries[m.QueryID]; ok {
			p.dispatch(m.QueryID, q, q.onResponse(m.From.ID, m.Closest, nil))
			if q.finished() {
				p.finalizeQuery(m.QueryID, q)
			}
		}

	case *FindValueRequest:
		p.sink.RPCReceived(now, p.info.String(), m.From.String(), constants.KindName(constants.KindFindValue))
		p.observe(m.From)
		resp := &FindValueResponse{From: p.senderInfo(), QueryID: m.QueryID}
		if rec, ok := p.store.Get(m.Key, now); ok {
			resp.Record = &rec
		} else {
			resp.Closest = p.table.Closest(m.Key, p.params.K)
		}
		p.net.Send(p.info.Addr, from, resp)

	case *FindValueResponse:
		p.observe(m.From)
		if q, ok := p.queries[m.QueryID]; ok {
			p.dispatch(m.QueryID, q, q.onResponse(m.From.ID, m.Closest, m.Record))
			if q.finished() {
				p.finalizeQuery(m.QueryID, q)
			}
		}

	case *StoreRequest:
		p.sink.RPCReceived(now, p.info.String(), m.From.String(), constants.KindName(constants.KindStore))
		p.observe(m.From)
		stored := false
		if err := m.Record.Verify(); err == nil && !m.Record.Expired(now) {
			stored = p.store.Put(m.Record)
		}
		if stored {
			p.sink.RecordStored(now, p.info.String(), m.Record.Key.ShortString())
		}
		p.net.Send(p.info.Addr, from, &StoreResponse{
			From:    p.senderInfo(),
			QueryID: m.QueryID,
			Stored:  stored,
		})

	case *StoreResponse:
		p.observe(m.From)
		if ps, ok := p.puts[m.QueryID]; ok && m.Stored {
			ps.acks++
			if !ps.reported {
				p.finishPut(m.QueryID, ps, nil)
			}
		}
	}
}

// observe feeds a successful exchange with sender into the routing
// table, running the LRU liveness-check discipline when its bucket is
// full.
func (p *Peer) observe(sender PeerInfo) {
	if sender.ID == p.info.ID {
		return
	}
	now := p.sched.Now()
	sender.LastSeen = now
	lru := p.table.Observe(sender, now)
	if lru == nil {
		return
	}
	if p.checking[lru.ID] {
		// A liveness check for this bucket's LRU is already in flight;
		// remember the newcomer in the replacement cache.
		p.table.CacheCandidate(sender)
		return
	}
	p.checking[lru.ID] = true
	nonce := p.nextNonce
	p.nextNonce++
	p.pendingPings[nonce] = pingState{checked: *lru, candidate: sender}
	p.net.Send(p.info.Addr, lru.Addr, &PingRequest{From: p.senderInfo(), Nonce: nonce})
	p.sched.Schedule(p.params.QueryTimeout, "ping_deadline", func() {
		st, ok := p.pendingPings[nonce]
		if !ok {
			return
		}
		delete(p.pendingPings, nonce)
		delete(p.checking, st.checked.ID)
		p.table.ResolveLiveness(st.checked.ID, false, st.candidate, p.sched.Now())
	})
}
