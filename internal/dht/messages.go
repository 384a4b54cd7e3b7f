package dht

import (
	"github.com/das67333/ipfs-simulator/pkg/constants"
	"github.com/das67333/ipfs-simulator/pkg/key"
)

// RPC messages exchanged between peers over the virtual network. Every
// message carries the sender's PeerInfo so the receiver can feed its
// routing table, and responses echo the query id so initiators can match
// them and drop late arrivals.

// PingRequest probes a peer for liveness during bucket maintenance.
type PingRequest struct {
	From  PeerInfo `cbor:"from"`
	Nonce uint64   `cbor:"nonce"`
}

// PingResponse answers a PingRequest.
type PingResponse struct {
	From  PeerInfo `cbor:"from"`
	Nonce uint64   `cbor:"nonce"`
}

// FindNodeRequest asks for the receiver's closest peers to Target.
type FindNodeRequest struct {
	From    PeerInfo `cbor:"from"`
	QueryID uint64   `cbor:"query_id"`
	Target  key.Key  `cbor:"target"`
}

// FindNodeResponse carries the receiver's locally closest peers.
type FindNodeResponse struct {
	From    PeerInfo   `cbor:"from"`
	QueryID uint64     `cbor:"query_id"`
	Closest []PeerInfo `cbor:"closest"`
}

// FindValueRequest asks for a record, falling back to closest peers.
type FindValueRequest struct {
	From    PeerInfo `cbor:"from"`
	QueryID uint64   `cbor:"query_id"`
	Key     key.Key  `cbor:"key"`
}

// FindValueResponse carries either the record or the receiver's closest
// peers, never both.
type FindValueResponse struct {
	From    PeerInfo   `cbor:"from"`
	QueryID uint64     `cbor:"query_id"`
	Closest []PeerInfo `cbor:"closest,omitempty"`
	Record  *Record    `cbor:"record,omitempty"`
}

// StoreRequest asks the receiver to store a record.
type StoreRequest struct {
	From    PeerInfo `cbor:"from"`
	QueryID uint64   `cbor:"query_id"`
	Record  Record   `cbor:"record"`
}

// StoreResponse acknowledges a StoreRequest.
type StoreResponse struct {
	From    PeerInfo `cbor:"from"`
	QueryID uint64   `cbor:"query_id"`
	Stored  bool     `cbor:"stored"`
}

// messageKind maps a message to its wire kind, for telemetry.
func messageKind(msg any) uint16 {
	switch msg.(type) {
	case *PingRequest:
		return constants.KindPing
	case *PingResponse:
		return constants.KindPong
	case *FindNodeRequest:
		return constants.KindFindNode
	case *FindNodeResponse:
		return constants.KindFindNodeResponse
	case *FindValueRequest:
		return constants.KindFindValue
	case *FindValueResponse:
		return constants.KindFindValueResponse
	case *StoreRequest:
		return constants.KindStore
	case *StoreResponse:
		return constants.KindStoreResponse
	default:
		return 0
	}
}
