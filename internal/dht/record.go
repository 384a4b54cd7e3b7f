package dht

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"math"

	"github.com/das67333/ipfs-simulator/pkg/codec/cborcanon"
	"github.com/das67333/ipfs-simulator/pkg/identity"
	"github.com/das67333/ipfs-simulator/pkg/key"
)

// Record is a content-addressed value stored in the DHT. Records are
// immutable once created; republishing produces a new record with
// refreshed timestamps but identical key, value and publisher.
type Record struct {
	Key          key.Key `cbor:"key"`
	Value        []byte  `cbor:"value"`
	Publisher    key.Key `cbor:"publisher"`
	PublisherKey []byte  `cbor:"publisher_key"`
	PublishedAt  float64 `cbor:"published_at"`
	ExpiresAt    float64 `cbor:"expires_at"`
	Sig          []byte  `cbor:"sig"`
}

// NewRecord builds and signs a record for value published by ident at
// logical time now. An expiration interval of zero means the record
// never expires.
func NewRecord(value []byte, ident *identity.Identity, now, expirationInterval float64) Record {
	expires := math.Inf(1)
	if expirationInterval > 0 {
		expires = now + expirationInterval
	}
	rec := Record{
		Key:          key.FromData(value),
		Value:        append([]byte(nil), value...),
		Publisher:    ident.Key(),
		PublisherKey: append([]byte(nil), ident.SigningPublicKey...),
		PublishedAt:  now,
		ExpiresAt:    expires,
	}
	rec.Sig = ident.Sign(rec.signedBytes())
	return rec
}

// Refresh returns a republished copy of the record with new timestamps.
func (r Record) Refresh(ident *identity.Identity, now, expirationInterval float64) Record {
	return NewRecord(r.Value, ident, now, expirationInterval)
}

// signedBytes is the canonical encoding of the record without its
// signature; both signing and verification run over these bytes.
func (r Record) signedBytes() []byte {
	unsigned := r
	unsigned.Sig = nil
	return cborcanon.MustMarshal(&unsigned)
}

// Verify checks the record's integrity: the key must be the fingerprint
// of the value, the publisher must be the fingerprint of the publisher's
// public key, and the signature must be valid.
func (r Record) Verify() error {
	if r.Key != key.FromData(r.Value) {
		return fmt.Errorf("record key does not match value fingerprint")
	}
	if r.Publisher != key.FromData(r.PublisherKey) {
		return fmt.Errorf("publisher id does not match public key")
	}
	if len(r.PublisherKey) != ed25519.PublicKeySize {
		return fmt.Errorf("malformed publisher public key")
	}
	if !identity.Verify(r.PublisherKey, r.signedBytes(), r.Sig) {
		return fmt.Errorf("invalid record signature")
	}
	if r.ExpiresAt <= r.PublishedAt {
		return fmt.Errorf("record expires before publication")
	}
	return nil
}

// Expired reports whether the record's lifetime has passed at now.
func (r Record) Expired(now float64) bool {
	return r.ExpiresAt <= now
}

// Same reports whether two records carry the same key, value and
// publisher, ignoring timestamps and signatures.
func (r Record) Same(other Record) bool {
	return r.Key == other.Key &&
		r.Publisher == other.Publisher &&
		bytes.Equal(r.Value, other.Value)
}
