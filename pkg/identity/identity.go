// Package identity implements simulated peer identities: an Ed25519
// signing keypair and the DHT key derived from the public key. Keypairs
// are generated from the simulation's seeded random stream so that a run
// is reproducible from its seed alone.
package identity

import (
	"crypto/ed25519"
	"fmt"
	"io"

	"github.com/das67333/ipfs-simulator/pkg/key"
)

// Identity is a peer's signing keypair together with its derived DHT key.
type Identity struct {
	SigningPublicKey  ed25519.PublicKey
	SigningPrivateKey ed25519.PrivateKey

	kadKey key.Key
}

// Generate creates a new identity, drawing key material from rng.
// Passing the simulation's seeded stream keeps peer ids deterministic.
func Generate(rng io.Reader) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rng)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Ed25519 key pair: %w", err)
	}
	return &Identity{
		SigningPublicKey:  pub,
		SigningPrivateKey: priv,
		kadKey:            key.FromData(pub),
	}, nil
}

// FromPublicKey derives the DHT key that identifies the holder of pub.
func FromPublicKey(pub ed25519.PublicKey) key.Key {
	return key.FromData(pub)
}

// Key returns the 256-bit DHT key of this identity, the BLAKE3-256
// fingerprint of the public key.
func (id *Identity) Key() key.Key {
	return id.kadKey
}

// Sign signs data with the identity's private key.
func (id *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(id.SigningPrivateKey, data)
}

// Verify checks sig over data against pub.
func Verify(pub ed25519.PublicKey, data, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}
