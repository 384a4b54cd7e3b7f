package identity

import (
	"math/rand"
	"testing"
)

func TestGenerateDeterministic(t *testing.T) {
	id1, err := Generate(rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	id2, err := Generate(rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if id1.Key() != id2.Key() {
		t.Fatalf("identities from the same seed differ: %s vs %s", id1.Key(), id2.Key())
	}

	id3, err := Generate(rand.New(rand.NewSource(43)))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if id1.Key() == id3.Key() {
		t.Fatalf("identities from different seeds collide")
	}
}

func TestKeyMatchesPublicKey(t *testing.T) {
	id, err := Generate(rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if id.Key() != FromPublicKey(id.SigningPublicKey) {
		t.Fatalf("identity key does not match the public key fingerprint")
	}
}

func TestSignVerify(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	id, err := Generate(rng)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	msg := []byte("record body")
	sig := id.Sign(msg)
	if !Verify(id.SigningPublicKey, msg, sig) {
		t.Fatalf("valid signature rejected")
	}
	if Verify(id.SigningPublicKey, []byte("tampered"), sig) {
		t.Fatalf("signature over different data accepted")
	}

	other, err := Generate(rng)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if Verify(other.SigningPublicKey, msg, sig) {
		t.Fatalf("signature accepted under the wrong key")
	}
	if Verify(nil, msg, sig) {
		t.Fatalf("malformed public key accepted")
	}
}
