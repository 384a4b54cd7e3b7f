package dht

import (
	"math"
	"math/rand"
	"testing"

	"github.com/das67333/ipfs-simulator/pkg/identity"
	"github.com/das67333/ipfs-simulator/pkg/key"
)

func testIdentity(t *testing.T, seed int64) *identity.Identity {
	t.Helper()
	ident, err := identity.Generate(rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("identity.Generate: %v", err)
	}
	return ident
}

func TestRecordSignVerify(t *testing.T) {
	ident := testIdentity(t, 1)
	rec := NewRecord([]byte("block"), ident, 10, 100)

	if rec.Key != key.FromData([]byte("block")) {
		t.Fatalf("record key is not the content fingerprint")
	}
	if rec.PublishedAt != 10 || rec.ExpiresAt != 110 {
		t.Fatalf("timestamps wrong: published=%v expires=%v", rec.PublishedAt, rec.ExpiresAt)
	}
	if err := rec.Verify(); err != nil {
		t.Fatalf("freshly signed record rejected: %v", err)
	}

	tampered := rec
	tampered.Value = []byte("other")
	if err := tampered.Verify(); err == nil {
		t.Fatalf("tampered record accepted")
	}

	forged := rec
	forged.PublishedAt = 99
	if err := forged.Verify(); err == nil {
		t.Fatalf("record with rewritten timestamp accepted")
	}
}

func TestRecordNoExpiration(t *testing.T) {
	ident := testIdentity(t, 2)
	rec := NewRecord([]byte("forever"), ident, 5, 0)
	if !math.IsInf(rec.ExpiresAt, 1) {
		t.Fatalf("zero interval must mean no expiry, got %v", rec.ExpiresAt)
	}
	if rec.Expired(1e12) {
		t.Fatalf("non-expiring record reported expired")
	}
}

func TestRecordRefresh(t *testing.T) {
	ident := testIdentity(t, 3)
	rec := NewRecord([]byte("data"), ident, 0, 50)
	fresh := rec.Refresh(ident, 40, 50)

	if !fresh.Same(rec) {
		t.Fatalf("refresh must preserve key, value and publisher")
	}
	if fresh.PublishedAt != 40 || fresh.ExpiresAt != 90 {
		t.Fatalf("refresh timestamps wrong: %+v", fresh)
	}
	if err := fresh.Verify(); err != nil {
		t.Fatalf("refreshed record rejected: %v", err)
	}
}

func TestStorePutLaterWins(t *testing.T) {
	ident := testIdentity(t, 4)
	s := NewRecordStore(false)

	older := NewRecord([]byte("v"), ident, 10, 0)
	newer := NewRecord([]byte("v"), ident, 20, 0)

	if !s.Put(newer) {
		t.Fatalf("initial put refused")
	}
	if s.Put(older) {
		t.Fatalf("older record must not overwrite a newer one")
	}
	got, ok := s.Get(older.Key, 30)
	if !ok || got.PublishedAt != 20 {
		t.Fatalf("store kept the wrong record: %+v", got)
	}

	if !s.Put(newer.Refresh(ident, 40, 0)) {
		t.Fatalf("refreshed record must overwrite")
	}
}

func TestStoreExpiration(t *testing.T) {
	ident := testIdentity(t, 5)
	s := NewRecordStore(true)

	rec := NewRecord([]byte("ttl"), ident, 0, 10)
	s.Put(rec)

	if _, ok := s.Get(rec.Key, 5); !ok {
		t.Fatalf("live record invisible")
	}
	// Expired but not yet swept: Get must already refuse it.
	if _, ok := s.Get(rec.Key, 10); ok {
		t.Fatalf("expired record still visible before sweep")
	}

	removed := s.Sweep(10)
	if len(removed) != 1 || removed[0].Key != rec.Key {
		t.Fatalf("sweep removed %v", removed)
	}
	if s.Len() != 0 {
		t.Fatalf("store not empty after sweep")
	}
}

func TestStoreSweepDisabled(t *testing.T) {
	ident := testIdentity(t, 6)
	s := NewRecordStore(false)
	s.Put(NewRecord([]byte("keep"), ident, 0, 10))

	if removed := s.Sweep(1e9); removed != nil {
		t.Fatalf("sweep must be a no-op when expiration is disabled")
	}
	if s.Len() != 1 {
		t.Fatalf("record vanished with expiration disabled")
	}
}

func TestStoreKeysSorted(t *testing.T) {
	ident := testIdentity(t, 7)
	s := NewRecordStore(false)
	for _, v := range []string{"a", "b", "c", "d", "e"} {
		s.Put(NewRecord([]byte(v), ident, 0, 0))
	}
	keys := s.Keys()
	for i := 1; i < len(keys); i++ {
		if keys[i].Less(keys[i-1]) {
			t.Fatalf("keys not sorted at %d", i)
		}
	}
}
