// Package key implements 256-bit identifiers in the DHT keyspace and the
// XOR metric over them. Keys identify both peers and content-addressed
// records.
package key

import (
	"encoding/hex"
	"math/rand"

	"lukechampine.com/blake3"
)

// Size is the width of a Key in bytes.
const Size = 32

// Bits is the width of a Key in bits.
const Bits = Size * 8

// Key is a fixed-width 256-bit identifier. The zero value is a valid key.
type Key [Size]byte

// Distance is the bitwise XOR of two keys, compared as a 256-bit
// big-endian unsigned integer.
type Distance [Size]byte

// FromData derives a content-addressed key from raw bytes using BLAKE3-256.
func FromData(data []byte) Key {
	return Key(blake3.Sum256(data))
}

// FromHex parses a 64-character hex string into a Key.
func FromHex(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, err
	}
	if len(b) != Size {
		return k, hex.ErrLength
	}
	copy(k[:], b)
	return k, nil
}

// Random returns a key drawn uniformly from the keyspace using the given
// deterministic source.
func Random(rng *rand.Rand) Key {
	var k Key
	for i := range k {
		k[i] = byte(rng.Intn(256))
	}
	return k
}

// ForCPL returns a random key whose common prefix length with local is
// exactly cpl. Used to pick refresh targets inside a bucket's range.
// cpl must be in [0, Bits).
func ForCPL(local Key, cpl int, rng *rand.Rand) Key {
	k := Random(rng)
	// Copy the shared prefix, then flip the bit right after it.
	for i := 0; i < cpl/8; i++ {
		k[i] = local[i]
	}
	byteIdx, bitIdx := cpl/8, uint(cpl%8)
	mask := byte(0xff) << (8 - bitIdx)
	k[byteIdx] = (local[byteIdx] & mask) | (k[byteIdx] &^ mask)
	flip := byte(1) << (7 - bitIdx)
	k[byteIdx] = (k[byteIdx] &^ flip) | (^local[byteIdx] & flip)
	return k
}

// Distance returns the XOR distance between two keys.
func (k Key) Distance(other Key) Distance {
	var d Distance
	for i := 0; i < Size; i++ {
		d[i] = k[i] ^ other[i]
	}
	return d
}

// CommonPrefixLen returns the number of leading bits shared by two keys,
// in [0, Bits]. It is Bits when the keys are equal.
func (k Key) CommonPrefixLen(other Key) int {
	for i := 0; i < Size; i++ {
		xor := k[i] ^ other[i]
		if xor == 0 {
			continue
		}
		n := 0
		for xor&0x80 == 0 {
			xor <<= 1
			n++
		}
		return i*8 + n
	}
	return Bits
}

// Equal reports whether two keys are identical.
func (k Key) Equal(other Key) bool {
	return k == other
}

// Less reports the lexicographic (big-endian numeric) order of two keys.
// It is the tie-break for equal distances so that closest-k sets are
// deterministic.
func (k Key) Less(other Key) bool {
	for i := 0; i < Size; i++ {
		if k[i] != other[i] {
			return k[i] < other[i]
		}
	}
	return false
}

// Bytes returns the key as a byte slice.
func (k Key) Bytes() []byte {
	return k[:]
}

// String returns the hex representation of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// ShortString returns an abbreviated hex form for logging.
func (k Key) ShortString() string {
	return hex.EncodeToString(k[:6])
}

// Cmp compares two distances as 256-bit unsigned integers. It returns -1,
// 0 or +1.
func (d Distance) Cmp(other Distance) int {
	for i := 0; i < Size; i++ {
		if d[i] != other[i] {
			if d[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether d is strictly smaller than other.
func (d Distance) Less(other Distance) bool {
	return d.Cmp(other) < 0
}

// IsZero reports whether the distance is zero, i.e. the keys were equal.
func (d Distance) IsZero() bool {
	return d == Distance{}
}

// Closer reports whether a is closer to target than b. Equal distances
// fall back to the lexicographic order of a and b, so the relation is a
// strict total order for distinct keys.
func Closer(a, b, target Key) bool {
	switch a.Distance(target).Cmp(b.Distance(target)) {
	case -1:
		return true
	case 1:
		return false
	default:
		return a.Less(b)
	}
}
