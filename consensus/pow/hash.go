package pow

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// HashSize of array used to store hashes.
const HashSize = chainhash.HashSize

// Hash is a raw sha256 digest. The bytes are kept in the order the hash
// function produced them, which is also the big-endian magnitude compared
// against a Target.
type Hash [HashSize]byte

// ZeroHash is the Hash value of all zero bytes.
var ZeroHash Hash

// DoubleHash calculates sha256(sha256(b)).
func DoubleHash(b []byte) Hash {
	return Hash(chainhash.DoubleHashH(b))
}

// SingleHash calculates sha256(b).
func SingleHash(b []byte) Hash {
	return Hash(chainhash.HashH(b))
}

// Hex returns the hex encoding of the raw digest bytes.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// String returns the hash in display order (byte-reversed hex), the form
// block explorers and node RPCs print.
func (h Hash) String() string {
	return chainhash.Hash(h).String()
}

// Reversed returns a copy of h with the byte order flipped.
func (h Hash) Reversed() Hash {
	var r Hash
	for i := 0; i < HashSize; i++ {
		r[i] = h[HashSize-1-i]
	}
	return r
}

// IsEqual returns true if target is the same as hash.
func (h *Hash) IsEqual(target *Hash) bool {
	if h == nil && target == nil {
		return true
	}
	if h == nil || target == nil {
		return false
	}
	return *h == *target
}

// HashFromDisplay decodes a hash given in display order, the inverse of
// String.
func HashFromDisplay(s string) (Hash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return ZeroHash, err
	}
	return Hash(*h), nil
}
