package pow

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrExponentOutOfRange is returned when the compact exponent would
	// place the mantissa outside of the 32-byte target.
	ErrExponentOutOfRange = errors.New("compact exponent out of range")

	// ErrInvalidCompact is returned when a compact bits string is not
	// exactly 8 hex digits.
	ErrInvalidCompact = errors.New("invalid compact bits")

	// ErrInvalidTarget is returned when a target string can not be decoded.
	ErrInvalidTarget = errors.New("invalid target")
)

const (
	// TargetSize is the number of bytes of an expanded target.
	TargetSize = 32

	mantissaMask = 0x007fffff
)

// CompactBits is the 32-bit compact encoding of a difficulty target. The
// top byte is the exponent, the low 23 bits the mantissa. The sign bit is
// ignored.
type CompactBits uint32

// Exponent returns the size byte of the compact encoding.
func (b CompactBits) Exponent() int {
	return int(uint32(b) >> 24)
}

// Mantissa returns the 23-bit mantissa of the compact encoding.
func (b CompactBits) Mantissa() uint32 {
	return uint32(b) & mantissaMask
}

// String returns the compact bits as 8 hex digits.
func (b CompactBits) String() string {
	return fmt.Sprintf("%08x", uint32(b))
}

// ParseCompactHex decodes compact bits given as 8 hex digits, for example
// the "bits" field of a block template.
func ParseCompactHex(s string) (CompactBits, error) {
	if len(s) != 8 {
		return 0, ErrInvalidCompact
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return 0, ErrInvalidCompact
	}
	return CompactBits(binary.BigEndian.Uint32(raw)), nil
}

// Target is a 256-bit big-endian number. A hash solves a block when it is
// strictly below the target.
type Target [TargetSize]byte

// CompactToTarget expands compact bits into a Target.
//
// An exponent that would write the mantissa before the first byte yields
// the all-zero target, which no hash can satisfy, together with
// ErrExponentOutOfRange.
func CompactToTarget(bits CompactBits) (Target, error) {
	var t Target
	exponent := bits.Exponent()
	mantissa := bits.Mantissa()

	if exponent <= 3 {
		value := mantissa >> (8 * uint(3-exponent))
		t[29] = byte(value >> 16)
		t[30] = byte(value >> 8)
		t[31] = byte(value)
		return t, nil
	}

	idx := TargetSize - exponent
	if idx < 0 {
		return Target{}, fmt.Errorf("%w: exponent %d", ErrExponentOutOfRange, exponent)
	}
	t[idx] = byte(mantissa >> 16)
	t[idx+1] = byte(mantissa >> 8)
	t[idx+2] = byte(mantissa)

	return t, nil
}

// ParseTarget decodes a target announced by a pool. Both a literal 64 hex
// digit target and 8 hex digit compact bits are accepted.
func ParseTarget(s string) (Target, error) {
	switch len(s) {
	case 2 * TargetSize:
		var t Target
		if _, err := hex.Decode(t[:], []byte(s)); err != nil {
			return Target{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
		}
		return t, nil
	case 8:
		bits, err := ParseCompactHex(s)
		if err != nil {
			return Target{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
		}
		return CompactToTarget(bits)
	default:
		return Target{}, fmt.Errorf("%w: unexpected length %d", ErrInvalidTarget, len(s))
	}
}

// IsZero reports whether the target is the impossible all-zero target.
func (t Target) IsZero() bool {
	return t == Target{}
}

// Big returns the target as a big integer.
func (t Target) Big() *big.Int {
	return new(big.Int).SetBytes(t[:])
}

// String returns the target as 64 hex digits.
func (t Target) String() string {
	return hex.EncodeToString(t[:])
}

// HashBelowTarget compares the digest against the target as two big-endian
// numbers and reports whether the digest is strictly smaller.
func HashBelowTarget(hash *Hash, target *Target) bool {
	return bytes.Compare(hash[:], target[:]) < 0
}
