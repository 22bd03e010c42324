package cpuminer

import (
	"fmt"
	"math"

	"github.com/abesuite/abe-powminer/consensus/pow"
)

const (
	// progressInterval is how often, in nonces, a strided goroutine reports
	// the nonce it reached. A goroutine reports a multiple of it when it
	// steps onto one, never on the first nonce of its range.
	progressInterval = 1000000

	// hashrateInterval is how many attempts the solo search makes between
	// hashrate updates.
	hashrateInterval = 1000000

	// attemptBatch is how many attempts a goroutine makes before publishing
	// its count and refreshing its copy of the shared range.
	attemptBatch = 4096
)

// FullRange is the whole 32-bit header nonce space.
var FullRange = NonceRange{Start: 0, End: math.MaxUint32}

// NonceRange is a closed interval of nonces.
type NonceRange struct {
	Start uint64
	End   uint64
}

// Valid reports whether the range is not empty.
func (r NonceRange) Valid() bool {
	return r.Start <= r.End
}

// Contains reports whether nonce falls inside the range.
func (r NonceRange) Contains(nonce uint64) bool {
	return nonce >= r.Start && nonce <= r.End
}

// Clamp limits the end of the range to max.
func (r NonceRange) Clamp(max uint64) NonceRange {
	if r.End > max {
		r.End = max
	}
	return r
}

// Middle returns the middle half of the range, from one quarter to three
// quarters of its size.
func (r NonceRange) Middle() NonceRange {
	span := r.End - r.Start
	var quarter uint64
	if span == math.MaxUint64 {
		quarter = 1 << 62
	} else {
		quarter = (span + 1) / 4
	}
	mid := NonceRange{Start: r.Start + quarter, End: r.Start + 3*quarter}
	if mid.End < mid.Start {
		mid.End = mid.Start
	}
	return mid
}

func (r NonceRange) String() string {
	return fmt.Sprintf("[%#x - %#x]", r.Start, r.End)
}

// Solution is a nonce whose digest is below the target.
type Solution struct {
	ThreadID int
	Nonce    uint64
	Hash     pow.Hash
}

// Reporter receives the events of a strided search. Implementations must be
// safe for concurrent use since every search goroutine reports directly.
type Reporter interface {
	// ReportSolution is called once by the goroutine that found a
	// solution, before the search stops.
	ReportSolution(sol *Solution)

	// ReportProgress is called whenever a goroutine reaches a nonce that is
	// a multiple of one million.
	ReportProgress(threadID int, nonce uint64)
}
