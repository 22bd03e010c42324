package cpuminer

import (
	"context"
	"sync/atomic"

	"github.com/abesuite/abe-powminer/consensus/pow"
	"golang.org/x/sync/errgroup"
)

// StrideSearch splits a nonce range across a fixed number of goroutines.
// Goroutine i visits Start+i, Start+i+N, Start+i+2N and so on up to End, so
// together they cover the range exactly once. The first goroutine to find a
// digest below the target wins and every other goroutine stops at its next
// attempt.
//
// A StrideSearch runs once. A new job gets a new StrideSearch.
type StrideSearch struct {
	work     Work
	target   pow.Target
	nonces   NonceRange
	threads  int
	reporter Reporter

	found     int32
	cancelled int32
	solution  *Solution
	attempts  uint64
}

// NewStrideSearch returns a search over nonces for the given work. The range
// is clamped to the largest nonce the work can encode. threads below one
// is treated as one.
func NewStrideSearch(work Work, target pow.Target, nonces NonceRange,
	threads int, reporter Reporter) *StrideSearch {

	if threads < 1 {
		threads = 1
	}
	return &StrideSearch{
		work:     work,
		target:   target,
		nonces:   nonces.Clamp(work.MaxNonce()),
		threads:  threads,
		reporter: reporter,
	}
}

// Run searches until a solution is found, the range is exhausted or ctx is
// done. It returns only after every search goroutine has exited.
//
// The returned solution is nil when the range was exhausted. When ctx ended
// the search first, its error is returned.
func (s *StrideSearch) Run(ctx context.Context) (*Solution, error) {
	var threads errgroup.Group
	for i := 0; i < s.threads; i++ {
		threadID, work := i, s.work.Clone()
		threads.Go(func() error {
			s.scan(threadID, work)
			return nil
		})
	}

	finished := make(chan struct{})
	var watcher errgroup.Group
	watcher.Go(func() error {
		select {
		case <-ctx.Done():
			atomic.StoreInt32(&s.cancelled, 1)
		case <-finished:
		}
		return nil
	})

	threads.Wait()
	close(finished)
	watcher.Wait()

	if atomic.LoadInt32(&s.found) != 0 {
		return s.solution, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, nil
}

// Attempts returns the number of digests computed so far.
func (s *StrideSearch) Attempts() uint64 {
	return atomic.LoadUint64(&s.attempts)
}

func (s *StrideSearch) stopped() bool {
	return atomic.LoadInt32(&s.found) != 0 || atomic.LoadInt32(&s.cancelled) != 0
}

func (s *StrideSearch) scan(threadID int, work Work) {
	if !s.nonces.Valid() || uint64(threadID) > s.nonces.End-s.nonces.Start {
		return
	}

	step := uint64(s.threads)
	nonce := s.nonces.Start + uint64(threadID)
	var local uint64
	defer func() {
		atomic.AddUint64(&s.attempts, local)
	}()

	for {
		if s.stopped() {
			return
		}

		hash := work.Digest(nonce)
		local++
		if local == attemptBatch {
			atomic.AddUint64(&s.attempts, local)
			local = 0
		}

		if pow.HashBelowTarget(&hash, &s.target) {
			if atomic.CompareAndSwapInt32(&s.found, 0, 1) {
				s.solution = &Solution{
					ThreadID: threadID,
					Nonce:    nonce,
					Hash:     hash,
				}
				if s.reporter != nil {
					s.reporter.ReportSolution(s.solution)
				}
			}
			return
		}

		if s.nonces.End-nonce < step {
			return
		}
		nonce += step

		if nonce%progressInterval == 0 && s.reporter != nil {
			s.reporter.ReportProgress(threadID, nonce)
		}
	}
}
