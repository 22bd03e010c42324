package cpuminer

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abesuite/abe-powminer/consensus/pow"
	"golang.org/x/sync/errgroup"
)

// DefaultRecenterInterval is how long a solo search samples a range before
// narrowing it to its middle half.
const DefaultRecenterInterval = 10 * time.Minute

// SoloConfig is a descriptor containing the solo search configuration.
type SoloConfig struct {
	// Threads is the number of search goroutines. Values below one mean
	// one.
	Threads int

	// Nonces is the initial range nonces are drawn from. The zero value
	// means FullRange.
	Nonces NonceRange

	// RecenterInterval is how often the range is replaced by its middle
	// half. Zero means DefaultRecenterInterval.
	RecenterInterval time.Duration
}

// SoloSearch draws random nonces from the middle half of a shared range
// until a digest below the target is found. Every RecenterInterval the range
// itself is narrowed to its middle half. The narrowing is a sampling
// heuristic, a solution may exist anywhere in the nonce space.
type SoloSearch struct {
	cfg    SoloConfig
	work   Work
	target pow.Target

	rangeMtx sync.Mutex
	nonces   NonceRange
	version  uint64

	attempts  uint64
	found     int32
	cancelled int32
	solution  *Solution

	rateMtx      sync.Mutex
	hashrate     float64
	lastAttempts uint64
	lastTime     time.Time
}

// NewSoloSearch returns a solo search for the given work and target.
func NewSoloSearch(work Work, target pow.Target, cfg SoloConfig) *SoloSearch {
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.Nonces == (NonceRange{}) {
		cfg.Nonces = FullRange
	}
	if cfg.RecenterInterval <= 0 {
		cfg.RecenterInterval = DefaultRecenterInterval
	}
	return &SoloSearch{
		cfg:    cfg,
		work:   work,
		target: target,
		nonces: cfg.Nonces.Clamp(work.MaxNonce()),
	}
}

// Run searches until a solution is found or ctx is done. It returns only
// after every search goroutine has exited.
func (s *SoloSearch) Run(ctx context.Context) (*Solution, error) {
	s.rateMtx.Lock()
	s.lastTime = time.Now()
	s.rateMtx.Unlock()

	log.Infof("Solo search started with %d %s, range %v", s.cfg.Threads,
		pickNoun(s.cfg.Threads, "thread", "threads"), s.Range())

	var threads errgroup.Group
	seed := time.Now().UnixNano()
	for i := 0; i < s.cfg.Threads; i++ {
		threadID, work := i, s.work.Clone()
		rng := rand.New(rand.NewSource(seed + int64(threadID)))
		threads.Go(func() error {
			s.sample(threadID, work, rng)
			return nil
		})
	}

	finished := make(chan struct{})
	var supervisor errgroup.Group
	supervisor.Go(func() error {
		ticker := time.NewTicker(s.cfg.RecenterInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.recenter()
			case <-ctx.Done():
				atomic.StoreInt32(&s.cancelled, 1)
				return nil
			case <-finished:
				return nil
			}
		}
	})

	threads.Wait()
	close(finished)
	supervisor.Wait()

	if atomic.LoadInt32(&s.found) != 0 {
		return s.solution, nil
	}
	return nil, ctx.Err()
}

// Range returns the range nonces are currently drawn from.
func (s *SoloSearch) Range() NonceRange {
	s.rangeMtx.Lock()
	defer s.rangeMtx.Unlock()
	return s.nonces
}

// Attempts returns the number of digests computed so far.
func (s *SoloSearch) Attempts() uint64 {
	return atomic.LoadUint64(&s.attempts)
}

// Hashrate returns the most recent hashes per second estimate.
func (s *SoloSearch) Hashrate() float64 {
	s.rateMtx.Lock()
	defer s.rateMtx.Unlock()
	return s.hashrate
}

func (s *SoloSearch) recenter() {
	s.rangeMtx.Lock()
	s.nonces = s.nonces.Middle()
	s.version++
	nonces := s.nonces
	s.rangeMtx.Unlock()

	log.Infof("Range reset: %v", nonces)
}

func (s *SoloSearch) snapshot() (NonceRange, uint64) {
	s.rangeMtx.Lock()
	defer s.rangeMtx.Unlock()
	return s.nonces.Middle(), s.version
}

func (s *SoloSearch) addAttempts(n uint64) {
	total := atomic.AddUint64(&s.attempts, n)
	if (total-n)/hashrateInterval == total/hashrateInterval {
		return
	}

	now := time.Now()
	s.rateMtx.Lock()
	elapsed := now.Sub(s.lastTime).Seconds()
	if elapsed > 0 {
		s.hashrate = float64(total-s.lastAttempts) / elapsed
	}
	s.lastAttempts = total
	s.lastTime = now
	rate := s.hashrate
	s.rateMtx.Unlock()

	log.Infof("Hashes: %d | Rate: %.2f H/s", total, rate)
}

func (s *SoloSearch) sample(threadID int, work Work, rng *rand.Rand) {
	window, version := s.snapshot()
	var local uint64
	defer func() {
		if local > 0 {
			s.addAttempts(local)
		}
	}()

	for {
		if atomic.LoadInt32(&s.found) != 0 || atomic.LoadInt32(&s.cancelled) != 0 {
			return
		}

		nonce := randomNonce(rng, window)
		hash := work.Digest(nonce)
		local++

		if pow.HashBelowTarget(&hash, &s.target) {
			if atomic.CompareAndSwapInt32(&s.found, 0, 1) {
				s.solution = &Solution{
					ThreadID: threadID,
					Nonce:    nonce,
					Hash:     hash,
				}
				log.Infof("Solution found by thread %d: nonce %#x hash %v",
					threadID, nonce, hash)
			}
			return
		}

		if local == attemptBatch {
			s.addAttempts(local)
			local = 0

			s.rangeMtx.Lock()
			current := s.version
			s.rangeMtx.Unlock()
			if current != version {
				window, version = s.snapshot()
			}
		}
	}
}

// randomNonce draws a nonce uniformly from the closed range.
func randomNonce(rng *rand.Rand, r NonceRange) uint64 {
	span := r.End - r.Start
	if span == math.MaxUint64 {
		return rng.Uint64()
	}
	return r.Start + rng.Uint64()%(span+1)
}

// pickNoun returns the singular or plural form of a noun depending
// on the count n.
func pickNoun(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
