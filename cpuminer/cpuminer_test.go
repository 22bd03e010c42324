package cpuminer

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/abesuite/abe-powminer/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingWork counts how often every nonce is hashed and never solves.
type recordingWork struct {
	mtx    *sync.Mutex
	visits map[uint64]int
}

func newRecordingWork() *recordingWork {
	return &recordingWork{mtx: new(sync.Mutex), visits: make(map[uint64]int)}
}

func (w *recordingWork) Digest(nonce uint64) pow.Hash {
	w.mtx.Lock()
	w.visits[nonce]++
	w.mtx.Unlock()
	var h pow.Hash
	for i := range h {
		h[i] = 0xff
	}
	return h
}

func (w *recordingWork) Clone() Work       { return w }
func (w *recordingWork) MaxNonce() uint64 { return math.MaxUint64 }

// solveAtWork solves exactly at the given nonces.
type solveAtWork struct {
	nonces map[uint64]bool
}

func (w *solveAtWork) Digest(nonce uint64) pow.Hash {
	var h pow.Hash
	if !w.nonces[nonce] {
		h[0] = 0xff
	}
	return h
}

func (w *solveAtWork) Clone() Work       { return w }
func (w *solveAtWork) MaxNonce() uint64 { return math.MaxUint64 }

type recordingReporter struct {
	mtx       sync.Mutex
	solutions []*Solution
	progress  []uint64
}

func (r *recordingReporter) ReportSolution(sol *Solution) {
	r.mtx.Lock()
	r.solutions = append(r.solutions, sol)
	r.mtx.Unlock()
}

func (r *recordingReporter) ReportProgress(threadID int, nonce uint64) {
	r.mtx.Lock()
	r.progress = append(r.progress, nonce)
	r.mtx.Unlock()
}

func easyTarget() pow.Target {
	var t pow.Target
	t[0] = 0x01
	return t
}

func TestNonceRangeMiddle(t *testing.T) {
	mid := FullRange.Middle()
	assert.Equal(t, uint64(1)<<30, mid.Start)
	assert.Equal(t, uint64(3)<<30, mid.End)

	full := NonceRange{Start: 0, End: math.MaxUint64}.Middle()
	assert.Equal(t, uint64(1)<<62, full.Start)
	assert.Equal(t, uint64(3)<<62, full.End)

	tiny := NonceRange{Start: 5, End: 6}.Middle()
	assert.Equal(t, NonceRange{Start: 5, End: 5}, tiny)

	assert.True(t, NonceRange{Start: 1, End: 1}.Contains(1))
	assert.False(t, NonceRange{Start: 2, End: 1}.Valid())
	assert.Equal(t, uint64(math.MaxUint32), NonceRange{End: math.MaxUint64}.Clamp(math.MaxUint32).End)
}

func TestStrideSearchCoversRangeExactlyOnce(t *testing.T) {
	for _, threads := range []int{1, 3, 4, 7} {
		work := newRecordingWork()
		nonces := NonceRange{Start: 10, End: 110}
		search := NewStrideSearch(work, easyTarget(), nonces, threads, nil)

		sol, err := search.Run(context.Background())
		require.NoError(t, err)
		assert.Nil(t, sol)

		assert.Len(t, work.visits, 101, "threads %d", threads)
		for n := nonces.Start; n <= nonces.End; n++ {
			assert.Equal(t, 1, work.visits[n], "nonce %d threads %d", n, threads)
		}
		assert.Equal(t, uint64(101), search.Attempts())
	}
}

func TestStrideSearchOverflowAtRangeEnd(t *testing.T) {
	work := newRecordingWork()
	nonces := NonceRange{Start: math.MaxUint64 - 9, End: math.MaxUint64}
	search := NewStrideSearch(work, easyTarget(), nonces, 4, nil)

	sol, err := search.Run(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sol)
	assert.Len(t, work.visits, 10)
}

func TestStrideSearchMoreThreadsThanNonces(t *testing.T) {
	work := newRecordingWork()
	search := NewStrideSearch(work, easyTarget(), NonceRange{Start: 0, End: 2}, 8, nil)

	_, err := search.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, work.visits, 3)
}

func TestStrideSearchReportsSingleSolution(t *testing.T) {
	work := &solveAtWork{nonces: map[uint64]bool{40: true, 41: true, 42: true, 43: true}}
	reporter := &recordingReporter{}
	search := NewStrideSearch(work, easyTarget(), NonceRange{Start: 0, End: 1000}, 4, reporter)

	sol, err := search.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sol)
	assert.True(t, sol.Nonce >= 40 && sol.Nonce <= 43)
	assert.Equal(t, int(sol.Nonce%4), sol.ThreadID)

	require.Len(t, reporter.solutions, 1)
	assert.Equal(t, sol, reporter.solutions[0])
}

func TestStrideSearchReportsProgress(t *testing.T) {
	work := &solveAtWork{}
	reporter := &recordingReporter{}
	nonces := NonceRange{Start: 999990, End: 2000005}
	search := NewStrideSearch(work, easyTarget(), nonces, 2, reporter)

	_, err := search.Run(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{1000000, 2000000}, reporter.progress)
}

func TestStrideSearchProgressSkipsFirstNonce(t *testing.T) {
	t.Run("test_1", func(t *testing.T) {
		reporter := &recordingReporter{}
		search := NewStrideSearch(&solveAtWork{}, easyTarget(), NonceRange{Start: 0, End: 1000}, 2, reporter)
		_, err := search.Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, reporter.progress)
	})

	t.Run("test_2", func(t *testing.T) {
		reporter := &recordingReporter{}
		nonces := NonceRange{Start: 1000000, End: 2000001}
		search := NewStrideSearch(&solveAtWork{}, easyTarget(), nonces, 1, reporter)
		_, err := search.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []uint64{2000000}, reporter.progress)
	})
}

func TestStrideSearchCancel(t *testing.T) {
	var impossible pow.Target
	work := NewTextWork("never")
	search := NewStrideSearch(work, impossible, NonceRange{Start: 0, End: math.MaxUint64}, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	sol, err := search.Run(ctx)
	assert.Nil(t, sol)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NotZero(t, search.Attempts())
}

func TestStrideSearchTextWork(t *testing.T) {
	work := NewTextWork("1f3870be274f6c49")
	search := NewStrideSearch(work, easyTarget(), NonceRange{Start: 0, End: math.MaxUint64}, 3, nil)

	sol, err := search.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sol)

	expected := pow.SingleHash([]byte("1f3870be274f6c49" + strconv.FormatUint(sol.Nonce, 10)))
	assert.Equal(t, expected, sol.Hash)
	target := easyTarget()
	assert.True(t, pow.HashBelowTarget(&sol.Hash, &target))
}

func TestHeaderWork(t *testing.T) {
	header, err := wire.NewBlockHeader(1, "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f",
		pow.ZeroHash, 1700000000, "207fffff")
	require.NoError(t, err)

	work, err := NewHeaderWork(header.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint32), work.MaxNonce())

	header.Nonce = 12345
	assert.Equal(t, header.BlockHash(), work.Digest(12345))
	assert.Equal(t, header.Bytes(), work.Header(12345))

	clone := work.Clone()
	clone.Digest(1)
	assert.Equal(t, header.BlockHash(), work.Digest(12345))

	_, err = NewHeaderWork(make([]byte, 79))
	assert.Equal(t, ErrInvalidHeaderWork, err)
}

func TestHeaderWorkClampsRange(t *testing.T) {
	header, err := wire.NewBlockHeader(1, "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f",
		pow.ZeroHash, 1700000000, "207fffff")
	require.NoError(t, err)
	work, err := NewHeaderWork(header.Bytes())
	require.NoError(t, err)

	search := NewStrideSearch(work, pow.Target{}, NonceRange{Start: 0, End: math.MaxUint64}, 1, nil)
	assert.Equal(t, uint64(math.MaxUint32), search.nonces.End)
}

func TestSoloSearchFindsSolution(t *testing.T) {
	header, err := wire.NewBlockHeader(1, "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f",
		pow.ZeroHash, 1700000000, "207fffff")
	require.NoError(t, err)
	target, err := header.Target()
	require.NoError(t, err)

	work, err := NewHeaderWork(header.Bytes())
	require.NoError(t, err)

	search := NewSoloSearch(work, target, SoloConfig{Threads: 2})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sol, err := search.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, sol)

	mid := FullRange.Middle()
	assert.True(t, mid.Contains(sol.Nonce))

	header.Nonce = uint32(sol.Nonce)
	assert.Equal(t, header.BlockHash(), sol.Hash)
	assert.True(t, pow.HashBelowTarget(&sol.Hash, &target))
}

func TestSoloSearchCancel(t *testing.T) {
	search := NewSoloSearch(NewTextWork("x"), pow.Target{}, SoloConfig{Threads: 2})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	sol, err := search.Run(ctx)
	assert.Nil(t, sol)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.NotZero(t, search.Attempts())
}

func TestSoloSearchRecenter(t *testing.T) {
	search := NewSoloSearch(newRecordingWork(), pow.Target{}, SoloConfig{
		Threads:          1,
		Nonces:           NonceRange{Start: 0, End: 1023},
		RecenterInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _ = search.Run(ctx)

	r := search.Range()
	assert.True(t, r.Start >= 256, "range %v", r)
	assert.True(t, r.End <= 768, "range %v", r)
}

func TestRandomNonceStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	window := FullRange.Middle()
	for i := 0; i < 10000; i++ {
		assert.True(t, window.Contains(randomNonce(rng, window)))
	}
	assert.Equal(t, uint64(7), randomNonce(rng, NonceRange{Start: 7, End: 7}))
}
