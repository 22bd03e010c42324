package sharemgr

import (
	"math/big"
	"sync"
	"time"

	"github.com/abesuite/abe-powminer/consensus/pow"
)

const (
	// IntervalTime is the length in seconds of the sliding window share
	// rates are computed over.
	IntervalTime = 600
	WindowSize   = 20
)

type Bucket struct {
	sync.Mutex
	startTime int64
	count     int
}

func (b *Bucket) AddCount() {
	b.Lock()
	defer b.Unlock()
	b.count += 1
}

// CountSince returns the bucket count if the bucket started after since,
// zero otherwise.
func (b *Bucket) CountSince(since int64) int {
	b.Lock()
	defer b.Unlock()
	if b.startTime <= since {
		return 0
	}
	return b.count
}

func (b *Bucket) GetStartTime() int64 {
	b.Lock()
	defer b.Unlock()
	res := b.startTime
	return res
}

func (b *Bucket) ResetStartTime(startTime int64) {
	b.Lock()
	defer b.Unlock()
	b.startTime = startTime
	b.count = 1
}

// ShareManager counts accepted shares of one worker in a ring of buckets
// covering the last IntervalTime seconds.
type ShareManager struct {
	CreateTime time.Time
	BucketNum  int
	Buckets    []*Bucket

	now func() time.Time
}

func NewShareManager() *ShareManager {
	return newShareManager(time.Now)
}

func newShareManager(now func() time.Time) *ShareManager {
	bucketNum := IntervalTime / WindowSize
	buckets := make([]*Bucket, bucketNum)
	for i := 0; i < bucketNum; i++ {
		buckets[i] = &Bucket{}
	}
	return &ShareManager{
		CreateTime: now(),
		BucketNum:  bucketNum,
		Buckets:    buckets,
		now:        now,
	}
}

func (m *ShareManager) AddShare() {
	currentTime := m.now().Unix()
	idx := (currentTime / WindowSize) % int64(m.BucketNum)

	startTime := currentTime - currentTime%WindowSize
	targetBucket := m.Buckets[idx]
	if targetBucket.GetStartTime() == startTime {
		targetBucket.AddCount()
	} else {
		targetBucket.ResetStartTime(startTime)
	}
}

func (m *ShareManager) GetSharePerSecond() float64 {
	totalCount := 0
	currentTime := m.now().Unix()
	for _, bucket := range m.Buckets {
		totalCount += bucket.CountSince(currentTime - IntervalTime)
	}
	elapsed := currentTime - m.CreateTime.Unix()
	if elapsed < IntervalTime {
		if elapsed <= 0 {
			elapsed = 1
		}
		return float64(totalCount) / float64(elapsed)
	}
	return float64(totalCount) / IntervalTime
}

func (m *ShareManager) GetSharePerMinute() float64 {
	return m.GetSharePerSecond() * 60
}

// EstimateHashRate turns the share rate into hashes per second. A share
// below target takes 2^256 / (target+1) hashes on average.
func (m *ShareManager) EstimateHashRate(target pow.Target) float64 {
	t := target.Big()
	t.Add(t, big.NewInt(1))
	work := new(big.Int).Lsh(big.NewInt(1), 256)
	work.Div(work, t)
	perShare, _ := new(big.Float).SetInt(work).Float64()
	return m.GetSharePerSecond() * perShare
}
