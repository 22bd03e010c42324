package sharemgr

import (
	"testing"
	"time"

	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func TestShareManager_GetSharePerSecond(t *testing.T) {
	t.Run("test_1", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
		m := newShareManager(clock.now)
		clock.t = clock.t.Add(100 * time.Second)
		for i := 0; i < 50; i++ {
			m.AddShare()
		}
		assert.InDelta(t, 0.5, m.GetSharePerSecond(), 1e-9)
		assert.InDelta(t, 30.0, m.GetSharePerMinute(), 1e-9)
	})

	t.Run("test_2", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
		m := newShareManager(clock.now)
		clock.t = clock.t.Add(1000 * time.Second)
		for i := 0; i < 60; i++ {
			m.AddShare()
		}
		assert.InDelta(t, 0.1, m.GetSharePerSecond(), 1e-9)

		// Shares older than the interval no longer count.
		clock.t = clock.t.Add(IntervalTime * time.Second)
		assert.Equal(t, 0.0, m.GetSharePerSecond())
	})

	t.Run("test_3", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
		m := newShareManager(clock.now)
		m.AddShare()
		assert.Equal(t, 1.0, m.GetSharePerSecond())
	})
}

func TestShareManager_EstimateHashRate(t *testing.T) {
	t.Run("test_1", func(t *testing.T) {
		clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
		m := newShareManager(clock.now)
		clock.t = clock.t.Add(1000 * time.Second)
		for i := 0; i < 600; i++ {
			m.AddShare()
		}
		target, err := pow.ParseTarget("0000ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
		assert.NoError(t, err)

		// One share per second at 2^16 hashes per share.
		assert.InDelta(t, 65536.0, m.EstimateHashRate(target), 1e-6)
	})
}
