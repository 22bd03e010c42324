package minermgr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abesuite/abe-powminer/chainclient"
	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/abesuite/abe-powminer/dal"
	"github.com/abesuite/abe-powminer/model"
	"github.com/abesuite/abe-powminer/pooljson"
	"github.com/abesuite/abe-powminer/service"
	"github.com/btcsuite/btcd/btcjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	genesisHashStr = "000000000019d6689c085ae165831e934ff763ae46a2a6c172b3f1b60a8ce26f"
	p2pkhScriptHex = "76a914000102030405060708090a0b0c0d0e0f1011121388ac"
)

func mustTarget(t *testing.T, s string) pow.Target {
	target, err := pow.ParseTarget(s)
	require.NoError(t, err)
	return target
}

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		sqlDB.Close()
	})
	require.NoError(t, dal.CreateTables(db))
	return db
}

type fakeSubmitter struct {
	sync.Mutex
	blocks []*model.BlockSubmitted
}

func (f *fakeSubmitter) SubmitBlock(b *model.BlockSubmitted) {
	f.Lock()
	f.blocks = append(f.blocks, b)
	f.Unlock()
}

func newTestTemplate(t *testing.T) *model.BlockTemplate {
	value := int64(5000000000)
	return model.NewBlockTemplate(&btcjson.GetBlockTemplateResult{
		Bits:          "207fffff",
		CurTime:       1700000000,
		Height:        1,
		PreviousHash:  genesisHashStr,
		Version:       0x20000000,
		CoinbaseValue: &value,
	})
}

func TestWindow(t *testing.T) {
	text := model.NewTextJob("1", "abcd", pow.Target{}, time.Now())
	start, end, err := Window(0, text)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), start)
	assert.Equal(t, uint64(1<<40-1), end)
	start, end, err = Window(3, text)
	require.NoError(t, err)
	assert.Equal(t, uint64(3)<<40, start)
	assert.Equal(t, uint64(4)<<40-1, end)
	_, end, err = Window(MaxSlots-1, text)
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), end)

	candidate, err := newTestTemplate(t).NewCandidateBlock([]byte{0x51}, "")
	require.NoError(t, err)
	header := model.NewHeaderJob("2", candidate, pow.Target{}, time.Now(), true)
	start, end, err = Window(1, header)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<26), start)
	assert.Equal(t, uint64(2<<26-1), end)
	_, end, err = Window(HeaderSlots-1, header)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<32-1), end)
	_, _, err = Window(HeaderSlots, header)
	assert.Equal(t, ErrExceedMinerLimit, err)
}

func TestHeaderJobWindowsDisjoint(t *testing.T) {
	candidate, err := newTestTemplate(t).NewCandidateBlock([]byte{0x51}, "")
	require.NoError(t, err)
	header := model.NewHeaderJob("1", candidate, pow.Target{}, time.Now(), true)

	t.Run("test_1", func(t *testing.T) {
		// A template backed pool admits one worker per header window.
		mgr := SetupMinerManger(&Config{Submitter: &fakeSubmitter{}})
		seen := make(map[uint64]bool)
		for i := 0; i < HeaderSlots; i++ {
			wsc := make(chan struct{})
			_, err := mgr.AddNewMiner(wsc, fmt.Sprintf("10.0.0.1:%d", i), "tcp")
			require.NoError(t, err)
			jobMiner, err := mgr.SwitchJob(wsc, header)
			require.NoError(t, err)
			assert.False(t, seen[jobMiner.NonceStart], "window %d handed out twice", jobMiner.NonceStart)
			seen[jobMiner.NonceStart] = true
			assert.Equal(t, jobMiner.NonceStart+(1<<headerWindowBits)-1, jobMiner.NonceEnd)
		}
		_, err := mgr.AddNewMiner(make(chan struct{}), "10.0.0.2:1", "tcp")
		assert.Equal(t, ErrExceedMinerLimit, err)
		assert.Equal(t, HeaderSlots, mgr.GetMinerNum())
	})

	t.Run("test_2", func(t *testing.T) {
		// Workers admitted under text jobs get no header window past the
		// header limit.
		mgr := SetupMinerManger(&Config{})
		var last chan struct{}
		for i := 0; i <= HeaderSlots; i++ {
			last = make(chan struct{})
			_, err := mgr.AddNewMiner(last, fmt.Sprintf("10.0.0.1:%d", i), "tcp")
			require.NoError(t, err)
		}
		_, err := mgr.SwitchJob(last, header)
		assert.Equal(t, ErrExceedMinerLimit, err)

		// Once a header job is current, no further worker is admitted.
		mgr.AddJob(header)
		mgr.DeleteActiveMiner(last)
		_, err = mgr.AddNewMiner(make(chan struct{}), "10.0.0.2:1", "tcp")
		assert.Equal(t, ErrExceedMinerLimit, err)
	})
}

func TestSyntheticJob(t *testing.T) {
	target := mustTarget(t, "0000ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	mgr := SetupMinerManger(&Config{ShareTarget: target})
	assert.True(t, mgr.Synthetic())

	now := time.Unix(1700000000, 123000000)
	job := mgr.syntheticJob(now)
	sum := sha256.Sum256([]byte("1700000000"))
	assert.Equal(t, "1700000000123", job.JobID)
	assert.Equal(t, hex.EncodeToString(sum[:])[:16], job.Data)
	assert.Equal(t, target.String(), job.TargetStr)
	assert.False(t, job.IsHeaderJob())
	assert.True(t, job.CleanJob)
}

func TestSyntheticJobLoop(t *testing.T) {
	mgr := SetupMinerManger(&Config{JobInterval: 20 * time.Millisecond})
	jobs := make(chan *model.JobTemplate, 16)
	mgr.Subscribe(func(n *Notification) {
		if n.Type == NTNewJobReady {
			jobs <- n.Data.(*model.JobTemplate)
		}
	})
	mgr.Start()
	for i := 0; i < 2; i++ {
		select {
		case job := <-jobs:
			assert.Len(t, job.Data, 16)
		case <-time.After(5 * time.Second):
			t.Fatal("no synthetic job")
		}
	}
	mgr.Stop()
	mgr.WaitForShutdown()
	mgr.Stop()
	assert.NotNil(t, mgr.GetJob())
}

func TestMinerSlots(t *testing.T) {
	mgr := SetupMinerManger(&Config{})
	a, b, c := make(chan struct{}), make(chan struct{}), make(chan struct{})

	minerA, err := mgr.AddNewMiner(a, "10.0.0.1:1", "tcp")
	require.NoError(t, err)
	minerB, err := mgr.AddNewMiner(b, "10.0.0.2:1", "websocket")
	require.NoError(t, err)
	assert.NotEqual(t, minerA.Slot, minerB.Slot)
	assert.Equal(t, 2, mgr.GetMinerNum())
	assert.ElementsMatch(t, []string{"10.0.0.1:1", "10.0.0.2:1"}, mgr.GetMiners())
	assert.Equal(t, minerB, mgr.GetActiveMiner("10.0.0.2:1"))

	mgr.DeleteActiveMiner(a)
	mgr.DeleteActiveMiner(a)
	assert.Equal(t, 1, mgr.GetMinerNum())
	assert.Nil(t, mgr.GetActiveMiner("10.0.0.1:1"))

	minerC, err := mgr.AddNewMiner(c, "10.0.0.3:1", "tcp")
	require.NoError(t, err)
	assert.NotEqual(t, minerB.Slot, minerC.Slot)

	_, err = mgr.SwitchJob(a, model.NewTextJob("1", "x", pow.Target{}, time.Now()))
	assert.Equal(t, ErrMinerNotFound, err)
}

// findNonce returns the first nonce from start whose digest passes ok.
func findNonce(t *testing.T, job *model.JobTemplate, start uint64, ok func(pow.Hash) bool) (uint64, pow.Hash) {
	work := jobWork(job)
	for nonce := start; nonce < start+100000; nonce++ {
		hash := work.Digest(nonce)
		if ok(hash) {
			return nonce, hash
		}
	}
	t.Fatal("no nonce found")
	return 0, pow.Hash{}
}

func TestHandleSubmitTextJob(t *testing.T) {
	db := newTestDB(t)
	target := mustTarget(t, "0fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	mgr := SetupMinerManger(&Config{ShareTarget: target, Db: db, RecordShareDetail: true})

	wsc := make(chan struct{})
	_, err := mgr.HandleSubmit(wsc, pooljson.NewSubmitCmd(0, "", 0))
	assert.Equal(t, ErrMinerNotFound, err)

	miner, err := mgr.AddNewMiner(wsc, "10.0.0.1:1", "tcp")
	require.NoError(t, err)

	_, err = mgr.HandleSubmit(wsc, pooljson.NewSubmitCmd(0, "", 0))
	assert.Equal(t, ErrStaleShare, err)

	job := mgr.syntheticJob(time.Unix(1700000000, 0))
	jobMiner, err := mgr.SwitchJob(wsc, job)
	require.NoError(t, err)
	start := jobMiner.NonceStart

	below := func(h pow.Hash) bool { return pow.HashBelowTarget(&h, &target) }
	nonce, hash := findNonce(t, job, start, below)

	share, err := mgr.HandleSubmit(wsc, pooljson.NewSubmitCmd(nonce, strings.ToUpper(hash.Hex()), 1))
	require.NoError(t, err)
	assert.Equal(t, job.JobID, share.JobID)
	assert.False(t, share.IsBlock())

	_, err = mgr.HandleSubmit(wsc, pooljson.NewSubmitCmd(nonce, hash.Hex(), 1))
	assert.Equal(t, ErrDuplicateShare, err)

	_, err = mgr.HandleSubmit(wsc, pooljson.NewSubmitCmd(nonce+1, hash.Hex(), 1))
	assert.Equal(t, ErrHashMismatch, err)

	_, err = mgr.HandleSubmit(wsc, pooljson.NewSubmitCmd(jobMiner.NonceEnd+1, hash.Hex(), 1))
	assert.Equal(t, ErrNonceOutOfRange, err)

	high, highHash := findNonce(t, job, start, func(h pow.Hash) bool { return !below(h) })
	_, err = mgr.HandleSubmit(wsc, pooljson.NewSubmitCmd(high, highHash.Hex(), 0))
	assert.Equal(t, ErrLowDifficultyShare, err)

	accepted, rejected := miner.Stats()
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 5, rejected)

	info, err := service.GetWorkerService().GetWorker(context.Background(), db, "10.0.0.1:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.AcceptedShares)
	assert.Equal(t, int64(5), info.RejectedShares)
	count, err := service.GetShareService().GetShareCount(context.Background(), db, "10.0.0.1:1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, mgr.HandleProgress(wsc, pooljson.NewProgressCmd(start+5, 0)))
	assert.Equal(t, start+5, miner.LastProgress)
	assert.Equal(t, ErrMinerNotFound, mgr.HandleProgress(make(chan struct{}), pooljson.NewProgressCmd(1, 0)))
}

func TestHandleSubmitOlderJob(t *testing.T) {
	target := mustTarget(t, "0fffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	mgr := SetupMinerManger(&Config{ShareTarget: target})
	wsc := make(chan struct{})
	_, err := mgr.AddNewMiner(wsc, "10.0.0.1:1", "tcp")
	require.NoError(t, err)

	first := mgr.syntheticJob(time.Unix(1700000000, 0))
	first.CleanJob = false
	second := mgr.syntheticJob(time.Unix(1700000010, 0))
	second.CleanJob = false
	_, err = mgr.SwitchJob(wsc, first)
	require.NoError(t, err)
	jobMiner, err := mgr.SwitchJob(wsc, second)
	require.NoError(t, err)

	nonce, hash := findNonce(t, first, jobMiner.NonceStart, func(h pow.Hash) bool {
		return pow.HashBelowTarget(&h, &target)
	})
	share, err := mgr.HandleSubmit(wsc, pooljson.NewSubmitCmd(nonce, hash.Hex(), 0))
	require.NoError(t, err)
	assert.Equal(t, first.JobID, share.JobID)
}

func TestHandleSubmitBlock(t *testing.T) {
	db := newTestDB(t)
	submitter := &fakeSubmitter{}
	pkScript, err := hex.DecodeString(p2pkhScriptHex)
	require.NoError(t, err)
	anyTarget := mustTarget(t, strings.Repeat("ff", 32))
	mgr := SetupMinerManger(&Config{
		ShareTarget: anyTarget,
		Submitter:   submitter,
		PkScript:    pkScript,
		Db:          db,
	})
	assert.False(t, mgr.Synthetic())

	found := make(chan *model.ShareInfo, 1)
	jobs := make(chan *model.JobTemplate, 1)
	mgr.Subscribe(func(n *Notification) {
		switch n.Type {
		case NTBlockFound:
			found <- n.Data.(*model.ShareInfo)
		case NTNewJobReady:
			jobs <- n.Data.(*model.JobTemplate)
		}
	})

	mgr.HandleChainClientNotification(&chainclient.Notification{
		Type: chainclient.NTBlockTemplateChanged,
		Data: newTestTemplate(t),
	})
	job := <-jobs
	require.True(t, job.IsHeaderJob())
	assert.Equal(t, job, mgr.GetJob())
	assert.NotNil(t, mgr.GetCachedTemplate())

	wsc := make(chan struct{})
	_, err = mgr.AddNewMiner(wsc, "10.0.0.9:1", "tcp")
	require.NoError(t, err)
	jobMiner, err := mgr.SwitchJob(wsc, job)
	require.NoError(t, err)

	blockTarget := job.Candidate.Target
	nonce, hash := findNonce(t, job, jobMiner.NonceStart, func(h pow.Hash) bool {
		return pow.HashBelowTarget(&h, &blockTarget)
	})
	share, err := mgr.HandleSubmit(wsc, pooljson.NewSubmitCmd(nonce, hash.Hex(), 0))
	require.NoError(t, err)
	require.True(t, share.IsBlock())
	assert.Equal(t, uint32(nonce), share.CandidateBlock.Header.Nonce)
	assert.Equal(t, share, <-found)

	require.Len(t, submitter.blocks, 1)
	submitted := submitter.blocks[0]
	assert.Equal(t, hash, submitted.BlockHash)
	assert.Equal(t, int64(1), submitted.Height)

	// Chain notifications update the recorded block.
	mgr.HandleChainClientNotification(&chainclient.Notification{
		Type: chainclient.NTBlockConnected,
		Data: &model.BlockNotification{BlockHash: hash, Height: 1},
	})
	blocks, err := service.GetShareService().GetMinedBlocks(context.Background(), db, 1, 10, true)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, hash.String(), blocks[0].BlockHash)
	assert.Equal(t, 1, blocks[0].Connected)

	mgr.HandleChainClientNotification(&chainclient.Notification{
		Type: chainclient.NTBlockRejected,
		Data: &model.BlockNotification{BlockHash: hash, Info: "duplicate"},
	})
	blocks, err = service.GetShareService().GetMinedBlocks(context.Background(), db, 1, 10, true)
	require.NoError(t, err)
	assert.Equal(t, 1, blocks[0].Rejected)

	// Accepted blocks reset duplicate detection.
	mgr.HandleChainClientNotification(&chainclient.Notification{
		Type: chainclient.NTBlockAccepted,
		Data: &model.BlockNotification{BlockHash: hash, Height: 1},
	})
	_, err = mgr.HandleSubmit(wsc, pooljson.NewSubmitCmd(nonce, hash.Hex(), 0))
	assert.NoError(t, err)
}

func TestHandleBadTemplate(t *testing.T) {
	mgr := SetupMinerManger(&Config{Submitter: &fakeSubmitter{}})
	tmpl := newTestTemplate(t)
	tmpl.CoinbaseValue = nil
	mgr.HandleChainClientNotification(&chainclient.Notification{
		Type: chainclient.NTBlockTemplateChanged,
		Data: tmpl,
	})
	assert.Nil(t, mgr.GetJob())

	mgr.HandleChainClientNotification(&chainclient.Notification{
		Type: chainclient.NTBlockTemplateChanged,
		Data: "not a template",
	})
	assert.Nil(t, mgr.GetJob())
}

func TestNotificationTypeString(t *testing.T) {
	assert.Equal(t, "NTNewJobReady", NTNewJobReady.String())
	assert.Equal(t, "Unknown Notification Type (7)", NotificationType(7).String())
}
