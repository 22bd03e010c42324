package minermgr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abesuite/abe-powminer/chainclient"
	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/abesuite/abe-powminer/dal"
	"github.com/abesuite/abe-powminer/model"
	"github.com/abesuite/abe-powminer/service"
	"github.com/abesuite/abe-powminer/utils"

	"gorm.io/gorm"
)

// DefaultJobInterval is how often a synthetic job is produced when no node
// backs the pool.
const DefaultJobInterval = 10 * time.Second

var (
	// ErrExceedMinerLimit is returned when every nonce slot is taken.
	ErrExceedMinerLimit = errors.New("miner exceeds limit")

	// ErrMinerNotFound is returned for a connection that was never added or
	// already removed.
	ErrMinerNotFound = errors.New("miner not found")
)

// BlockSubmitter is where solved blocks go, normally the chain client.
type BlockSubmitter interface {
	SubmitBlock(*model.BlockSubmitted)
}

// Config is a descriptor containing the miner manager configuration.
type Config struct {
	// ShareTarget is the target every share must meet.
	ShareTarget pow.Target

	// Submitter receives solved blocks. Without one the manager produces
	// synthetic jobs every JobInterval.
	Submitter BlockSubmitter

	// PkScript and CoinbaseTag build the coinbase of template jobs when
	// the node does not provide one.
	PkScript    []byte
	CoinbaseTag string

	JobInterval time.Duration

	// RecordShareDetail keeps every accepted share in the database, not
	// only the per-worker totals.
	RecordShareDetail bool

	// Db is the pool database. Shares are not persisted without one.
	Db *gorm.DB
}

type MinerManager struct {
	cfg Config

	ActiveMinerMap        map[chan struct{}]*model.ActiveMiner
	ActiveMinerAddressMap map[string]*model.ActiveMiner
	activeMinerLock       sync.Mutex

	slots    map[uint64]struct{}
	nextSlot uint64

	currentJob *model.JobTemplate
	jobLock    sync.Mutex

	cachedTemplate     *model.BlockTemplate
	cachedTemplateLock sync.Mutex

	// The notifications field stores a slice of callbacks to be executed on
	// certain events.
	notificationsLock sync.RWMutex
	notifications     []NotificationCallback

	quit     chan struct{}
	wg       sync.WaitGroup
	started  int32
	shutdown int32

	now func() time.Time
}

func SetupMinerManger(cfg *Config) *MinerManager {
	minerMgr := &MinerManager{
		cfg:                   *cfg,
		ActiveMinerMap:        make(map[chan struct{}]*model.ActiveMiner),
		ActiveMinerAddressMap: make(map[string]*model.ActiveMiner),
		slots:                 make(map[uint64]struct{}),
		quit:                  make(chan struct{}),
		now:                   time.Now,
	}
	if minerMgr.cfg.JobInterval <= 0 {
		minerMgr.cfg.JobInterval = DefaultJobInterval
	}
	if minerMgr.cfg.Db == nil {
		minerMgr.cfg.Db = dal.GlobalDBClient
	}
	return minerMgr
}

// Synthetic reports whether jobs are produced locally instead of from block
// templates.
func (mgr *MinerManager) Synthetic() bool {
	return mgr.cfg.Submitter == nil
}

// ShareTarget returns the target every share must meet.
func (mgr *MinerManager) ShareTarget() pow.Target {
	return mgr.cfg.ShareTarget
}

// Start launches the synthetic job loop when no node backs the pool.
func (mgr *MinerManager) Start() {
	if atomic.AddInt32(&mgr.started, 1) != 1 {
		return
	}
	if !mgr.Synthetic() {
		return
	}
	log.Infof("No node configured, producing a synthetic job every %v", mgr.cfg.JobInterval)
	mgr.wg.Add(1)
	go mgr.jobHandler()
}

func (mgr *MinerManager) Stop() {
	if atomic.AddInt32(&mgr.shutdown, 1) != 1 {
		log.Infof("Miner manager is already in the process of shutting down")
		return
	}
	close(mgr.quit)
}

func (mgr *MinerManager) WaitForShutdown() {
	mgr.wg.Wait()
}

func (mgr *MinerManager) jobHandler() {
	defer mgr.wg.Done()

	ticker := time.NewTicker(mgr.cfg.JobInterval)
	defer ticker.Stop()

	mgr.AddJob(mgr.syntheticJob(mgr.now()))
	for {
		select {
		case <-ticker.C:
			mgr.AddJob(mgr.syntheticJob(mgr.now()))
		case <-mgr.quit:
			log.Trace("Synthetic job handler done")
			return
		}
	}
}

// syntheticJob returns the text job for time t: its id is the unix time in
// milliseconds and its data the first 16 hex digits of the sha256 of the
// decimal unix seconds.
func (mgr *MinerManager) syntheticJob(t time.Time) *model.JobTemplate {
	sum := sha256.Sum256([]byte(strconv.FormatInt(t.Unix(), 10)))
	data := hex.EncodeToString(sum[:])[:16]
	return model.NewTextJob(utils.GenerateJobID(t), data, mgr.cfg.ShareTarget, t)
}

// Subscribe to notifications. Registers a callback to be executed
// when various events take place.
func (mgr *MinerManager) Subscribe(callback NotificationCallback) {
	mgr.notificationsLock.Lock()
	mgr.notifications = append(mgr.notifications, callback)
	mgr.notificationsLock.Unlock()
}

// sendNotification sends a notification with the passed type and data to
// every subscriber.
func (mgr *MinerManager) sendNotification(typ NotificationType, data interface{}) {
	n := Notification{Type: typ, Data: data}
	mgr.notificationsLock.RLock()
	for _, callback := range mgr.notifications {
		callback(&n)
	}
	mgr.notificationsLock.RUnlock()
}

func (mgr *MinerManager) SetCachedTemplate(t *model.BlockTemplate) {
	mgr.cachedTemplateLock.Lock()
	defer mgr.cachedTemplateLock.Unlock()

	mgr.cachedTemplate = t
}

func (mgr *MinerManager) GetCachedTemplate() *model.BlockTemplate {
	mgr.cachedTemplateLock.Lock()
	defer mgr.cachedTemplateLock.Unlock()

	return mgr.cachedTemplate
}

// AddJob makes job the current job and announces it.
func (mgr *MinerManager) AddJob(job *model.JobTemplate) {
	if job == nil {
		log.Errorf("Internal error: nil job when adding job")
		return
	}

	mgr.jobLock.Lock()
	mgr.currentJob = job
	mgr.jobLock.Unlock()

	log.Debugf("New job %v (height %v, data %v)", job.JobID, job.Height, utils.ShortHex(job.Data))
	mgr.sendNotification(NTNewJobReady, job)
}

// AddTemplateJob builds a header job from a block template and makes it the
// current job.
func (mgr *MinerManager) AddTemplateJob(t *model.BlockTemplate, cleanJob bool) {
	if t == nil {
		log.Errorf("Internal error: nil block template when adding job")
		return
	}

	candidate, err := t.NewCandidateBlock(mgr.cfg.PkScript, mgr.cfg.CoinbaseTag)
	if err != nil {
		log.Errorf("Unable to build candidate block at height %v: %v", t.Height, err)
		return
	}
	mgr.SetCachedTemplate(t)

	now := mgr.now()
	job := model.NewHeaderJob(utils.GenerateJobID(now), candidate, mgr.cfg.ShareTarget, now, cleanJob)
	log.Infof("New block template at height %v with %d transactions", t.Height, len(t.Transactions))
	mgr.AddJob(job)
}

// GetJob returns the current job, nil before the first one.
func (mgr *MinerManager) GetJob() *model.JobTemplate {
	mgr.jobLock.Lock()
	defer mgr.jobLock.Unlock()
	return mgr.currentJob
}

// SwitchJob hands job to the miner, with the nonce window of its slot.
func (mgr *MinerManager) SwitchJob(miner chan struct{}, job *model.JobTemplate) (*model.JobTemplateMiner, error) {
	minerInfo, ok := mgr.GetMiner(miner)
	if !ok {
		log.Errorf("Internal error: unable to find certain miner when switching job.")
		return nil, ErrMinerNotFound
	}

	start, end, err := Window(minerInfo.Slot, job)
	if err != nil {
		return nil, err
	}
	return minerInfo.AddJob(job, start, end), nil
}

// slotLimit returns how many workers can hold disjoint windows. A pool fed
// by block templates hands out header jobs, which have fewer windows.
func (mgr *MinerManager) slotLimit() int {
	if mgr.cfg.Submitter != nil {
		return HeaderSlots
	}
	if job := mgr.GetJob(); job != nil && job.IsHeaderJob() {
		return HeaderSlots
	}
	return MaxSlots
}

// allocateSlot returns the next free slot, round robin. The caller holds
// activeMinerLock.
func (mgr *MinerManager) allocateSlot() (uint64, int, bool) {
	limit := mgr.slotLimit()
	if len(mgr.slots) >= limit {
		return 0, limit, false
	}
	for {
		slot := mgr.nextSlot % uint64(limit)
		mgr.nextSlot++
		if _, used := mgr.slots[slot]; !used {
			mgr.slots[slot] = struct{}{}
			return slot, limit, true
		}
	}
}

// AddNewMiner add a new miner into ActiveMinerMap.
func (mgr *MinerManager) AddNewMiner(wsc chan struct{}, remoteAddress string, connectionType string) (*model.ActiveMiner, error) {
	mgr.activeMinerLock.Lock()
	slot, limit, ok := mgr.allocateSlot()
	if !ok {
		mgr.activeMinerLock.Unlock()
		log.Warnf("Miner exceeds limit %v, reject", limit)
		return nil, ErrExceedMinerLimit
	}

	newMiner := model.NewActiveMiner(remoteAddress, connectionType, slot)
	mgr.ActiveMinerMap[wsc] = newMiner
	mgr.ActiveMinerAddressMap[remoteAddress] = newMiner
	mgr.activeMinerLock.Unlock()

	if mgr.cfg.Db != nil {
		err := service.GetWorkerService().WorkerSeen(context.Background(), mgr.cfg.Db, remoteAddress, newMiner.ConnectedAt)
		if err != nil {
			log.Warnf("Unable to record worker %v: %v", remoteAddress, err)
		}
	}
	return newMiner, nil
}

// DeleteActiveMiner delete a certain miner from ActiveMinerMap and frees
// its slot. Usually used when a miner disconnected.
func (mgr *MinerManager) DeleteActiveMiner(wsc chan struct{}) {
	mgr.activeMinerLock.Lock()
	defer mgr.activeMinerLock.Unlock()

	minerInfo, ok := mgr.ActiveMinerMap[wsc]
	if !ok {
		return
	}
	delete(mgr.slots, minerInfo.Slot)
	delete(mgr.ActiveMinerMap, wsc)
	delete(mgr.ActiveMinerAddressMap, minerInfo.Address)
}

func (mgr *MinerManager) GetMiner(wsc chan struct{}) (*model.ActiveMiner, bool) {
	mgr.activeMinerLock.Lock()
	defer mgr.activeMinerLock.Unlock()
	miner, ok := mgr.ActiveMinerMap[wsc]
	return miner, ok
}

// GetMinerNum return the current number of miners.
func (mgr *MinerManager) GetMinerNum() int {
	mgr.activeMinerLock.Lock()
	defer mgr.activeMinerLock.Unlock()
	res := len(mgr.ActiveMinerMap)
	return res
}

// GetMiners return all the addresses of connected miners.
func (mgr *MinerManager) GetMiners() []string {
	mgr.activeMinerLock.Lock()
	defer mgr.activeMinerLock.Unlock()
	res := make([]string, 0)
	for _, miner := range mgr.ActiveMinerMap {
		res = append(res, miner.Address)
	}
	return res
}

// GetActiveMiner return the detail info of active miner.
func (mgr *MinerManager) GetActiveMiner(remoteAddress string) *model.ActiveMiner {
	mgr.activeMinerLock.Lock()
	defer mgr.activeMinerLock.Unlock()
	res, ok := mgr.ActiveMinerAddressMap[remoteAddress]
	if !ok {
		return nil
	}
	return res
}

// GetHashRate return the estimated hash rate of mining pool.
func (mgr *MinerManager) GetHashRate() int64 {
	mgr.activeMinerLock.Lock()
	defer mgr.activeMinerLock.Unlock()
	res := 0.0
	for _, miner := range mgr.ActiveMinerMap {
		res += miner.ShareManager.EstimateHashRate(mgr.cfg.ShareTarget)
	}
	return int64(res)
}

// ClearSubmittedShare clear all the submitted share recorded before.
func (mgr *MinerManager) ClearSubmittedShare() {
	mgr.activeMinerLock.Lock()
	defer mgr.activeMinerLock.Unlock()
	for _, m := range mgr.ActiveMinerMap {
		m.ClearSubmittedShare()
	}
}

func (mgr *MinerManager) RejectBlock(blockNotification *model.BlockNotification) error {
	if mgr.cfg.Db == nil {
		return nil
	}
	return service.GetShareService().RejectBlock(context.Background(), mgr.cfg.Db, blockNotification)
}

func (mgr *MinerManager) ConnectBlock(blockNotification *model.BlockNotification) error {
	if mgr.cfg.Db == nil {
		return nil
	}
	return service.GetShareService().ConnectBlock(context.Background(), mgr.cfg.Db, blockNotification.BlockHash.String())
}

// HandleChainClientNotification handles notifications from chain client.  It does
// things such as notify template changed and so on.
func (mgr *MinerManager) HandleChainClientNotification(notification *chainclient.Notification) {
	switch notification.Type {

	case chainclient.NTBlockTemplateChanged:
		log.Debug("Miner manager receives a new block template from chain client, updating...")
		blockTemplate, ok := notification.Data.(*model.BlockTemplate)
		if !ok || blockTemplate == nil {
			log.Errorf("Miner manager accepted notification is not a block template.")
			break
		}
		mgr.AddTemplateJob(blockTemplate, true)

	case chainclient.NTBlockAccepted:
		log.Debug("Miner manager receives a block accepted notification from chain client.")
		blockNotification, ok := notification.Data.(*model.BlockNotification)
		if !ok {
			log.Errorf("Miner manager accepted notification is not a block notification.")
			break
		}
		log.Infof("Block %v at height %v accepted", blockNotification.BlockHash, blockNotification.Height)
		mgr.ClearSubmittedShare()

	case chainclient.NTBlockRejected:
		log.Debug("Miner manager receives a block rejected notification from chain client.")
		blockNotification, ok := notification.Data.(*model.BlockNotification)
		if !ok {
			log.Errorf("Miner manager accepted notification is not a block notification.")
			break
		}
		err := mgr.RejectBlock(blockNotification)
		if err != nil {
			log.Errorf("Reject block %v fail: %v", blockNotification.BlockHash.String(), err)
		}

	case chainclient.NTBlockConnected:
		log.Debug("Miner manager receives a block connected notification from chain client.")
		blockNotification, ok := notification.Data.(*model.BlockNotification)
		if !ok {
			log.Errorf("Miner manager accepted notification is not a block notification.")
			break
		}
		err := mgr.ConnectBlock(blockNotification)
		if err != nil {
			log.Errorf("Update status of block %v to connected fail: %v", blockNotification.BlockHash.String(), err)
		}

	case chainclient.NTTemplateFailed:
		log.Errorf("Node refuses to provide block templates: %v", notification.Data)
	}
}
