package model

import (
	"strconv"
	"sync"
	"time"

	"github.com/abesuite/abe-powminer/sharemgr"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultSubmittedShareCacheSize bounds the shares remembered per worker for
// duplicate detection.
const DefaultSubmittedShareCacheSize = 4096

// MaxJobsPerMiner is how many recent jobs a worker may still submit for.
const MaxJobsPerMiner = 4

type ActiveMiner struct {
	ConnectionType string
	Address        string
	SessionID      string

	// Slot identifies the nonce window of the worker. It is unique among
	// connected workers.
	Slot uint64

	JobLock sync.Mutex
	// CurrentJob: job_id -> job details
	CurrentJob    map[string]*JobTemplateMiner
	jobOrder      []string
	LastNotifyJob *JobTemplate

	ShareLock      sync.Mutex
	SubmittedShare *lru.Cache

	ConnectedAt    time.Time
	LastActiveAt   time.Time
	LastNotifyAt   time.Time
	LastProgress   uint64
	LastProgressAt time.Time

	ErrorCounts int
	Rejected    int
	Accepted    int
	Blocks      int

	ShareManager *sharemgr.ShareManager
}

// NewActiveMiner returns the bookkeeping for a freshly connected worker.
func NewActiveMiner(address string, connectionType string, slot uint64) *ActiveMiner {
	cache, err := lru.New(DefaultSubmittedShareCacheSize)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	now := time.Now()
	return &ActiveMiner{
		ConnectionType: connectionType,
		Address:        address,
		Slot:           slot,
		CurrentJob:     make(map[string]*JobTemplateMiner),
		SubmittedShare: cache,
		ConnectedAt:    now,
		LastActiveAt:   now,
		ShareManager:   sharemgr.NewShareManager(),
	}
}

func (m *ActiveMiner) ClearSubmittedShare() {
	m.ShareLock.Lock()
	defer m.ShareLock.Unlock()

	m.SubmittedShare.Purge()
}

// AddJob records job with the nonce window [start, end] for the worker. A
// clean job drops every older job, otherwise only the most recent
// MaxJobsPerMiner jobs are kept.
func (m *ActiveMiner) AddJob(job *JobTemplate, start, end uint64) *JobTemplateMiner {
	if job == nil {
		return nil
	}

	m.JobLock.Lock()
	defer m.JobLock.Unlock()

	if job.CleanJob || m.CurrentJob == nil {
		m.CurrentJob = make(map[string]*JobTemplateMiner)
		m.jobOrder = m.jobOrder[:0]
	}
	if _, ok := m.CurrentJob[job.JobID]; !ok {
		m.jobOrder = append(m.jobOrder, job.JobID)
	}

	jobMiner := &JobTemplateMiner{
		JobDetails: job,
		NonceStart: start,
		NonceEnd:   end,
	}
	m.CurrentJob[job.JobID] = jobMiner
	m.LastNotifyJob = job
	m.LastNotifyAt = time.Now()

	for len(m.jobOrder) > MaxJobsPerMiner {
		delete(m.CurrentJob, m.jobOrder[0])
		m.jobOrder = m.jobOrder[1:]
	}
	return jobMiner
}

// GetJob returns the job with the given id. An empty id means the latest
// job.
func (m *ActiveMiner) GetJob(jobID string) *JobTemplateMiner {
	m.JobLock.Lock()
	defer m.JobLock.Unlock()

	if jobID == "" {
		if len(m.jobOrder) == 0 {
			return nil
		}
		jobID = m.jobOrder[len(m.jobOrder)-1]
	}
	return m.CurrentJob[jobID]
}

// Jobs returns the jobs the worker may submit for, newest first.
func (m *ActiveMiner) Jobs() []*JobTemplateMiner {
	m.JobLock.Lock()
	defer m.JobLock.Unlock()

	res := make([]*JobTemplateMiner, 0, len(m.jobOrder))
	for i := len(m.jobOrder) - 1; i >= 0; i-- {
		res = append(res, m.CurrentJob[m.jobOrder[i]])
	}
	return res
}

// CheckDuplicateShare checks if the share has not been submitted before and add it to share cache.
func (m *ActiveMiner) CheckDuplicateShare(nonce uint64, jobID string) bool {
	m.ShareLock.Lock()
	defer m.ShareLock.Unlock()
	shareID := jobID + ":" + strconv.FormatUint(nonce, 10)
	ok, _ := m.SubmittedShare.ContainsOrAdd(shareID, time.Now())
	return !ok
}

// UpdateProgress records a progress report of the worker.
func (m *ActiveMiner) UpdateProgress(nonce uint64) {
	m.ShareLock.Lock()
	defer m.ShareLock.Unlock()
	now := time.Now()
	m.LastProgress = nonce
	m.LastProgressAt = now
	m.LastActiveAt = now
}

func (m *ActiveMiner) RejectShare() {
	m.ShareLock.Lock()
	defer m.ShareLock.Unlock()
	m.Rejected += 1
}

func (m *ActiveMiner) AcceptShare(isBlock bool) {
	m.ShareLock.Lock()
	defer m.ShareLock.Unlock()
	m.Accepted += 1
	if isBlock {
		m.Blocks += 1
	}
	m.LastActiveAt = time.Now()
	m.ShareManager.AddShare()
}

// AddError counts a protocol error and returns the total so far.
func (m *ActiveMiner) AddError() int {
	m.ShareLock.Lock()
	defer m.ShareLock.Unlock()
	m.ErrorCounts += 1
	return m.ErrorCounts
}

// Stats returns accepted and rejected share counts.
func (m *ActiveMiner) Stats() (accepted int, rejected int) {
	m.ShareLock.Lock()
	defer m.ShareLock.Unlock()
	return m.Accepted, m.Rejected
}
