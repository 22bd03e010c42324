package minermgr

import (
	"context"
	"errors"
	"strings"

	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/abesuite/abe-powminer/cpuminer"
	"github.com/abesuite/abe-powminer/model"
	"github.com/abesuite/abe-powminer/pooljson"
	"github.com/abesuite/abe-powminer/service"
)

var (
	// ErrStaleShare is returned when the worker has no job to submit for.
	ErrStaleShare = errors.New("no active job")

	// ErrNonceOutOfRange is returned for a nonce outside the windows of
	// the recent jobs of the worker.
	ErrNonceOutOfRange = errors.New("nonce out of range")

	// ErrHashMismatch is returned when the reported hash is not the digest
	// of the nonce for any recent job.
	ErrHashMismatch = errors.New("hash does not match nonce")

	// ErrLowDifficultyShare is returned for a digest above the share
	// target.
	ErrLowDifficultyShare = errors.New("share above target")

	// ErrDuplicateShare is returned for a nonce already submitted for the
	// same job.
	ErrDuplicateShare = errors.New("duplicate share")
)

// jobWork returns the digest function of a job.
func jobWork(job *model.JobTemplate) cpuminer.Work {
	if job.IsHeaderJob() {
		work, err := cpuminer.NewHeaderWork(job.Candidate.HeaderBytes())
		if err == nil {
			return work
		}
	}
	return cpuminer.NewTextWork(job.Data)
}

// CheckShareValidity finds the recent job of the miner the submission
// belongs to and checks it against the share target. The returned share
// carries the solved block when the digest also meets the block target.
func (mgr *MinerManager) CheckShareValidity(minerInfo *model.ActiveMiner, cmd *pooljson.SubmitCmd) (*model.ShareInfo, error) {
	jobs := minerInfo.Jobs()
	if len(jobs) == 0 {
		return nil, ErrStaleShare
	}

	reported := strings.ToLower(cmd.Hash)
	var (
		matched *model.JobTemplateMiner
		hash    pow.Hash
		inRange bool
	)
	for _, job := range jobs {
		if !job.Contains(cmd.Nonce) {
			continue
		}
		inRange = true
		digest := jobWork(job.JobDetails).Digest(cmd.Nonce)
		if digest.Hex() == reported {
			matched = job
			hash = digest
			break
		}
	}
	if !inRange {
		return nil, ErrNonceOutOfRange
	}
	if matched == nil {
		return nil, ErrHashMismatch
	}

	details := matched.JobDetails
	if !pow.HashBelowTarget(&hash, &details.Target) {
		return nil, ErrLowDifficultyShare
	}
	if !minerInfo.CheckDuplicateShare(cmd.Nonce, details.JobID) {
		return nil, ErrDuplicateShare
	}

	shareInfo := &model.ShareInfo{
		Worker:    minerInfo.Address,
		JobID:     details.JobID,
		Height:    details.Height,
		Nonce:     cmd.Nonce,
		ShareHash: hash,
		ThreadID:  cmd.ThreadID,
	}
	if details.IsHeaderJob() && pow.HashBelowTarget(&hash, &details.Candidate.Target) {
		shareInfo.CandidateBlock = details.Candidate.Block(uint32(cmd.Nonce))
	}
	return shareInfo, nil
}

// HandleSubmit validates a submission of the miner, updates its counters,
// persists the result and hands a solved block to the chain client.
func (mgr *MinerManager) HandleSubmit(wsc chan struct{}, cmd *pooljson.SubmitCmd) (*model.ShareInfo, error) {
	minerInfo, ok := mgr.GetMiner(wsc)
	if !ok {
		return nil, ErrMinerNotFound
	}

	shareInfo, err := mgr.CheckShareValidity(minerInfo, cmd)
	if err != nil {
		minerInfo.RejectShare()
		if mgr.cfg.Db != nil {
			if dbErr := service.GetShareService().AddRejectedShare(context.Background(), mgr.cfg.Db, minerInfo.Address); dbErr != nil {
				log.Warnf("Unable to record rejected share of %v: %v", minerInfo.Address, dbErr)
			}
		}
		return nil, err
	}

	minerInfo.AcceptShare(shareInfo.IsBlock())
	log.Debugf("Accepted share from %v: job %v nonce %v hash %v", minerInfo.Address, shareInfo.JobID,
		shareInfo.Nonce, shareInfo.ShareHash.Hex())

	if mgr.cfg.Db != nil {
		err := service.GetShareService().AddShare(context.Background(), mgr.cfg.Db, shareInfo, mgr.cfg.RecordShareDetail)
		if err != nil {
			log.Errorf("Unable to record share of %v: %v", minerInfo.Address, err)
		}
	}

	if shareInfo.IsBlock() {
		mgr.submitBlock(shareInfo)
	}
	return shareInfo, nil
}

func (mgr *MinerManager) submitBlock(shareInfo *model.ShareInfo) {
	block := shareInfo.CandidateBlock
	blockHash := block.Header.BlockHash()
	log.Infof("Worker %v found block %v at height %v", shareInfo.Worker, blockHash, shareInfo.Height)

	if mgr.cfg.Db != nil {
		err := service.GetShareService().AddMinedBlock(context.Background(), mgr.cfg.Db, shareInfo)
		if err != nil {
			log.Errorf("Unable to record mined block %v: %v", blockHash, err)
		}
	}
	if mgr.cfg.Submitter != nil {
		mgr.cfg.Submitter.SubmitBlock(&model.BlockSubmitted{
			BlockHash: blockHash,
			Height:    shareInfo.Height,
			Block:     block,
		})
	}
	mgr.sendNotification(NTBlockFound, shareInfo)
}

// HandleProgress records the nonce a thread of the miner has reached.
func (mgr *MinerManager) HandleProgress(wsc chan struct{}, cmd *pooljson.ProgressCmd) error {
	minerInfo, ok := mgr.GetMiner(wsc)
	if !ok {
		return ErrMinerNotFound
	}
	minerInfo.UpdateProgress(cmd.Nonce)
	log.Tracef("Progress from %v thread %d: nonce %d", minerInfo.Address, cmd.ThreadID, cmd.Nonce)
	return nil
}
