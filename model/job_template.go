package model

import (
	"encoding/hex"
	"time"

	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/abesuite/abe-powminer/pooljson"
)

// JobTemplate is a unit of work handed to every connected worker.
//
// A job backed by a block template carries the candidate block and its data
// is the hex encoded 80-byte header. A synthetic job only carries text data
// and can never produce a block.
type JobTemplate struct {
	JobID     string
	Data      string
	TargetStr string
	Target    pow.Target
	Candidate *CandidateBlock
	Height    int64
	CreatedAt time.Time
	CleanJob  bool
}

// NewTextJob returns a synthetic job over data.
func NewTextJob(jobID string, data string, target pow.Target, createdAt time.Time) *JobTemplate {
	return &JobTemplate{
		JobID:     jobID,
		Data:      data,
		TargetStr: target.String(),
		Target:    target,
		CreatedAt: createdAt,
		CleanJob:  true,
	}
}

// NewHeaderJob returns a job over the header of candidate. Shares are
// accepted below shareTarget, blocks below the candidate target.
func NewHeaderJob(jobID string, candidate *CandidateBlock, shareTarget pow.Target,
	createdAt time.Time, cleanJob bool) *JobTemplate {

	return &JobTemplate{
		JobID:     jobID,
		Data:      hex.EncodeToString(candidate.HeaderBytes()),
		TargetStr: shareTarget.String(),
		Target:    shareTarget,
		Candidate: candidate,
		Height:    candidate.Height,
		CreatedAt: createdAt,
		CleanJob:  cleanJob,
	}
}

// IsHeaderJob reports whether solutions of the job can become blocks.
func (j *JobTemplate) IsHeaderJob() bool {
	return j.Candidate != nil
}

// JobTemplateMiner is a job as sent to one worker: the shared job plus the
// nonce window assigned to that worker.
type JobTemplateMiner struct {
	JobDetails *JobTemplate
	NonceStart uint64
	NonceEnd   uint64
}

// Notification returns the mining.notify message for the job.
func (j *JobTemplateMiner) Notification() *pooljson.JobNtfn {
	return pooljson.NewJobNtfn(j.JobDetails.JobID, j.JobDetails.Data, j.JobDetails.TargetStr,
		j.NonceStart, j.NonceEnd)
}

// Contains reports whether nonce lies in the window of the worker.
func (j *JobTemplateMiner) Contains(nonce uint64) bool {
	return nonce >= j.NonceStart && nonce <= j.NonceEnd
}
