package model

import (
	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/abesuite/abe-powminer/wire"
)

type ShareInfo struct {
	Worker    string
	JobID     string
	Height    int64
	Nonce     uint64
	ShareHash pow.Hash
	ThreadID  int

	// CandidateBlock is set when the share also meets the block target.
	CandidateBlock *wire.MsgBlock
}

// IsBlock reports whether the share solved a block.
func (s *ShareInfo) IsBlock() bool {
	return s.CandidateBlock != nil
}
