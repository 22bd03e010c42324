package model

import (
	"strconv"

	"github.com/abesuite/abe-powminer/dal/do"
)

func ConvertShareInfoToDO(shareInfo *ShareInfo) *do.DetailedShareInfo {
	if shareInfo == nil {
		return nil
	}
	return &do.DetailedShareInfo{
		Worker:    shareInfo.Worker,
		JobID:     shareInfo.JobID,
		Height:    shareInfo.Height,
		Nonce:     strconv.FormatUint(shareInfo.Nonce, 10),
		ShareHash: shareInfo.ShareHash.Hex(),
		IsBlock:   shareInfo.IsBlock(),
	}
}

func ConvertShareInfoToMinedBlockDO(shareInfo *ShareInfo) *do.MinedBlockInfo {
	if shareInfo == nil || shareInfo.CandidateBlock == nil {
		return nil
	}
	blockHash := shareInfo.CandidateBlock.Header.BlockHash()
	return &do.MinedBlockInfo{
		Worker:    shareInfo.Worker,
		Height:    shareInfo.Height,
		BlockHash: blockHash.String(),
		Nonce:     strconv.FormatUint(shareInfo.Nonce, 10),
	}
}
