package model

import (
	"github.com/abesuite/abe-powminer/consensus/pow"
	"github.com/abesuite/abe-powminer/wire"
)

type BlockSubmitted struct {
	BlockHash pow.Hash
	Height    int64
	Block     *wire.MsgBlock
}
