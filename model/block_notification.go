package model

import (
	"time"

	"github.com/abesuite/abe-powminer/consensus/pow"
)

type BlockNotification struct {
	BlockHash pow.Hash
	Height    int64
	Time      time.Time
	Info      string
}
