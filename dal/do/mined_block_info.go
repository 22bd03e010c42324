package do

import "time"

type MinedBlockInfo struct {
	ID        uint64 `gorm:"primaryKey"`
	Worker    string `gorm:"index:idx_worker;type:varchar(100);not null"`
	Height    int64  `gorm:"not null;default:0;index"`
	BlockHash string `gorm:"not null;type:varchar(64);uniqueIndex"`
	Nonce     string `gorm:"not null;type:varchar(32)"`
	Connected int    `gorm:"not null;default:0"`
	Rejected  int    `gorm:"not null;default:0"`
	Info      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
