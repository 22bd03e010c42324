package do

import "time"

type DetailedShareInfo struct {
	ID        uint64 `gorm:"primaryKey"`
	Worker    string `gorm:"index:idx_worker;type:varchar(100);not null"`
	JobID     string `gorm:"not null;type:varchar(64)"`
	Height    int64  `gorm:"not null;default:0;index"`
	Nonce     string `gorm:"not null;type:varchar(32)"`
	ShareHash string `gorm:"not null;type:varchar(64);index"`
	IsBlock   bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
