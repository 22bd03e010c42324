package do

import "time"

// WorkerInfo keeps the running totals of one worker address across
// connections.
type WorkerInfo struct {
	ID             uint64 `gorm:"primaryKey"`
	Address        string `gorm:"uniqueIndex:unique_idx_address;type:varchar(100);not null"`
	AcceptedShares int64  `gorm:"not null;default:0"`
	RejectedShares int64  `gorm:"not null;default:0"`
	MinedBlocks    int64  `gorm:"not null;default:0"`
	LastSeenAt     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
