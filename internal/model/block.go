package model

import "time"

// Block 屏蔽关系（A 屏蔽 B），有方向，只由 blocker 本人写入
type Block struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	BlockerID string `gorm:"type:varchar(36);index:idx_block_pair,unique;not null"`
	BlockedID string `gorm:"type:varchar(36);index:idx_block_blocked;index:idx_block_pair,unique;not null"`
	// 复合唯一键，避免重复屏蔽
	// idx_block_pair = (blocker_id, blocked_id)
	CreatedAt time.Time
}

func (Block) TableName() string { return "user_blocks" }
