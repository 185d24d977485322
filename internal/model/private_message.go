package model

import "time"

// PrivateMessage 私信；创建后只允许修改内容（发送者）和已读标记（接收者）
type PrivateMessage struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	Content     string    `gorm:"type:text;not null"`
	SentAt      time.Time `gorm:"index:idx_pm_pair_sent,priority:3;not null"`
	SenderID    string    `gorm:"type:varchar(36);index:idx_pm_pair_sent,priority:1;not null"`
	RecipientID string    `gorm:"type:varchar(36);index:idx_pm_pair_sent,priority:2;index:idx_pm_recipient_read,priority:1;not null"`
	Read        bool      `gorm:"column:is_read;index:idx_pm_recipient_read,priority:2;not null;default:false"`
	UpdatedAt   time.Time

	Sender    *User `gorm:"foreignKey:SenderID"`
	Recipient *User `gorm:"foreignKey:RecipientID"`
}

func (PrivateMessage) TableName() string { return "private_messages" }

// PeerOf 返回 userID 在这条消息中的对端
func (m *PrivateMessage) PeerOf(userID string) string {
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}
