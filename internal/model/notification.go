package model

import "time"

// NotificationCategoryPrivateMessage 新私信通知
const NotificationCategoryPrivateMessage = "PRIVATE_MESSAGE"

// Notification 持久化通知记录
type Notification struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	RecipientID string    `gorm:"type:varchar(36);index:idx_notification_recipient,priority:1;not null"`
	Message     string    `gorm:"type:text;not null"`
	Category    string    `gorm:"type:varchar(32);not null"`
	ReferenceID string    `gorm:"type:varchar(36)"`
	Read        bool      `gorm:"column:is_read;not null;default:false"`
	CreatedAt   time.Time `gorm:"index:idx_notification_recipient,priority:2"`
}

func (Notification) TableName() string { return "notifications" }
