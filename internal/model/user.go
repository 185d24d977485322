package model

import "time"

// User 用户身份信息；屏蔽关系单独存放在 user_blocks
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name         string    `json:"name" gorm:"type:varchar(120);not null"`
	Email        string    `json:"email" gorm:"type:varchar(191);uniqueIndex;not null"`
	Password     string    `json:"-" gorm:"type:varchar(255);not null"`
	ProfilePhoto string    `json:"profile_photo" gorm:"type:varchar(512)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }
