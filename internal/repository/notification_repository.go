package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/community-messaging/internal/model"
	"github.com/d60-Lab/community-messaging/pkg/database"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*model.Notification, error)
}

type notificationRepository struct{ db *gorm.DB }

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return database.Conn(ctx, r.db).Create(n).Error
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*model.Notification, error) {
	var res []*model.Notification
	err := database.Conn(ctx, r.db).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&res).Error
	return res, err
}
