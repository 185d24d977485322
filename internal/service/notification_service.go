package service

import (
	"context"

	"github.com/d60-Lab/community-messaging/internal/repository"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

type NotificationService interface {
	List(ctx context.Context, email string, limit int) ([]NotificationDTO, error)
}

type notificationService struct {
	users  repository.UserRepository
	notifs repository.NotificationRepository
}

func NewNotificationService(users repository.UserRepository, notifs repository.NotificationRepository) NotificationService {
	return &notificationService{users: users, notifs: notifs}
}

func (s *notificationService) List(ctx context.Context, email string, limit int) ([]NotificationDTO, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	me, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, notFound(err, "user %s", email)
	}
	rows, err := s.notifs.ListByRecipient(ctx, me.ID, limit)
	if err != nil {
		return nil, err
	}
	res := make([]NotificationDTO, len(rows))
	for i, n := range rows {
		res[i] = toNotificationDTO(n)
	}
	return res, nil
}
