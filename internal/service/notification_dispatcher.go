package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/community-messaging/internal/model"
	"github.com/d60-Lab/community-messaging/internal/repository"
	"github.com/d60-Lab/community-messaging/pkg/logger"
)

// Publisher 实时推送通道
type Publisher interface {
	Publish(ctx context.Context, destination string, payload interface{}) error
}

// UnreadCountDestination 用户未读数推送地址
func UnreadCountDestination(email string) string {
	return "/user/" + email + "/queue/unread-count"
}

type pushJob struct {
	userID string
	email  string
	enqAt  time.Time
}

// NotificationDispatcher 写通知记录，并在本地队列上异步推送未读数
type NotificationDispatcher struct {
	notifRepo repository.NotificationRepository
	msgRepo   repository.MessageRepository
	publisher Publisher
	ch        chan pushJob
	metricsCh chan time.Duration
}

func NewNotificationDispatcher(notifRepo repository.NotificationRepository, msgRepo repository.MessageRepository, publisher Publisher, queueSize int) *NotificationDispatcher {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &NotificationDispatcher{
		notifRepo: notifRepo,
		msgRepo:   msgRepo,
		publisher: publisher,
		ch:        make(chan pushJob, queueSize),
		metricsCh: make(chan time.Duration, 65536),
	}
}

// RecordPrivateMessage 在调用方的事务内写入新私信通知
func (d *NotificationDispatcher) RecordPrivateMessage(ctx context.Context, recipient, sender *model.User) error {
	n := &model.Notification{
		ID:          uuid.New().String(),
		RecipientID: recipient.ID,
		Message:     fmt.Sprintf("You received a new message from %s", sender.Name),
		Category:    model.NotificationCategoryPrivateMessage,
		ReferenceID: sender.ID,
	}
	return d.notifRepo.Create(ctx, n)
}

// Start 启动 workers 个推送协程。返回的函数先等队列排空，
// 再等正在执行的推送结束，之后才能关闭数据库
func (d *NotificationDispatcher) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case job := <-d.ch:
					d.push(job)
				case <-stopCh:
					return
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for len(d.ch) > 0 {
			select {
			case <-ctx.Done():
				close(stopCh)
				logger.Warn("dispatcher stopped with pending pushes", zap.Int("pending", len(d.ch)))
				return ctx.Err()
			case <-ticker.C:
			}
		}
		// 队列空了，worker 只会在手头的推送完成后看到 stopCh
		close(stopCh)
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			logger.Warn("dispatcher stopped with in-flight pushes")
			return ctx.Err()
		}
	}
}

// PushUnreadCount 入队一次未读数推送；没有 email 的用户直接跳过，队列满时丢弃
func (d *NotificationDispatcher) PushUnreadCount(u *model.User) {
	if u == nil || u.Email == "" {
		return
	}
	select {
	case d.ch <- pushJob{userID: u.ID, email: u.Email, enqAt: time.Now()}:
	default:
		logger.Warn("push queue full, drop unread-count push", zap.String("user", u.ID))
	}
}

func (d *NotificationDispatcher) push(job pushJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cnt, err := d.msgRepo.CountUnread(ctx, job.userID)
	if err != nil {
		logger.Warn("count unread for push failed", zap.String("user", job.userID), zap.Error(err))
		return
	}
	if err := d.publisher.Publish(ctx, UnreadCountDestination(job.email), cnt); err != nil {
		logger.Debug("unread-count push failed", zap.String("user", job.userID), zap.Error(err))
	}
	select {
	case d.metricsCh <- time.Since(job.enqAt):
	default:
	}
}

// Metrics 返回推送耗时（入队到发布完成）的只读通道
func (d *NotificationDispatcher) Metrics() <-chan time.Duration { return d.metricsCh }

// QueueLen 当前队列长度（采样值）
func (d *NotificationDispatcher) QueueLen() int { return len(d.ch) }
