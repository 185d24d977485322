package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/community-messaging/internal/cache"
	"github.com/d60-Lab/community-messaging/internal/filter"
	"github.com/d60-Lab/community-messaging/internal/media"
	"github.com/d60-Lab/community-messaging/internal/model"
	"github.com/d60-Lab/community-messaging/internal/repository"
	"github.com/d60-Lab/community-messaging/internal/testutil"
	"github.com/d60-Lab/community-messaging/pkg/database"
)

type published struct {
	dest    string
	payload interface{}
}

// fakePublisher 记录每次推送；err 非空时推送失败，
// gate 非空时推送先通知 entered 再等 gate 关闭
type fakePublisher struct {
	mu      sync.Mutex
	sent    []published
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (p *fakePublisher) Publish(_ context.Context, dest string, payload interface{}) error {
	if p.gate != nil {
		select {
		case p.entered <- struct{}{}:
		default:
		}
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{dest: dest, payload: payload})
	return p.err
}

// last 返回发往 dest 的最后一次推送
func (p *fakePublisher) last(dest string) (interface{}, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.sent) - 1; i >= 0; i-- {
		if p.sent[i].dest == dest {
			return p.sent[i].payload, true
		}
	}
	return nil, false
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type testEnv struct {
	db           *gorm.DB
	users        repository.UserRepository
	messages     repository.MessageRepository
	blocks       repository.BlockRepository
	notifs       repository.NotificationRepository
	publisher    *fakePublisher
	dispatcher   *NotificationDispatcher
	summaryCache *cache.SummaryCache
	redis        *miniredis.Miniredis
	msgSvc       MessageService
	blockSvc     BlockService
	convSvc      ConversationService
	notifSvc     NotificationService
	userSvc      UserService
	normalizer   media.Normalizer
}

type envOption func(*envConfig)

type envConfig struct {
	withCache bool
	noWorkers bool
	queueSize int
	publisher *fakePublisher
}

func withRedisCache() envOption { return func(c *envConfig) { c.withCache = true } }

func withPublisher(p *fakePublisher) envOption { return func(c *envConfig) { c.publisher = p } }

// withoutWorkers 不启动推送协程，用于观察队列
func withoutWorkers(size int) envOption {
	return func(c *envConfig) { c.noWorkers = true; c.queueSize = size }
}

func newEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{queueSize: 100}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.publisher == nil {
		cfg.publisher = &fakePublisher{}
	}

	// 单调递增的时钟，保证消息顺序确定
	var mu sync.Mutex
	clock := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	prev := timeNow
	timeNow = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	t.Cleanup(func() { timeNow = prev })

	db := testutil.NewDB(t)
	e := &testEnv{
		db:         db,
		users:      repository.NewUserRepository(db),
		messages:   repository.NewMessageRepository(db),
		blocks:     repository.NewBlockRepository(db),
		notifs:     repository.NewNotificationRepository(db),
		publisher:  cfg.publisher,
		normalizer: media.NewNormalizer("/api/files/", "/images/default-avatar.jpg"),
	}
	e.dispatcher = NewNotificationDispatcher(e.notifs, e.messages, e.publisher, cfg.queueSize)
	if !cfg.noWorkers {
		stop := e.dispatcher.Start(2)
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = stop(ctx)
		})
	}

	var sc SummaryCache
	if cfg.withCache {
		mr := miniredis.RunT(t)
		e.redis = mr
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		e.summaryCache = cache.NewSummaryCache(client, time.Minute)
		sc = e.summaryCache
	}

	tx := database.NewTransactor(db)
	wf := filter.NewWordFilter([]string{"idiota"})
	e.msgSvc = NewMessageService(tx, e.users, e.messages, e.blocks, wf, e.dispatcher, sc)
	e.blockSvc = NewBlockService(e.users, e.blocks, e.normalizer, sc)
	e.convSvc = NewConversationService(e.users, e.messages, e.blocks, e.normalizer, sc)
	e.notifSvc = NewNotificationService(e.users, e.notifs)
	e.userSvc = NewUserService(e.users, e.normalizer)
	return e
}

func (e *testEnv) user(t *testing.T, name string) *model.User {
	t.Helper()
	return testutil.SeedUser(t, e.db, name)
}

func (e *testEnv) send(t *testing.T, from *model.User, to *model.User, content string) *MessageDTO {
	t.Helper()
	msg, err := e.msgSvc.Send(context.Background(), SendMessageInput{SenderEmail: from.Email, RecipientID: to.ID, Content: content})
	require.NoError(t, err)
	return msg
}

func (e *testEnv) unread(t *testing.T, u *model.User) int64 {
	t.Helper()
	n, err := e.msgSvc.CountUnread(context.Background(), u.Email)
	require.NoError(t, err)
	return n
}
