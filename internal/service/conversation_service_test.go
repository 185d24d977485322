package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/community-messaging/internal/model"
	"github.com/d60-Lab/community-messaging/internal/repository"
)

// hookedUsers 在第一次 FindByIDs 之前执行 before，用来模拟读库期间的并发写
type hookedUsers struct {
	repository.UserRepository
	once   sync.Once
	before func()
}

func (h *hookedUsers) FindByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	h.once.Do(h.before)
	return h.UserRepository.FindByIDs(ctx, ids)
}

func TestSummarize_LatestPerPeerNewestFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b, c := e.user(t, "a"), e.user(t, "b"), e.user(t, "c")
	require.NoError(t, e.db.Model(c).Update("profile_photo", "c.png").Error)

	e.send(t, a, b, "ab-1")
	e.send(t, c, a, "ca-1")
	last := e.send(t, b, a, "ba-2")

	res, err := e.convSvc.Summarize(ctx, a.Email)
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, b.ID, res[0].PeerID)
	assert.Equal(t, "ba-2", res[0].LastMessage)
	assert.Equal(t, last.ID, res[0].LastMessageID)
	assert.Equal(t, b.ID, res[0].LastMessageSender)
	assert.Equal(t, "/images/default-avatar.jpg", res[0].PeerPhotoURL)

	assert.Equal(t, c.ID, res[1].PeerID)
	assert.Equal(t, "c@x", res[1].PeerEmail)
	assert.Equal(t, "/api/files/c.png", res[1].PeerPhotoURL)
}

func TestSummarize_HidesBlockedPeersEitherWay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b, c, d := e.user(t, "a"), e.user(t, "b"), e.user(t, "c"), e.user(t, "d")

	e.send(t, a, d, "visible")
	e.send(t, a, c, "to c")
	e.send(t, b, a, "newest overall")

	require.NoError(t, e.blockSvc.Block(ctx, a.Email, c.ID))
	require.NoError(t, e.blockSvc.Block(ctx, b.Email, a.ID))

	res, err := e.convSvc.Summarize(ctx, a.Email)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, d.ID, res[0].PeerID)

	// b 屏蔽了 a，b 那边也看不到 a
	res, err = e.convSvc.Summarize(ctx, b.Email)
	require.NoError(t, err)
	assert.Empty(t, res)

	// 屏蔽不删除历史
	history, err := e.msgSvc.FindBetween(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSummarize_Empty(t *testing.T) {
	e := newEnv(t)
	a := e.user(t, "a")
	res, err := e.convSvc.Summarize(context.Background(), a.Email)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)

	_, err = e.convSvc.Summarize(context.Background(), "ghost@x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSummarize_CacheInvalidatedOnWrites(t *testing.T) {
	e := newEnv(t, withRedisCache())
	ctx := context.Background()
	a, b, c := e.user(t, "a"), e.user(t, "b"), e.user(t, "c")

	e.send(t, a, b, "first")
	res, err := e.convSvc.Summarize(ctx, a.Email)
	require.NoError(t, err)
	require.Len(t, res, 1)

	var cached []ConversationSummary
	hit, err := e.summaryCache.Load(ctx, a.ID, &cached)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, "first", cached[0].LastMessage)

	// 新消息使缓存失效
	e.send(t, c, a, "second")
	res, err = e.convSvc.Summarize(ctx, a.Email)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "second", res[0].LastMessage)

	// 屏蔽使双方缓存失效
	require.NoError(t, e.blockSvc.Block(ctx, c.Email, a.ID))
	res, err = e.convSvc.Summarize(ctx, a.Email)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, b.ID, res[0].PeerID)

	_, err = e.msgSvc.DeleteConversation(ctx, b.Email, a.ID)
	require.NoError(t, err)
	res, err = e.convSvc.Summarize(ctx, a.Email)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSummarize_BlockDuringComputeNotCached(t *testing.T) {
	e := newEnv(t, withRedisCache())
	ctx := context.Background()
	a, b := e.user(t, "a"), e.user(t, "b")
	e.send(t, b, a, "hello")

	users := &hookedUsers{UserRepository: e.users}
	users.before = func() {
		require.NoError(t, e.blockSvc.Block(ctx, b.Email, a.ID))
	}
	svc := NewConversationService(users, e.messages, e.blocks, e.normalizer, e.summaryCache)

	// 这一次读到的是屏蔽之前的数据
	res, err := svc.Summarize(ctx, a.Email)
	require.NoError(t, err)
	require.Len(t, res, 1)

	var cached []ConversationSummary
	hit, err := e.summaryCache.Load(ctx, a.ID, &cached)
	require.NoError(t, err)
	assert.False(t, hit, "stale summaries written after invalidation")

	res, err = svc.Summarize(ctx, a.Email)
	require.NoError(t, err)
	assert.Empty(t, res, "blocked peer still visible")
}

func TestSummarize_RedisDownFallsBackToDatabase(t *testing.T) {
	e := newEnv(t, withRedisCache())
	ctx := context.Background()
	a, b := e.user(t, "a"), e.user(t, "b")
	e.send(t, a, b, "before")

	e.redis.Close()

	msg, err := e.msgSvc.Send(ctx, SendMessageInput{SenderEmail: b.Email, RecipientID: a.ID, Content: "after"})
	require.NoError(t, err)
	assert.Equal(t, "after", msg.Content)

	res, err := e.convSvc.Summarize(ctx, a.Email)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, b.ID, res[0].PeerID)
	assert.Equal(t, "after", res[0].LastMessage)

	require.NoError(t, e.blockSvc.Block(ctx, a.Email, b.ID))
	res, err = e.convSvc.Summarize(ctx, a.Email)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestLatestByPeer_CollapsesTies(t *testing.T) {
	rows := []*model.PrivateMessage{
		{ID: "m3", SenderID: "me", RecipientID: "p1"},
		{ID: "m2", SenderID: "p1", RecipientID: "me"},
		{ID: "m1", SenderID: "p2", RecipientID: "me"},
	}
	got := latestByPeer(rows, "me")
	require.Len(t, got, 2)
	assert.Equal(t, "m3", got[0].ID)
	assert.Equal(t, "m1", got[1].ID)
}

func TestFilterVisible(t *testing.T) {
	rows := []*model.PrivateMessage{
		{ID: "1", SenderID: "me", RecipientID: "x"},
		{ID: "2", SenderID: "y", RecipientID: "me"},
		{ID: "3", SenderID: "z", RecipientID: "me"},
	}
	got := filterVisible(rows, "me", NewIDSet("x"), NewIDSet("y"))
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].ID)
}
