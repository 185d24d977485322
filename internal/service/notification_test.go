package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/community-messaging/internal/model"
)

func TestNotificationService_List(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b, c := e.user(t, "a"), e.user(t, "b"), e.user(t, "c")
	e.send(t, a, b, "1")
	e.send(t, c, b, "2")

	list, err := e.notifSvc.List(ctx, b.Email, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	refs := []string{list[0].ReferenceID, list[1].ReferenceID}
	assert.ElementsMatch(t, []string{a.ID, c.ID}, refs)

	list, err = e.notifSvc.List(ctx, b.Email, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = e.notifSvc.List(ctx, "ghost@x", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDispatcher_SkipsUserWithoutEmail(t *testing.T) {
	e := newEnv(t, withoutWorkers(4))
	e.dispatcher.PushUnreadCount(&model.User{ID: "u"})
	e.dispatcher.PushUnreadCount(nil)
	assert.Equal(t, 0, e.dispatcher.QueueLen())
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	e := newEnv(t, withoutWorkers(2))
	u := &model.User{ID: "u", Email: "u@x"}
	for i := 0; i < 5; i++ {
		e.dispatcher.PushUnreadCount(u)
	}
	assert.Equal(t, 2, e.dispatcher.QueueLen())
}

func TestDispatcher_StopDrainsQueue(t *testing.T) {
	e := newEnv(t, withoutWorkers(10))
	a, b := e.user(t, "a"), e.user(t, "b")
	e.send(t, a, b, "hi")
	require.Equal(t, 1, e.dispatcher.QueueLen())

	stop := e.dispatcher.Start(1)
	require.NoError(t, stop(context.Background()))
	assert.Equal(t, 0, e.dispatcher.QueueLen())

	// stop 返回时推送已经完成
	assert.Equal(t, 1, e.publisher.count())
	got, ok := e.publisher.last(UnreadCountDestination(b.Email))
	require.True(t, ok)
	assert.Equal(t, int64(1), got)
}

func TestDispatcher_StopWaitsForInFlightPush(t *testing.T) {
	pub := &fakePublisher{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	e := newEnv(t, withoutWorkers(10), withPublisher(pub))
	a, b := e.user(t, "a"), e.user(t, "b")
	e.send(t, a, b, "hi")

	stop := e.dispatcher.Start(1)
	select {
	case <-pub.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("push never started")
	}
	require.Equal(t, 0, e.dispatcher.QueueLen())

	stopped := make(chan error, 1)
	go func() { stopped <- stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("stop returned while a push was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(pub.gate)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return after the push finished")
	}
	assert.Equal(t, 1, pub.count())
}

func TestDispatcher_StopTimesOutOnStuckPush(t *testing.T) {
	pub := &fakePublisher{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	e := newEnv(t, withoutWorkers(10), withPublisher(pub))
	t.Cleanup(func() { close(pub.gate) })
	a, b := e.user(t, "a"), e.user(t, "b")
	e.send(t, a, b, "hi")

	stop := e.dispatcher.Start(1)
	<-pub.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, stop(ctx), context.DeadlineExceeded)
}

// 推送失败只记日志，消息和通知照常落库
func TestSend_SucceedsWhenPushFails(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	e := newEnv(t, withPublisher(pub))
	ctx := context.Background()
	a, b := e.user(t, "a"), e.user(t, "b")

	msg, err := e.msgSvc.Send(ctx, SendMessageInput{SenderEmail: a.Email, RecipientID: b.ID, Content: "hello"})
	require.NoError(t, err)

	_, err = e.messages.FindByID(ctx, msg.ID)
	require.NoError(t, err)
	notifs, err := e.notifs.ListByRecipient(ctx, b.ID, 10)
	require.NoError(t, err)
	require.Len(t, notifs, 1)
	assert.Equal(t, a.ID, notifs[0].ReferenceID)
	assert.Equal(t, int64(1), e.unread(t, b))

	// 推送确实被尝试过
	assert.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestDispatcher_Metrics(t *testing.T) {
	e := newEnv(t)
	a, b := e.user(t, "a"), e.user(t, "b")
	e.send(t, a, b, "hi")

	select {
	case d := <-e.dispatcher.Metrics():
		assert.GreaterOrEqual(t, int64(d), int64(0))
	case <-time.After(2 * time.Second):
		t.Fatal("no push metric")
	}
}
