// msgbench 压测私信发送、未读数推送与会话列表聚合
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/community-messaging/config"
	"github.com/d60-Lab/community-messaging/internal/filter"
	"github.com/d60-Lab/community-messaging/internal/media"
	"github.com/d60-Lab/community-messaging/internal/model"
	"github.com/d60-Lab/community-messaging/internal/realtime"
	"github.com/d60-Lab/community-messaging/internal/repository"
	"github.com/d60-Lab/community-messaging/internal/service"
	"github.com/d60-Lab/community-messaging/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	if err := database.Migrate(db); err != nil {
		panic(err)
	}

	N := envInt("N", 2000)
	CONC := envInt("CONC", 4)
	BLOCKED := envInt("BLOCKED", 10)

	users := repository.NewUserRepository(db)
	messages := repository.NewMessageRepository(db)
	blocks := repository.NewBlockRepository(db)
	notifs := repository.NewNotificationRepository(db)
	normalizer := media.NewNormalizer(cfg.Media.FilesRoutePrefix, cfg.Media.DefaultAvatar)

	// 没有客户端在线，推送只走到 Hub 为止
	dispatcher := service.NewNotificationDispatcher(notifs, messages, realtime.NewHub(nil), 100000)
	stop := dispatcher.Start(cfg.Messaging.PushWorkers)
	msgSvc := service.NewMessageService(database.NewTransactor(db), users, messages, blocks, filter.NewWordFilter(cfg.Messaging.ProhibitedWords), dispatcher, nil)
	convSvc := service.NewConversationService(users, messages, blocks, normalizer, nil)

	ctx := context.Background()

	// 热点用户 hot 收到 N 个不同用户的私信
	hot := model.User{ID: uuid.New().String(), Name: "hot", Email: "hot-" + uuid.New().String()[:8] + "@example.com", Password: "p"}
	must(0, db.Create(&hot).Error)
	senders := make([]model.User, N)
	batch := 500
	for i := 0; i < N; i++ {
		id := uuid.New().String()
		senders[i] = model.User{ID: id, Name: "u" + id[:8], Email: id[:8] + "@example.com", Password: "p"}
		if (i+1)%batch == 0 {
			sub := senders[i+1-batch : i+1]
			must(0, db.Create(&sub).Error)
		}
	}
	if N%batch != 0 {
		sub := senders[N-N%batch:]
		must(0, db.Create(&sub).Error)
	}

	pushMetrics := dispatcher.Metrics()
	pushRecs := make([]time.Duration, 0, N)
	donePush := make(chan struct{})
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for {
			select {
			case d := <-pushMetrics:
				pushRecs = append(pushRecs, d)
			case <-donePush:
				return
			}
		}
	}()

	sendRecs := make([]time.Duration, 0, N)
	sendCh := make(chan time.Duration, N)
	feed := make(chan int, N)
	for i := 0; i < N; i++ {
		feed <- i
	}
	close(feed)
	workers := CONC
	if workers > N {
		workers = N
	}
	doneCh := make(chan struct{}, workers)
	failed := 0
	failCh := make(chan struct{}, N)

	t0 := time.Now()
	for w := 0; w < workers; w++ {
		go func() {
			for i := range feed {
				st := time.Now()
				_, err := msgSvc.Send(ctx, service.SendMessageInput{SenderEmail: senders[i].Email, RecipientID: hot.ID, Content: "hello " + strconv.Itoa(i)})
				if err != nil {
					failCh <- struct{}{}
					continue
				}
				sendCh <- time.Since(st)
			}
			doneCh <- struct{}{}
		}()
	}
	for w := 0; w < workers; w++ {
		<-doneCh
	}
	sendDur := time.Since(t0)
	close(sendCh)
	close(failCh)
	for d := range sendCh {
		sendRecs = append(sendRecs, d)
	}
	for range failCh {
		failed++
	}

	// 一部分发送者屏蔽热点用户，观察聚合过滤
	if BLOCKED > N {
		BLOCKED = N
	}
	for i := 0; i < BLOCKED; i++ {
		_ = blocks.Create(ctx, senders[i].ID, hot.ID)
	}

	q0 := time.Now()
	unread, _ := msgSvc.CountUnread(ctx, hot.Email)
	countDur := time.Since(q0)

	q1 := time.Now()
	summaries, _ := convSvc.Summarize(ctx, hot.Email)
	sumDur := time.Since(q1)

	q2 := time.Now()
	_, _ = msgSvc.MarkConversationRead(ctx, hot.Email, senders[N-1].ID)
	markDur := time.Since(q2)

	drainStart := time.Now()
	stopCtx, cancel := context.WithTimeout(ctx, time.Minute)
	_ = stop(stopCtx)
	cancel()
	drainDur := time.Since(drainStart)
	time.Sleep(100 * time.Millisecond)
	close(donePush)
	<-collected

	fmt.Printf("N=%d, CONC=%d, BLOCKED=%d, failed=%d\n", N, CONC, BLOCKED, failed)
	if len(sendRecs) > 0 {
		fmt.Printf("Send latency total: %v, per op: %v, p50: %v, p95: %v, p99: %v\n",
			sendDur, sendDur/time.Duration(len(sendRecs)), pct(sendRecs, 0.50), pct(sendRecs, 0.95), pct(sendRecs, 0.99))
	}
	fmt.Printf("CountUnread=%d latency: %v\n", unread, countDur)
	fmt.Printf("Summarize peers=%d latency: %v\n", len(summaries), sumDur)
	fmt.Printf("MarkConversationRead latency: %v\n", markDur)
	if len(pushRecs) > 0 {
		fmt.Printf("Unread push landing: samples=%d, p50=%v, p95=%v, p99=%v, drain=%v\n",
			len(pushRecs), pct(pushRecs, 0.50), pct(pushRecs, 0.95), pct(pushRecs, 0.99), drainDur)
	}
}
