package repository

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/community-messaging/internal/model"
	"github.com/d60-Lab/community-messaging/internal/testutil"
)

func BenchmarkSendAndCountUnread(b *testing.B) {
	db := testutil.NewDB(b)
	msgRepo := NewMessageRepository(db)
	ctx := context.Background()

	// 预创建部分用户
	users := make([]model.User, 1000)
	for i := range users {
		users[i] = model.User{ID: fmt.Sprintf("u%04d", i), Name: fmt.Sprintf("u%04d", i), Email: fmt.Sprintf("u%04d@example.com", i), Password: "p"}
	}
	if err := db.Create(&users).Error; err != nil {
		b.Fatalf("seed users: %v", err)
	}

	rnd := rand.New(rand.NewSource(42))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		from := users[rnd.Intn(len(users))].ID
		to := users[rnd.Intn(len(users))].ID
		if from == to {
			continue
		}
		_ = msgRepo.Create(ctx, &model.PrivateMessage{ID: uuid.New().String(), Content: "hi", SentAt: time.Now().UTC(), SenderID: from, RecipientID: to})
		_, _ = msgRepo.CountUnread(ctx, to)
	}
}

func BenchmarkLatestPerPeerAndBlockSets(b *testing.B) {
	db := testutil.NewDB(b)
	msgRepo := NewMessageRepository(db)
	blockRepo := NewBlockRepository(db)
	ctx := context.Background()

	// 构造：u0 与 N 个用户各有若干条往来消息，其中 1/10 互相屏蔽
	const N = 2000
	u0 := model.User{ID: "u0", Name: "u0", Email: "u0@example.com", Password: "p"}
	_ = db.Create(&u0).Error
	peers := make([]string, 0, N)
	now := time.Now().UTC()
	for i := 1; i <= N; i++ {
		uid := fmt.Sprintf("u%v", i)
		_ = db.Create(&model.User{ID: uid, Name: uid, Email: uid + "@example.com", Password: "p"}).Error
		for k := 0; k < 3; k++ {
			from, to := uid, u0.ID
			if k%2 == 1 {
				from, to = u0.ID, uid
			}
			at := now.Add(time.Duration(i*3+k) * time.Millisecond)
			_ = msgRepo.Create(ctx, &model.PrivateMessage{ID: uuid.New().String(), Content: "m", SentAt: at, SenderID: from, RecipientID: to})
		}
		if i%10 == 0 {
			_ = blockRepo.Create(ctx, uid, u0.ID)
		}
		peers = append(peers, uid)
	}

	b.ResetTimer()
	b.Run("LatestPerPeer", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = msgRepo.LatestPerPeer(ctx, u0.ID)
		}
	})

	b.Run("ListBlockersAmong", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = blockRepo.ListBlockersAmong(ctx, u0.ID, peers)
		}
	})
}
