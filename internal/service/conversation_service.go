package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/d60-Lab/community-messaging/internal/media"
	"github.com/d60-Lab/community-messaging/internal/model"
	"github.com/d60-Lab/community-messaging/internal/repository"
	"github.com/d60-Lab/community-messaging/pkg/logger"
)

// ConversationService 会话列表聚合：每个对端一条最新消息，过滤双向屏蔽
type ConversationService interface {
	Summarize(ctx context.Context, email string) ([]ConversationSummary, error)
}

type conversationService struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	blocks   repository.BlockRepository
	media    media.Normalizer
	cache    SummaryCache
}

// NewConversationService cache 可以为 nil
func NewConversationService(users repository.UserRepository, messages repository.MessageRepository, blocks repository.BlockRepository, normalizer media.Normalizer, cache SummaryCache) ConversationService {
	return &conversationService{users: users, messages: messages, blocks: blocks, media: normalizer, cache: cache}
}

func (s *conversationService) Summarize(ctx context.Context, email string) ([]ConversationSummary, error) {
	ctx, span := tracer.Start(ctx, "ConversationService.Summarize")
	defer span.End()

	me, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, notFound(err, "user %s", email)
	}

	// 代数要在读库之前取，读库期间的写操作会让它过期
	var gen int64
	cacheable := s.cache != nil
	if cacheable {
		if gen, err = s.cache.Generation(ctx, me.ID); err != nil {
			logger.Warn("read conversation summary generation failed", zap.String("user", me.ID), zap.Error(err))
			cacheable = false
		}
	}
	if cacheable {
		var cached []ConversationSummary
		hit, err := s.cache.Load(ctx, me.ID, &cached)
		if err != nil {
			logger.Warn("load conversation summaries from cache failed", zap.String("user", me.ID), zap.Error(err))
		} else if hit {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil
		}
	}

	res, err := s.compute(ctx, me)
	if err != nil {
		return nil, err
	}
	if cacheable {
		stored, err := s.cache.Store(ctx, me.ID, gen, res)
		if err != nil {
			logger.Warn("store conversation summaries failed", zap.String("user", me.ID), zap.Error(err))
		} else if !stored {
			logger.Debug("conversation summaries changed while computing, not cached", zap.String("user", me.ID))
		}
	}
	return res, nil
}

func (s *conversationService) compute(ctx context.Context, me *model.User) ([]ConversationSummary, error) {
	rows, err := s.messages.LatestPerPeer(ctx, me.ID)
	if err != nil {
		return nil, err
	}
	latest := latestByPeer(rows, me.ID)
	if len(latest) == 0 {
		return []ConversationSummary{}, nil
	}

	peerIDs := make([]string, len(latest))
	for i, m := range latest {
		peerIDs[i] = m.PeerOf(me.ID)
	}
	// 两个集合各一次查询，过滤阶段不再访问存储
	blockedIDs, err := s.blocks.ListBlockedIDs(ctx, me.ID)
	if err != nil {
		return nil, err
	}
	blockerIDs, err := s.blocks.ListBlockersAmong(ctx, me.ID, peerIDs)
	if err != nil {
		return nil, err
	}
	visible := filterVisible(latest, me.ID, NewIDSet(blockedIDs...), NewIDSet(blockerIDs...))
	if len(visible) == 0 {
		return []ConversationSummary{}, nil
	}

	ids := make([]string, len(visible))
	for i, m := range visible {
		ids[i] = m.PeerOf(me.ID)
	}
	peers, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.User, len(peers))
	for _, p := range peers {
		byID[p.ID] = p
	}

	res := make([]ConversationSummary, 0, len(visible))
	for _, m := range visible {
		peer, ok := byID[m.PeerOf(me.ID)]
		if !ok {
			continue
		}
		res = append(res, ConversationSummary{
			PeerID:            peer.ID,
			PeerName:          peer.Name,
			PeerEmail:         peer.Email,
			PeerPhotoURL:      s.media.AvatarURL(peer.ProfilePhoto),
			LastMessageID:     m.ID,
			LastMessage:       m.Content,
			LastMessageAt:     m.SentAt,
			LastMessageSender: m.SenderID,
		})
	}
	return res, nil
}

// latestByPeer 输入已按时间倒序，同一对端只保留第一条
func latestByPeer(rows []*model.PrivateMessage, userID string) []*model.PrivateMessage {
	seen := make(map[string]struct{}, len(rows))
	out := make([]*model.PrivateMessage, 0, len(rows))
	for _, m := range rows {
		peer := m.PeerOf(userID)
		if _, ok := seen[peer]; ok {
			continue
		}
		seen[peer] = struct{}{}
		out = append(out, m)
	}
	return out
}

func filterVisible(candidates []*model.PrivateMessage, userID string, myBlocks, blockedMe IDSet) []*model.PrivateMessage {
	out := make([]*model.PrivateMessage, 0, len(candidates))
	for _, m := range candidates {
		if BlockedEitherWay(myBlocks, blockedMe, m.PeerOf(userID)) {
			continue
		}
		out = append(out, m)
	}
	return out
}
