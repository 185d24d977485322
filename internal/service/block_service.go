package service

import (
	"context"

	"github.com/d60-Lab/community-messaging/internal/media"
	"github.com/d60-Lab/community-messaging/internal/model"
	"github.com/d60-Lab/community-messaging/internal/repository"
)

// BlockService 屏蔽关系；只有屏蔽者本人写自己的记录
type BlockService interface {
	Block(ctx context.Context, blockerEmail, blockedID string) error
	Unblock(ctx context.Context, blockerEmail, blockedID string) error
	// IsBlocked 我是否屏蔽了对方
	IsBlocked(ctx context.Context, email, otherID string) (bool, error)
	// WasBlockedBy 对方是否屏蔽了我
	WasBlockedBy(ctx context.Context, email, otherID string) (bool, error)
	ListBlocked(ctx context.Context, email string) ([]UserDTO, error)
}

type blockService struct {
	users  repository.UserRepository
	blocks repository.BlockRepository
	media  media.Normalizer
	cache  SummaryCache
}

func NewBlockService(users repository.UserRepository, blocks repository.BlockRepository, normalizer media.Normalizer, cache SummaryCache) BlockService {
	return &blockService{users: users, blocks: blocks, media: normalizer, cache: cache}
}

func (s *blockService) pair(ctx context.Context, email, otherID string) (*model.User, *model.User, error) {
	me, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, notFound(err, "user %s", email)
	}
	other, err := s.users.FindByID(ctx, otherID)
	if err != nil {
		return nil, nil, notFound(err, "user %s", otherID)
	}
	return me, other, nil
}

func (s *blockService) Block(ctx context.Context, blockerEmail, blockedID string) error {
	blocker, err := s.users.FindByEmail(ctx, blockerEmail)
	if err != nil {
		return notFound(err, "user %s", blockerEmail)
	}
	if err := ValidateBlock(blocker.ID, blockedID); err != nil {
		return err
	}
	if _, err := s.users.FindByID(ctx, blockedID); err != nil {
		return notFound(err, "user %s", blockedID)
	}
	if err := s.blocks.Create(ctx, blocker.ID, blockedID); err != nil {
		return err
	}
	invalidateSummaries(ctx, s.cache, blocker.ID, blockedID)
	return nil
}

func (s *blockService) Unblock(ctx context.Context, blockerEmail, blockedID string) error {
	blocker, blocked, err := s.pair(ctx, blockerEmail, blockedID)
	if err != nil {
		return err
	}
	if err := s.blocks.Delete(ctx, blocker.ID, blocked.ID); err != nil {
		return err
	}
	invalidateSummaries(ctx, s.cache, blocker.ID, blocked.ID)
	return nil
}

func (s *blockService) IsBlocked(ctx context.Context, email, otherID string) (bool, error) {
	me, other, err := s.pair(ctx, email, otherID)
	if err != nil {
		return false, err
	}
	return s.blocks.Exists(ctx, me.ID, other.ID)
}

func (s *blockService) WasBlockedBy(ctx context.Context, email, otherID string) (bool, error) {
	me, other, err := s.pair(ctx, email, otherID)
	if err != nil {
		return false, err
	}
	return s.blocks.Exists(ctx, other.ID, me.ID)
}

func (s *blockService) ListBlocked(ctx context.Context, email string) ([]UserDTO, error) {
	me, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, notFound(err, "user %s", email)
	}
	users, err := s.blocks.ListBlockedUsers(ctx, me.ID)
	if err != nil {
		return nil, err
	}
	res := make([]UserDTO, len(users))
	for i, u := range users {
		res[i] = toUserDTO(u, s.media)
	}
	return res, nil
}
