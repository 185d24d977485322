package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/community-messaging/internal/model"
	"github.com/d60-Lab/community-messaging/pkg/database"
)

type BlockRepository interface {
	Create(ctx context.Context, blockerID, blockedID string) error
	Delete(ctx context.Context, blockerID, blockedID string) error
	Exists(ctx context.Context, blockerID, blockedID string) (bool, error)
	// ListBetween 返回两人之间任意方向的屏蔽记录（最多两条）
	ListBetween(ctx context.Context, userA, userB string) ([]*model.Block, error)
	// ListBlockedIDs 返回 blockerID 屏蔽的全部用户 ID
	ListBlockedIDs(ctx context.Context, blockerID string) ([]string, error)
	// ListBlockersAmong 在 candidateIDs 中找出屏蔽了 blockedID 的用户
	ListBlockersAmong(ctx context.Context, blockedID string, candidateIDs []string) ([]string, error)
	ListBlockedUsers(ctx context.Context, blockerID string) ([]*model.User, error)
}

type blockRepository struct {
	db *gorm.DB
}

func NewBlockRepository(db *gorm.DB) BlockRepository { return &blockRepository{db: db} }

func (r *blockRepository) Create(ctx context.Context, blockerID, blockedID string) error {
	b := &model.Block{ID: uuid.New().String(), BlockerID: blockerID, BlockedID: blockedID}
	// 幂等：重复屏蔽不报错
	return database.Conn(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(b).Error
}

func (r *blockRepository) Delete(ctx context.Context, blockerID, blockedID string) error {
	return database.Conn(ctx, r.db).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&model.Block{}).Error
}

func (r *blockRepository) Exists(ctx context.Context, blockerID, blockedID string) (bool, error) {
	var cnt int64
	if err := database.Conn(ctx, r.db).
		Model(&model.Block{}).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *blockRepository) ListBetween(ctx context.Context, userA, userB string) ([]*model.Block, error) {
	var res []*model.Block
	err := database.Conn(ctx, r.db).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", userA, userB, userB, userA).
		Find(&res).Error
	return res, err
}

func (r *blockRepository) ListBlockedIDs(ctx context.Context, blockerID string) ([]string, error) {
	var ids []string
	err := database.Conn(ctx, r.db).
		Model(&model.Block{}).
		Where("blocker_id = ?", blockerID).
		Pluck("blocked_id", &ids).Error
	return ids, err
}

func (r *blockRepository) ListBlockersAmong(ctx context.Context, blockedID string, candidateIDs []string) ([]string, error) {
	if len(candidateIDs) == 0 {
		return []string{}, nil
	}
	var ids []string
	err := database.Conn(ctx, r.db).
		Model(&model.Block{}).
		Where("blocked_id = ? AND blocker_id IN ?", blockedID, candidateIDs).
		Pluck("blocker_id", &ids).Error
	return ids, err
}

func (r *blockRepository) ListBlockedUsers(ctx context.Context, blockerID string) ([]*model.User, error) {
	var res []*model.User
	err := database.Conn(ctx, r.db).
		Select("users.*").
		Joins("JOIN user_blocks ON user_blocks.blocked_id = users.id").
		Where("user_blocks.blocker_id = ?", blockerID).
		Order("user_blocks.created_at DESC").
		Find(&res).Error
	return res, err
}
