package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/community-messaging/internal/model"
	"github.com/d60-Lab/community-messaging/pkg/database"
)

// MessageRepository 私信存储
type MessageRepository interface {
	Create(ctx context.Context, msg *model.PrivateMessage) error
	// FindByID 同时加载发送者与接收者
	FindByID(ctx context.Context, id string) (*model.PrivateMessage, error)
	UpdateContent(ctx context.Context, id, content string) error
	Delete(ctx context.Context, id string) error
	// FindBetween 两人之间的完整历史，按发送时间正序
	FindBetween(ctx context.Context, userA, userB string) ([]*model.PrivateMessage, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	// MarkConversationRead 将 peerID 发给 readerID 的未读消息全部置为已读，返回受影响行数
	MarkConversationRead(ctx context.Context, readerID, peerID string) (int64, error)
	// DeleteConversation 删除两人之间双向的全部消息，返回删除行数
	DeleteConversation(ctx context.Context, userID, peerID string) (int64, error)
	// LatestPerPeer 每个对端最新的一条消息，按时间倒序；时间相同的对端可能返回多行
	LatestPerPeer(ctx context.Context, userID string) ([]*model.PrivateMessage, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository { return &messageRepository{db: db} }

func (r *messageRepository) Create(ctx context.Context, msg *model.PrivateMessage) error {
	return database.Conn(ctx, r.db).Omit(clause.Associations).Create(msg).Error
}

func (r *messageRepository) FindByID(ctx context.Context, id string) (*model.PrivateMessage, error) {
	var msg model.PrivateMessage
	err := database.Conn(ctx, r.db).
		Preload("Sender").
		Preload("Recipient").
		Where("id = ?", id).
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, id, content string) error {
	res := database.Conn(ctx, r.db).
		Model(&model.PrivateMessage{}).
		Where("id = ?", id).
		Update("content", content)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *messageRepository) Delete(ctx context.Context, id string) error {
	res := database.Conn(ctx, r.db).Where("id = ?", id).Delete(&model.PrivateMessage{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *messageRepository) FindBetween(ctx context.Context, userA, userB string) ([]*model.PrivateMessage, error) {
	var res []*model.PrivateMessage
	err := database.Conn(ctx, r.db).
		Preload("Sender").
		Preload("Recipient").
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", userA, userB, userB, userA).
		Order("sent_at ASC, id ASC").
		Find(&res).Error
	return res, err
}

func (r *messageRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	var cnt int64
	err := database.Conn(ctx, r.db).
		Model(&model.PrivateMessage{}).
		Where("recipient_id = ? AND is_read = ?", userID, false).
		Count(&cnt).Error
	return cnt, err
}

func (r *messageRepository) MarkConversationRead(ctx context.Context, readerID, peerID string) (int64, error) {
	// 单条 UPDATE，避免逐行加锁
	res := database.Conn(ctx, r.db).
		Model(&model.PrivateMessage{}).
		Where("sender_id = ? AND recipient_id = ? AND is_read = ?", peerID, readerID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *messageRepository) DeleteConversation(ctx context.Context, userID, peerID string) (int64, error) {
	res := database.Conn(ctx, r.db).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", userID, peerID, peerID, userID).
		Delete(&model.PrivateMessage{})
	return res.RowsAffected, res.Error
}

const latestPerPeerSQL = `
SELECT m.*
FROM private_messages m
JOIN (
    SELECT CASE WHEN sender_id = ? THEN recipient_id ELSE sender_id END AS peer_id,
           MAX(sent_at) AS last_at
    FROM private_messages
    WHERE sender_id = ? OR recipient_id = ?
    GROUP BY 1
) latest
  ON m.sent_at = latest.last_at
 AND ((m.sender_id = ? AND m.recipient_id = latest.peer_id)
   OR (m.recipient_id = ? AND m.sender_id = latest.peer_id))
ORDER BY m.sent_at DESC, m.id DESC`

func (r *messageRepository) LatestPerPeer(ctx context.Context, userID string) ([]*model.PrivateMessage, error) {
	var res []*model.PrivateMessage
	err := database.Conn(ctx, r.db).
		Raw(latestPerPeerSQL, userID, userID, userID, userID, userID).
		Scan(&res).Error
	return res, err
}
