package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/d60-Lab/community-messaging/internal/filter"
	"github.com/d60-Lab/community-messaging/internal/model"
	"github.com/d60-Lab/community-messaging/internal/repository"
	"github.com/d60-Lab/community-messaging/pkg/database"
)

var tracer = otel.Tracer("github.com/d60-Lab/community-messaging/internal/service")

// timeNow 测试中可替换
var timeNow = func() time.Time { return time.Now().UTC() }

type SendMessageInput struct {
	SenderEmail string
	RecipientID string
	Content     string
}

// MessageService 私信读写
type MessageService interface {
	Send(ctx context.Context, in SendMessageInput) (*MessageDTO, error)
	// Edit 只有发送者可以修改
	Edit(ctx context.Context, messageID, content, requesterEmail string) (*MessageDTO, error)
	// Delete 只有发送者可以删除，返回删除前的快照
	Delete(ctx context.Context, messageID, requesterEmail string) (*MessageDTO, error)
	FindBetween(ctx context.Context, userAID, userBID string) ([]*MessageDTO, error)
	// History 当前用户与 peerID 的完整历史
	History(ctx context.Context, email, peerID string) ([]*MessageDTO, error)
	CountUnread(ctx context.Context, email string) (int64, error)
	MarkConversationRead(ctx context.Context, readerEmail, peerID string) (int64, error)
	DeleteConversation(ctx context.Context, email, peerID string) (int64, error)
}

type messageService struct {
	tx         *database.Transactor
	users      repository.UserRepository
	messages   repository.MessageRepository
	blocks     repository.BlockRepository
	filter     filter.ContentFilter
	dispatcher *NotificationDispatcher
	cache      SummaryCache
}

func NewMessageService(
	tx *database.Transactor,
	users repository.UserRepository,
	messages repository.MessageRepository,
	blocks repository.BlockRepository,
	contentFilter filter.ContentFilter,
	dispatcher *NotificationDispatcher,
	cache SummaryCache,
) MessageService {
	return &messageService{
		tx:         tx,
		users:      users,
		messages:   messages,
		blocks:     blocks,
		filter:     contentFilter,
		dispatcher: dispatcher,
		cache:      cache,
	}
}

func (s *messageService) checkContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: content is empty", ErrInvalidArgument)
	}
	if s.filter != nil && s.filter.ContainsProhibited(content) {
		return ErrInvalidContent
	}
	return nil
}

func (s *messageService) userByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, notFound(err, "user %s", email)
	}
	return u, nil
}

func (s *messageService) userByID(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "user %s", id)
	}
	return u, nil
}

func (s *messageService) Send(ctx context.Context, in SendMessageInput) (*MessageDTO, error) {
	ctx, span := tracer.Start(ctx, "MessageService.Send")
	defer span.End()

	if err := s.checkContent(in.Content); err != nil {
		return nil, err
	}
	sender, err := s.userByEmail(ctx, in.SenderEmail)
	if err != nil {
		return nil, err
	}
	recipient, err := s.userByID(ctx, in.RecipientID)
	if err != nil {
		return nil, err
	}
	if sender.ID == recipient.ID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrInvalidArgument)
	}
	span.SetAttributes(attribute.String("sender.id", sender.ID), attribute.String("recipient.id", recipient.ID))

	msg := &model.PrivateMessage{
		ID:          uuid.New().String(),
		Content:     in.Content,
		SentAt:      timeNow(),
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		rows, err := s.blocks.ListBetween(ctx, sender.ID, recipient.ID)
		if err != nil {
			return err
		}
		idx := IndexBlocks(rows)
		if !CanSend(idx.Of(sender.ID), idx.Of(recipient.ID), sender.ID, recipient.ID) {
			return fmt.Errorf("%w: messaging between these users is blocked", ErrForbidden)
		}
		if err := s.messages.Create(ctx, msg); err != nil {
			return err
		}
		return s.dispatcher.RecordPrivateMessage(ctx, recipient, sender)
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher.PushUnreadCount(recipient)
	invalidateSummaries(ctx, s.cache, sender.ID, recipient.ID)

	msg.Sender, msg.Recipient = sender, recipient
	return toMessageDTO(msg), nil
}

// loadOwned 读取消息并确认 requester 是发送者
func (s *messageService) loadOwned(ctx context.Context, messageID, requesterEmail string) (*model.PrivateMessage, error) {
	requester, err := s.userByEmail(ctx, requesterEmail)
	if err != nil {
		return nil, err
	}
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, notFound(err, "message %s", messageID)
	}
	if msg.SenderID != requester.ID {
		return nil, fmt.Errorf("%w: only the sender may change this message", ErrForbidden)
	}
	return msg, nil
}

func (s *messageService) Edit(ctx context.Context, messageID, content, requesterEmail string) (*MessageDTO, error) {
	if err := s.checkContent(content); err != nil {
		return nil, err
	}
	var msg *model.PrivateMessage
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		msg, err = s.loadOwned(ctx, messageID, requesterEmail)
		if err != nil {
			return err
		}
		if err := s.messages.UpdateContent(ctx, messageID, content); err != nil {
			return notFound(err, "message %s", messageID)
		}
		msg.Content = content
		return nil
	})
	if err != nil {
		return nil, err
	}
	invalidateSummaries(ctx, s.cache, msg.SenderID, msg.RecipientID)
	return toMessageDTO(msg), nil
}

func (s *messageService) Delete(ctx context.Context, messageID, requesterEmail string) (*MessageDTO, error) {
	var msg *model.PrivateMessage
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		msg, err = s.loadOwned(ctx, messageID, requesterEmail)
		if err != nil {
			return err
		}
		if err := s.messages.Delete(ctx, messageID); err != nil {
			return notFound(err, "message %s", messageID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !msg.Read {
		s.dispatcher.PushUnreadCount(msg.Recipient)
	}
	invalidateSummaries(ctx, s.cache, msg.SenderID, msg.RecipientID)
	return toMessageDTO(msg), nil
}

func (s *messageService) FindBetween(ctx context.Context, userAID, userBID string) ([]*MessageDTO, error) {
	if _, err := s.userByID(ctx, userAID); err != nil {
		return nil, err
	}
	if _, err := s.userByID(ctx, userBID); err != nil {
		return nil, err
	}
	rows, err := s.messages.FindBetween(ctx, userAID, userBID)
	if err != nil {
		return nil, err
	}
	res := make([]*MessageDTO, len(rows))
	for i, m := range rows {
		res[i] = toMessageDTO(m)
	}
	return res, nil
}

func (s *messageService) History(ctx context.Context, email, peerID string) ([]*MessageDTO, error) {
	me, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.FindBetween(ctx, me.ID, peerID)
}

func (s *messageService) CountUnread(ctx context.Context, email string) (int64, error) {
	me, err := s.userByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	return s.messages.CountUnread(ctx, me.ID)
}

func (s *messageService) MarkConversationRead(ctx context.Context, readerEmail, peerID string) (int64, error) {
	reader, err := s.userByEmail(ctx, readerEmail)
	if err != nil {
		return 0, err
	}
	if _, err := s.userByID(ctx, peerID); err != nil {
		return 0, err
	}
	var marked int64
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		marked, err = s.messages.MarkConversationRead(ctx, reader.ID, peerID)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.dispatcher.PushUnreadCount(reader)
	invalidateSummaries(ctx, s.cache, reader.ID)
	return marked, nil
}

func (s *messageService) DeleteConversation(ctx context.Context, email, peerID string) (int64, error) {
	me, err := s.userByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	peer, err := s.userByID(ctx, peerID)
	if err != nil {
		return 0, err
	}
	var deleted int64
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = s.messages.DeleteConversation(ctx, me.ID, peer.ID)
		return err
	})
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.dispatcher.PushUnreadCount(me)
		s.dispatcher.PushUnreadCount(peer)
	}
	invalidateSummaries(ctx, s.cache, me.ID, peer.ID)
	return deleted, nil
}
