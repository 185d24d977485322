package service

import (
	"time"

	"github.com/d60-Lab/community-messaging/internal/media"
	"github.com/d60-Lab/community-messaging/internal/model"
)

// MessageDTO 对外返回的私信，不包含关联实体
type MessageDTO struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sent_at"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	SenderEmail    string    `json:"sender_email"`
	RecipientID    string    `json:"recipient_id"`
	RecipientName  string    `json:"recipient_name"`
	RecipientEmail string    `json:"recipient_email"`
	Read           bool      `json:"read"`
}

// ConversationSummary 每个对端一条，只保留最新消息
type ConversationSummary struct {
	PeerID            string    `json:"peer_id"`
	PeerName          string    `json:"peer_name"`
	PeerEmail         string    `json:"peer_email"`
	PeerPhotoURL      string    `json:"peer_photo_url"`
	LastMessageID     string    `json:"last_message_id"`
	LastMessage       string    `json:"last_message"`
	LastMessageAt     time.Time `json:"last_message_at"`
	LastMessageSender string    `json:"last_message_sender_id"`
}

type UserDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	ProfilePhoto string `json:"profile_photo"`
}

type NotificationDTO struct {
	ID          string    `json:"id"`
	Message     string    `json:"message"`
	Category    string    `json:"category"`
	ReferenceID string    `json:"reference_id"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

func toMessageDTO(m *model.PrivateMessage) *MessageDTO {
	dto := &MessageDTO{
		ID:          m.ID,
		Content:     m.Content,
		SentAt:      m.SentAt,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Read:        m.Read,
	}
	if m.Sender != nil {
		dto.SenderName = m.Sender.Name
		dto.SenderEmail = m.Sender.Email
	}
	if m.Recipient != nil {
		dto.RecipientName = m.Recipient.Name
		dto.RecipientEmail = m.Recipient.Email
	}
	return dto
}

func toUserDTO(u *model.User, n media.Normalizer) UserDTO {
	return UserDTO{ID: u.ID, Name: u.Name, Email: u.Email, ProfilePhoto: n.AvatarURL(u.ProfilePhoto)}
}

func toNotificationDTO(n *model.Notification) NotificationDTO {
	return NotificationDTO{
		ID:          n.ID,
		Message:     n.Message,
		Category:    n.Category,
		ReferenceID: n.ReferenceID,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
}
