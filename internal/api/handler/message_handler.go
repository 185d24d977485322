package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/community-messaging/internal/api/middleware"
	"github.com/d60-Lab/community-messaging/internal/service"
	"github.com/d60-Lab/community-messaging/pkg/response"
)

type sendMessageRequest struct {
	RecipientID string `json:"recipient_id" binding:"required"`
	Content     string `json:"content" binding:"required,notblank,max=4000"`
}

type editMessageRequest struct {
	Content string `json:"content" binding:"required,notblank,max=4000"`
}

// SendMessage 发送私信
// @Summary 发送私信
// @Tags 私信
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body sendMessageRequest true "私信内容"
// @Success 201 {object} response.Response{data=service.MessageDTO}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response "双方存在屏蔽关系"
// @Failure 404 {object} response.Response
// @Router /api/v1/messages [post]
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	msg, err := h.messageService.Send(c.Request.Context(), service.SendMessageInput{
		SenderEmail: middleware.CurrentEmail(c),
		RecipientID: req.RecipientID,
		Content:     req.Content,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, msg)
}

// EditMessage 修改私信内容，仅发送者
// @Summary 修改私信
// @Tags 私信
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "私信ID"
// @Param request body editMessageRequest true "新内容"
// @Success 200 {object} response.Response{data=service.MessageDTO}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/messages/{id} [put]
func (h *Handler) EditMessage(c *gin.Context) {
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	msg, err := h.messageService.Edit(c.Request.Context(), c.Param("id"), req.Content, middleware.CurrentEmail(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, msg)
}

// DeleteMessage 删除私信，仅发送者
// @Summary 删除私信
// @Tags 私信
// @Produce json
// @Security BearerAuth
// @Param id path string true "私信ID"
// @Success 200 {object} response.Response{data=service.MessageDTO}
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/messages/{id} [delete]
func (h *Handler) DeleteMessage(c *gin.Context) {
	msg, err := h.messageService.Delete(c.Request.Context(), c.Param("id"), middleware.CurrentEmail(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, msg)
}

// ListConversationMessages 与某用户的全部私信，按时间正序
// @Summary 查询与某用户的私信历史
// @Tags 私信
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "对端用户ID"
// @Success 200 {object} response.Response{data=[]service.MessageDTO}
// @Failure 404 {object} response.Response
// @Router /api/v1/messages/with/{user_id} [get]
func (h *Handler) ListConversationMessages(c *gin.Context) {
	list, err := h.messageService.History(c.Request.Context(), middleware.CurrentEmail(c), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, list)
}

// UnreadCount 未读私信数
// @Summary 查询未读私信数
// @Tags 私信
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=map[string]int64}
// @Router /api/v1/messages/unread-count [get]
func (h *Handler) UnreadCount(c *gin.Context) {
	cnt, err := h.messageService.CountUnread(c.Request.Context(), middleware.CurrentEmail(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"count": cnt})
}

// MarkConversationRead 把对端发来的消息全部标为已读
// @Summary 标记会话已读
// @Tags 私信
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "对端用户ID"
// @Success 200 {object} response.Response{data=map[string]int64}
// @Failure 404 {object} response.Response
// @Router /api/v1/messages/with/{user_id}/read [post]
func (h *Handler) MarkConversationRead(c *gin.Context) {
	marked, err := h.messageService.MarkConversationRead(c.Request.Context(), middleware.CurrentEmail(c), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"marked": marked})
}

// DeleteConversation 删除与某用户的全部私信（双向，不可恢复）
// @Summary 删除会话
// @Tags 私信
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "对端用户ID"
// @Success 200 {object} response.Response{data=map[string]int64}
// @Failure 404 {object} response.Response
// @Router /api/v1/messages/with/{user_id} [delete]
func (h *Handler) DeleteConversation(c *gin.Context) {
	deleted, err := h.messageService.DeleteConversation(c.Request.Context(), middleware.CurrentEmail(c), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": deleted})
}

// ListConversations 会话列表
// @Summary 会话列表（每个对端一条最新消息）
// @Tags 私信
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]service.ConversationSummary}
// @Router /api/v1/conversations [get]
func (h *Handler) ListConversations(c *gin.Context) {
	list, err := h.conversationService.Summarize(c.Request.Context(), middleware.CurrentEmail(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, list)
}
