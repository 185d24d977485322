package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/community-messaging/internal/api/middleware"
	"github.com/d60-Lab/community-messaging/internal/realtime"
	"github.com/d60-Lab/community-messaging/internal/service"
	"github.com/d60-Lab/community-messaging/pkg/response"
)

// Handler HTTP 处理器集合
type Handler struct {
	userService         service.UserService
	messageService      service.MessageService
	conversationService service.ConversationService
	blockService        service.BlockService
	notificationService service.NotificationService
	tokens              *middleware.TokenIssuer
	hub                 *realtime.Hub
}

type Deps struct {
	Users         service.UserService
	Messages      service.MessageService
	Conversations service.ConversationService
	Blocks        service.BlockService
	Notifications service.NotificationService
	Tokens        *middleware.TokenIssuer
	Hub           *realtime.Hub
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		userService:         d.Users,
		messageService:      d.Messages,
		conversationService: d.Conversations,
		blockService:        d.Blocks,
		notificationService: d.Notifications,
		tokens:              d.Tokens,
		hub:                 d.Hub,
	}
}

// writeError 把业务错误映射为 HTTP 状态码
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrInvalidContent), errors.Is(err, service.ErrInvalidArgument):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		response.Unauthorized(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

// Health 健康检查
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
