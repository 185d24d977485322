package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/community-messaging/internal/api/middleware"
	"github.com/d60-Lab/community-messaging/internal/service"
	"github.com/d60-Lab/community-messaging/pkg/logger"
)

// ServeWS 未读数推送通道，token 通过查询参数传入
// @Summary 建立实时推送连接
// @Tags 实时
// @Param token query string true "JWT"
// @Success 101 {string} string "Switching Protocols"
// @Router /api/v1/ws [get]
func (h *Handler) ServeWS(c *gin.Context) {
	dest := service.UnreadCountDestination(middleware.CurrentEmail(c))
	if err := h.hub.ServeWS(c.Writer, c.Request, dest); err != nil {
		logger.Debug("websocket upgrade failed", zap.Error(err))
	}
}
