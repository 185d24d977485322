package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/community-messaging/internal/api/middleware"
	"github.com/d60-Lab/community-messaging/pkg/response"
)

// ListNotifications 最近的通知
// @Summary 通知列表
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Param limit query int false "数量" default(50)
// @Success 200 {object} response.Response{data=[]service.NotificationDTO}
// @Router /api/v1/notifications [get]
func (h *Handler) ListNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.notificationService.List(c.Request.Context(), middleware.CurrentEmail(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, list)
}
