package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/community-messaging/internal/api/middleware"
	"github.com/d60-Lab/community-messaging/pkg/response"
)

// BlockUser 屏蔽用户
// @Summary 屏蔽用户
// @Tags 屏蔽
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "被屏蔽用户ID"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response "不能屏蔽自己"
// @Failure 404 {object} response.Response
// @Router /api/v1/blocks/{user_id} [post]
func (h *Handler) BlockUser(c *gin.Context) {
	if err := h.blockService.Block(c.Request.Context(), middleware.CurrentEmail(c), c.Param("user_id")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// UnblockUser 取消屏蔽
// @Summary 取消屏蔽
// @Tags 屏蔽
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/blocks/{user_id} [delete]
func (h *Handler) UnblockUser(c *gin.Context) {
	if err := h.blockService.Unblock(c.Request.Context(), middleware.CurrentEmail(c), c.Param("user_id")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// ListBlocked 我屏蔽的用户
// @Summary 屏蔽列表
// @Tags 屏蔽
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]service.UserDTO}
// @Router /api/v1/blocks [get]
func (h *Handler) ListBlocked(c *gin.Context) {
	list, err := h.blockService.ListBlocked(c.Request.Context(), middleware.CurrentEmail(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, list)
}

// BlockStatus 双向屏蔽状态
// @Summary 查询与某用户的屏蔽状态
// @Tags 屏蔽
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response{data=map[string]bool}
// @Failure 404 {object} response.Response
// @Router /api/v1/blocks/{user_id}/status [get]
func (h *Handler) BlockStatus(c *gin.Context) {
	ctx := c.Request.Context()
	email, other := middleware.CurrentEmail(c), c.Param("user_id")
	blocked, err := h.blockService.IsBlocked(ctx, email, other)
	if err != nil {
		writeError(c, err)
		return
	}
	blockedBy, err := h.blockService.WasBlockedBy(ctx, email, other)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"blocked": blocked, "blocked_by": blockedBy})
}
