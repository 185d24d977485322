package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/community-messaging/internal/service"
	"github.com/d60-Lab/community-messaging/pkg/response"
)

type registerRequest struct {
	Name         string `json:"name" binding:"required,notblank,max=120"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=6,max=72"`
	ProfilePhoto string `json:"profile_photo" binding:"omitempty,max=512"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	Token string          `json:"token"`
	User  service.UserDTO `json:"user"`
}

// Register 注册
// @Summary 注册新用户
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body registerRequest true "注册信息"
// @Success 201 {object} response.Response{data=tokenResponse}
// @Failure 400 {object} response.Response
// @Router /api/v1/auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, err := h.userService.Register(c.Request.Context(), service.RegisterInput{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		ProfilePhoto: req.ProfilePhoto,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	token, err := h.tokens.Issue(user.Email)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, tokenResponse{Token: token, User: *user})
}

// Login 登录
// @Summary 登录并获取 token
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body loginRequest true "登录信息"
// @Success 200 {object} response.Response{data=tokenResponse}
// @Failure 401 {object} response.Response
// @Router /api/v1/auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, err := h.userService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	token, err := h.tokens.Issue(user.Email)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, tokenResponse{Token: token, User: *user})
}
