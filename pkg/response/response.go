package response

import (
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/community-messaging/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "success", Data: data})
}

func Error(c *gin.Context, status int, message string) {
	c.JSON(status, Response{Code: status, Message: message})
}

func BadRequest(c *gin.Context, message string) { Error(c, http.StatusBadRequest, message) }

func Unauthorized(c *gin.Context, message string) { Error(c, http.StatusUnauthorized, message) }

func Forbidden(c *gin.Context, message string) { Error(c, http.StatusForbidden, message) }

func NotFound(c *gin.Context, message string) { Error(c, http.StatusNotFound, message) }

func TooManyRequests(c *gin.Context, message string) { Error(c, http.StatusTooManyRequests, message) }

// InternalError 记录日志并上报 Sentry（如已启用），对外只返回通用信息
func InternalError(c *gin.Context, err error) {
	logger.Error("internal error",
		zap.Error(err),
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
	)
	if hub := sentrygin.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
	}
	Error(c, http.StatusInternalServerError, "internal server error")
}
