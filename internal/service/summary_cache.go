package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/d60-Lab/community-messaging/pkg/logger"
)

// SummaryCache 会话摘要的读缓存。
// Store 只在代数与读库前取到的一致时写入，避免失效之后回写旧结果。
type SummaryCache interface {
	Generation(ctx context.Context, userID string) (int64, error)
	Load(ctx context.Context, userID string, dst interface{}) (bool, error)
	Store(ctx context.Context, userID string, gen int64, value interface{}) (bool, error)
	Invalidate(ctx context.Context, userIDs ...string) error
}

// invalidateSummaries 写路径执行后清理相关用户的摘要缓存，失败只记录日志
func invalidateSummaries(ctx context.Context, cache SummaryCache, userIDs ...string) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, userIDs...); err != nil {
		logger.Warn("invalidate conversation summaries failed", zap.Strings("users", userIDs), zap.Error(err))
	}
}
