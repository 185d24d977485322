// Package testutil 提供测试用的内存数据库与数据构造
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/community-messaging/internal/model"
	"github.com/d60-Lab/community-messaging/pkg/database"
)

// NewDB 打开一个迁移好的 SQLite 内存库，测试结束自动关闭
func NewDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		tb.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	// 内存库每个连接相互独立
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	tb.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// SeedUser 创建一个用户，email 形如 name@x
func SeedUser(tb testing.TB, db *gorm.DB, name string) *model.User {
	tb.Helper()
	u := &model.User{
		ID:       uuid.New().String(),
		Name:     name,
		Email:    fmt.Sprintf("%s@x", name),
		Password: "p",
	}
	if err := db.WithContext(context.Background()).Create(u).Error; err != nil {
		tb.Fatalf("seed user %s: %v", name, err)
	}
	return u
}
