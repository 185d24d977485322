package database

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// Transactor 开启事务并通过 context 向仓储层传递 tx
type Transactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) *Transactor { return &Transactor{db: db} }

// RunInTx 在一个事务内执行 fn；fn 返回错误时整体回滚。
// ctx 中已存在事务时直接复用。
func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// Conn 返回 ctx 中的事务；没有事务时返回带 ctx 的 db
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}
