package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/community-messaging/internal/model"
	"github.com/d60-Lab/community-messaging/pkg/database"
)

// UserRepository 用户目录
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// FindByIDs 一次查询批量加载用户，不保证顺序
	FindByIDs(ctx context.Context, ids []string) ([]*model.User, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return database.Conn(ctx, r.db).Create(user).Error
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := database.Conn(ctx, r.db).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := database.Conn(ctx, r.db).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	if len(ids) == 0 {
		return []*model.User{}, nil
	}
	var res []*model.User
	err := database.Conn(ctx, r.db).Where("id IN ?", ids).Find(&res).Error
	return res, err
}
