package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/d60-Lab/community-messaging/internal/media"
	"github.com/d60-Lab/community-messaging/internal/model"
	"github.com/d60-Lab/community-messaging/internal/repository"
)

type RegisterInput struct {
	Name         string
	Email        string
	Password     string
	ProfilePhoto string
}

type UserService interface {
	Register(ctx context.Context, in RegisterInput) (*UserDTO, error)
	// Authenticate 校验邮箱和密码，失败统一返回 ErrUnauthorized
	Authenticate(ctx context.Context, email, password string) (*UserDTO, error)
}

type userService struct {
	users repository.UserRepository
	media media.Normalizer
}

func NewUserService(users repository.UserRepository, normalizer media.Normalizer) UserService {
	return &userService{users: users, media: normalizer}
}

func (s *userService) Register(ctx context.Context, in RegisterInput) (*UserDTO, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: email already registered", ErrInvalidArgument)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &model.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		Password:     string(hash),
		ProfilePhoto: in.ProfilePhoto,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	dto := toUserDTO(u, s.media)
	return &dto, nil
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (*UserDTO, error) {
	u, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, ErrUnauthorized
	}
	dto := toUserDTO(u, s.media)
	return &dto, nil
}
