package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidContent  = errors.New("content contains prohibited words")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("invalid credentials")
)

// notFound 把 gorm 的记录不存在转换为 ErrNotFound，其它错误原样返回
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
