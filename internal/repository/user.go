package repository

import (
	"context"

	"github.com/mainak1023/Codelith/internal/domain"
)

// UserRepository 定义用户数据的存储和检索操作，由 GORM 实现。
type UserRepository interface {
	// FindByUsername 根据用户名查找用户。不存在时返回 ErrUserNotFound。
	FindByUsername(ctx context.Context, username string) (*domain.User, error)

	// FindByID 根据用户 ID 查找用户。不存在时返回 ErrUserNotFound。
	FindByID(ctx context.Context, id string) (*domain.User, error)

	// Save 保存用户信息（创建或更新）。
	Save(ctx context.Context, user *domain.User) error
}
