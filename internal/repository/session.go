package repository

import (
	"context"
	"time"

	"github.com/mainak1023/Codelith/internal/domain"
)

// SessionRepository 定义协作会话记录及项目索引的存储操作，由 Redis 实现。
type SessionRepository interface {
	// Get 按 id 读取会话。不存在时返回 ErrSessionNotFound。
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// Create 持久化一个新会话（version 置 1）。
	Create(ctx context.Context, session *domain.Session) error

	// Save 条件写入：仅当存储中的版本等于 expectedVersion 时才写入，
	// 并将 session.Version 置为 expectedVersion+1。
	// 版本不一致返回 ErrVersionConflict，记录消失返回 ErrSessionNotFound。
	Save(ctx context.Context, session *domain.Session, expectedVersion uint64) error

	// Delete 删除会话记录及其项目索引项。
	Delete(ctx context.Context, sessionID, projectID string) error

	// ClaimProjectIndex 以 SETNX 语义认领 project→session 索引。
	// 认领成功返回 ("", nil)；已被占用时返回现有会话 id 和 ErrDuplicateEntry。
	ClaimProjectIndex(ctx context.Context, projectID, sessionID string) (string, error)

	// ReleaseProjectIndex 释放索引项（仅在创建回滚时使用）。
	ReleaseProjectIndex(ctx context.Context, projectID string) error

	// ListSessionIDs 枚举当前存在的全部会话 id（janitor 用）。
	ListSessionIDs(ctx context.Context) ([]string, error)
}

// TokenRef 标识一条通道令牌记录。
type TokenRef struct {
	SessionID string
	UserID    string
}

// TokenRepository 定义通道订阅令牌的存储操作，带 TTL，由 Redis 实现。
type TokenRepository interface {
	// Put 写入（或覆盖）令牌并设置过期时间。
	Put(ctx context.Context, sessionID, userID, token string, ttl time.Duration) error

	// Get 读取令牌。不存在或已过期返回 ErrTokenNotFound。
	Get(ctx context.Context, sessionID, userID string) (string, error)

	// Delete 删除单个令牌。令牌不存在不视为错误。
	Delete(ctx context.Context, sessionID, userID string) error

	// DeleteAllForSession 删除某会话名下的全部令牌。
	DeleteAllForSession(ctx context.Context, sessionID string) error

	// ListRefs 枚举现存令牌的 (sessionID, userID)（janitor 用）。
	ListRefs(ctx context.Context) ([]TokenRef, error)
}
