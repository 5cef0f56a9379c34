package repository

import "errors"

// 通用的存储库错误。
var (
	// ErrNotFound 表示请求的记录未找到。
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示写入违反了唯一约束。
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrVersionConflict 表示条件写入时版本不一致（乐观锁冲突）。
	ErrVersionConflict = errors.New("repository: version conflict")
)

// 特定资源的错误。
var (
	ErrSessionNotFound = ErrNotFound
	ErrUserNotFound    = ErrNotFound
	ErrProjectNotFound = ErrNotFound
	ErrFileNotFound    = ErrNotFound
	ErrTokenNotFound   = ErrNotFound
)
