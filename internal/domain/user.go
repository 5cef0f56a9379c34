package domain

import "time"

// User 表示应用中的注册用户。
// ID 使用 uuid 字符串，协作 API 中的 userId 即此值。
type User struct {
	ID        string    `gorm:"type:varchar(64);primaryKey"`
	Username  string    `gorm:"type:varchar(191);uniqueIndex:idx_username;not null"`
	Password  string    `gorm:"type:text;not null"` // bcrypt 哈希
	Email     string    `gorm:"type:varchar(191);uniqueIndex:idx_email"`
	AvatarURL string    `gorm:"type:varchar(512)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
