package redisstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mainak1023/Codelith/internal/repository"
)

// RedisTokenRepository 是 TokenRepository 接口的 Redis 实现。
// 令牌以普通字符串存储并依赖 Redis TTL 过期。
type RedisTokenRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisTokenRepository 创建 RedisTokenRepository 实例。
func NewRedisTokenRepository(client *redis.Client, keyPrefix string) *RedisTokenRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisTokenRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "cc:"
	}
	return &RedisTokenRepository{client: client, keyPrefix: keyPrefix}
}

func (r *RedisTokenRepository) tokenKey(sessionID, userID string) string {
	return fmt.Sprintf("%stoken:%s:%s", r.keyPrefix, sessionID, userID)
}

func (r *RedisTokenRepository) Put(ctx context.Context, sessionID, userID, token string, ttl time.Duration) error {
	key := r.tokenKey(sessionID, userID)
	if err := r.client.Set(ctx, key, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis: put token %s: %w", key, err)
	}
	return nil
}

func (r *RedisTokenRepository) Get(ctx context.Context, sessionID, userID string) (string, error) {
	key := r.tokenKey(sessionID, userID)
	token, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", repository.ErrTokenNotFound
		}
		return "", fmt.Errorf("redis: get token %s: %w", key, err)
	}
	return token, nil
}

func (r *RedisTokenRepository) Delete(ctx context.Context, sessionID, userID string) error {
	if err := r.client.Del(ctx, r.tokenKey(sessionID, userID)).Err(); err != nil {
		return fmt.Errorf("redis: delete token for session %s user %s: %w", sessionID, userID, err)
	}
	return nil
}

func (r *RedisTokenRepository) DeleteAllForSession(ctx context.Context, sessionID string) error {
	pattern := fmt.Sprintf("%stoken:%s:*", r.keyPrefix, sessionID)
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("redis: scan tokens for session %s: %w", sessionID, err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis: delete tokens for session %s: %w", sessionID, err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func (r *RedisTokenRepository) ListRefs(ctx context.Context) ([]repository.TokenRef, error) {
	pattern := r.keyPrefix + "token:*"
	prefix := r.keyPrefix + "token:"
	var refs []repository.TokenRef
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: scan tokens: %w", err)
		}
		for _, key := range keys {
			rest := strings.TrimPrefix(key, prefix)
			// 会话 id 是 uuid，不含冒号；其后的部分整体视为 userID
			parts := strings.SplitN(rest, ":", 2)
			if len(parts) != 2 {
				continue
			}
			refs = append(refs, repository.TokenRef{SessionID: parts[0], UserID: parts[1]})
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return refs, nil
}
