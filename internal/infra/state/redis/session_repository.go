package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/mainak1023/Codelith/internal/domain"
	"github.com/mainak1023/Codelith/internal/repository"
)

// RedisSessionRepository 是 SessionRepository 接口的 Redis 实现。
// 会话记录整体以 JSON 存储，条件写入通过 WATCH/MULTI 实现。
type RedisSessionRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSessionRepository 创建 RedisSessionRepository 实例。
func NewRedisSessionRepository(client *redis.Client, keyPrefix string) *RedisSessionRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisSessionRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "cc:"
	}
	return &RedisSessionRepository{client: client, keyPrefix: keyPrefix}
}

// --- Key Generation Helpers ---

func (r *RedisSessionRepository) sessionKey(sessionID string) string {
	return fmt.Sprintf("%ssession:%s", r.keyPrefix, sessionID)
}

func (r *RedisSessionRepository) projectIndexKey(projectID string) string {
	return fmt.Sprintf("%sproject-session-index:%s", r.keyPrefix, projectID)
}

// --- SessionRepository Interface Implementation ---

func (r *RedisSessionRepository) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	key := r.sessionKey(sessionID)
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, fmt.Errorf("redis: get session %s: %w", sessionID, err)
	}
	var session domain.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("redis: unmarshal session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (r *RedisSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	session.Version = 1
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("redis: marshal session %s: %w", session.ID, err)
	}
	if err := r.client.Set(ctx, r.sessionKey(session.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis: create session %s: %w", session.ID, err)
	}
	return nil
}

// Save 仅当存储中的版本与 expectedVersion 一致时写入。
// WATCH 保证读取和写入之间没有并发修改；事务被打断时返回 ErrVersionConflict。
func (r *RedisSessionRepository) Save(ctx context.Context, session *domain.Session, expectedVersion uint64) error {
	key := r.sessionKey(session.ID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return repository.ErrSessionNotFound
			}
			return err
		}
		var current domain.Session
		if err := json.Unmarshal([]byte(raw), &current); err != nil {
			return fmt.Errorf("unmarshal current session: %w", err)
		}
		if current.Version != expectedVersion {
			return repository.ErrVersionConflict
		}

		session.Version = expectedVersion + 1
		payload, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	err := r.client.Watch(ctx, txf, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return repository.ErrVersionConflict
		}
		if errors.Is(err, repository.ErrVersionConflict) || errors.Is(err, repository.ErrSessionNotFound) {
			return err
		}
		return fmt.Errorf("redis: save session %s: %w", session.ID, err)
	}
	return nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, sessionID, projectID string) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.sessionKey(sessionID))
	pipe.Del(ctx, r.projectIndexKey(projectID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: delete session %s: %w", sessionID, err)
	}
	return nil
}

// ClaimProjectIndex 用 SETNX 原子认领索引，输掉竞争时带回现有会话 id。
func (r *RedisSessionRepository) ClaimProjectIndex(ctx context.Context, projectID, sessionID string) (string, error) {
	key := r.projectIndexKey(projectID)
	ok, err := r.client.SetNX(ctx, key, sessionID, 0).Result()
	if err != nil {
		return "", fmt.Errorf("redis: claim project index %s: %w", projectID, err)
	}
	if ok {
		return "", nil
	}
	existing, err := r.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("redis: read project index %s: %w", projectID, err)
	}
	return existing, repository.ErrDuplicateEntry
}

func (r *RedisSessionRepository) ReleaseProjectIndex(ctx context.Context, projectID string) error {
	if err := r.client.Del(ctx, r.projectIndexKey(projectID)).Err(); err != nil {
		return fmt.Errorf("redis: release project index %s: %w", projectID, err)
	}
	return nil
}

func (r *RedisSessionRepository) ListSessionIDs(ctx context.Context) ([]string, error) {
	pattern := r.keyPrefix + "session:*"
	prefix := r.keyPrefix + "session:"
	var ids []string
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: scan sessions: %w", err)
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}
