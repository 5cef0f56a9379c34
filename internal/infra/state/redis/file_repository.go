package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/mainak1023/Codelith/internal/domain"
	"github.com/mainak1023/Codelith/internal/repository"
)

// RedisFileRepository 是 FileRepository 接口的 Redis 实现。
type RedisFileRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisFileRepository 创建 RedisFileRepository 实例。
func NewRedisFileRepository(client *redis.Client, keyPrefix string) *RedisFileRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisFileRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "cc:"
	}
	return &RedisFileRepository{client: client, keyPrefix: keyPrefix}
}

func (r *RedisFileRepository) fileKey(fileID string) string {
	return fmt.Sprintf("%sfile:%s", r.keyPrefix, fileID)
}

func (r *RedisFileRepository) projectFilesKey(projectID string) string {
	return fmt.Sprintf("%sproject:%s:files", r.keyPrefix, projectID)
}

func (r *RedisFileRepository) Get(ctx context.Context, fileID string) (*domain.File, error) {
	raw, err := r.client.Get(ctx, r.fileKey(fileID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrFileNotFound
		}
		return nil, fmt.Errorf("redis: get file %s: %w", fileID, err)
	}
	var file domain.File
	if err := json.Unmarshal([]byte(raw), &file); err != nil {
		return nil, fmt.Errorf("redis: unmarshal file %s: %w", fileID, err)
	}
	return &file, nil
}

func (r *RedisFileRepository) Save(ctx context.Context, file *domain.File) error {
	payload, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("redis: marshal file %s: %w", file.ID, err)
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.fileKey(file.ID), payload, 0)
	pipe.SAdd(ctx, r.projectFilesKey(file.ProjectID), file.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save file %s: %w", file.ID, err)
	}
	return nil
}

func (r *RedisFileRepository) Delete(ctx context.Context, file *domain.File) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.fileKey(file.ID))
	pipe.SRem(ctx, r.projectFilesKey(file.ProjectID), file.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: delete file %s: %w", file.ID, err)
	}
	return nil
}

func (r *RedisFileRepository) ListByProject(ctx context.Context, projectID string) ([]*domain.File, error) {
	ids, err := r.client.SMembers(ctx, r.projectFilesKey(projectID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list files for project %s: %w", projectID, err)
	}
	files := make([]*domain.File, 0, len(ids))
	for _, id := range ids {
		file, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrFileNotFound) {
				continue
			}
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

func (r *RedisFileRepository) DeleteAllForProject(ctx context.Context, projectID string) error {
	ids, err := r.client.SMembers(ctx, r.projectFilesKey(projectID)).Result()
	if err != nil {
		return fmt.Errorf("redis: list files for project %s: %w", projectID, err)
	}
	pipe := r.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, r.fileKey(id))
	}
	pipe.Del(ctx, r.projectFilesKey(projectID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: delete files for project %s: %w", projectID, err)
	}
	return nil
}
