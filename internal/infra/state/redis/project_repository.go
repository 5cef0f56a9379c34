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

// RedisProjectRepository 是 ProjectRepository 接口的 Redis 实现。
// 项目记录以 JSON 存储，owner 索引用 Set 维护。
type RedisProjectRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisProjectRepository 创建 RedisProjectRepository 实例。
func NewRedisProjectRepository(client *redis.Client, keyPrefix string) *RedisProjectRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisProjectRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "cc:"
	}
	return &RedisProjectRepository{client: client, keyPrefix: keyPrefix}
}

func (r *RedisProjectRepository) projectKey(projectID string) string {
	return fmt.Sprintf("%sproject:%s", r.keyPrefix, projectID)
}

func (r *RedisProjectRepository) userProjectsKey(userID string) string {
	return fmt.Sprintf("%suser:%s:projects", r.keyPrefix, userID)
}

func (r *RedisProjectRepository) projectFilesKey(projectID string) string {
	return fmt.Sprintf("%sproject:%s:files", r.keyPrefix, projectID)
}

func (r *RedisProjectRepository) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	raw, err := r.client.Get(ctx, r.projectKey(projectID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrProjectNotFound
		}
		return nil, fmt.Errorf("redis: get project %s: %w", projectID, err)
	}
	var project domain.Project
	if err := json.Unmarshal([]byte(raw), &project); err != nil {
		return nil, fmt.Errorf("redis: unmarshal project %s: %w", projectID, err)
	}
	return &project, nil
}

func (r *RedisProjectRepository) Save(ctx context.Context, project *domain.Project) error {
	payload, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("redis: marshal project %s: %w", project.ID, err)
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.projectKey(project.ID), payload, 0)
	pipe.SAdd(ctx, r.userProjectsKey(project.UserID), project.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save project %s: %w", project.ID, err)
	}
	return nil
}

func (r *RedisProjectRepository) Delete(ctx context.Context, project *domain.Project) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, r.projectKey(project.ID))
	pipe.Del(ctx, r.projectFilesKey(project.ID))
	pipe.SRem(ctx, r.userProjectsKey(project.UserID), project.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: delete project %s: %w", project.ID, err)
	}
	return nil
}

func (r *RedisProjectRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Project, error) {
	ids, err := r.client.SMembers(ctx, r.userProjectsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list projects for user %s: %w", userID, err)
	}
	projects := make([]*domain.Project, 0, len(ids))
	for _, id := range ids {
		project, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrProjectNotFound) {
				// 索引中残留的悬空 id，跳过
				continue
			}
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, nil
}
