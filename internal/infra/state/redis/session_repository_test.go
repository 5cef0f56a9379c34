package redisstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mainak1023/Codelith/internal/domain"
	"github.com/mainak1023/Codelith/internal/repository"
)

func newTestSession(id, projectID string) *domain.Session {
	now := time.Now().UnixMilli()
	return &domain.Session{
		ID:        id,
		ProjectID: projectID,
		CreatedAt: now,
		UpdatedAt: now,
		Participants: []domain.Participant{
			{UserID: "u1", UserName: "alice", JoinedAt: now},
		},
	}
}

func TestRedisSessionRepository_CreateAndGet(t *testing.T) {
	_, client := newRedisClientForTest(t)
	repo := NewRedisSessionRepository(client, "cc:")
	ctx := context.Background()

	session := newTestSession("s1", "p1")
	require.NoError(t, repo.Create(ctx, session))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, "p1", got.ProjectID)
	assert.Equal(t, uint64(1), got.Version, "新会话的版本号应为 1")
	require.Len(t, got.Participants, 1)
	assert.Equal(t, "alice", got.Participants[0].UserName)
}

func TestRedisSessionRepository_Get_NotFound(t *testing.T) {
	_, client := newRedisClientForTest(t)
	repo := NewRedisSessionRepository(client, "cc:")

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestRedisSessionRepository_Save_IncrementsVersion(t *testing.T) {
	_, client := newRedisClientForTest(t)
	repo := NewRedisSessionRepository(client, "cc:")
	ctx := context.Background()

	session := newTestSession("s1", "p1")
	require.NoError(t, repo.Create(ctx, session))

	session.AddParticipant(domain.Participant{UserID: "u2", UserName: "bob"})
	require.NoError(t, repo.Save(ctx, session, 1))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version, "写入后版本号应递增")
	assert.Len(t, got.Participants, 2)
}

func TestRedisSessionRepository_Save_VersionConflict(t *testing.T) {
	_, client := newRedisClientForTest(t)
	repo := NewRedisSessionRepository(client, "cc:")
	ctx := context.Background()

	session := newTestSession("s1", "p1")
	require.NoError(t, repo.Create(ctx, session))

	// 模拟并发方已提交了一个版本
	other, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, other, 1))

	// 基于过期版本号的写入必须失败
	stale := newTestSession("s1", "p1")
	err = repo.Save(ctx, stale, 1)
	assert.ErrorIs(t, err, repository.ErrVersionConflict)

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version, "冲突写入不应改变存储的版本")
}

func TestRedisSessionRepository_Save_Missing(t *testing.T) {
	_, client := newRedisClientForTest(t)
	repo := NewRedisSessionRepository(client, "cc:")

	err := repo.Save(context.Background(), newTestSession("ghost", "p1"), 1)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestRedisSessionRepository_ClaimProjectIndex(t *testing.T) {
	_, client := newRedisClientForTest(t)
	repo := NewRedisSessionRepository(client, "cc:")
	ctx := context.Background()

	existing, err := repo.ClaimProjectIndex(ctx, "p1", "s1")
	require.NoError(t, err)
	assert.Empty(t, existing)

	// 第二次认领输掉竞争，应带回现有会话 id
	existing, err = repo.ClaimProjectIndex(ctx, "p1", "s2")
	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)
	assert.Equal(t, "s1", existing)

	// 释放后可以重新认领
	require.NoError(t, repo.ReleaseProjectIndex(ctx, "p1"))
	existing, err = repo.ClaimProjectIndex(ctx, "p1", "s2")
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestRedisSessionRepository_Delete(t *testing.T) {
	_, client := newRedisClientForTest(t)
	repo := NewRedisSessionRepository(client, "cc:")
	ctx := context.Background()

	session := newTestSession("s1", "p1")
	require.NoError(t, repo.Create(ctx, session))
	_, err := repo.ClaimProjectIndex(ctx, "p1", "s1")
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "s1", "p1"))

	_, err = repo.Get(ctx, "s1")
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)

	// 索引也被清除
	existing, err := repo.ClaimProjectIndex(ctx, "p1", "s2")
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestRedisSessionRepository_ListSessionIDs(t *testing.T) {
	_, client := newRedisClientForTest(t)
	repo := NewRedisSessionRepository(client, "cc:")
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newTestSession("s1", "p1")))
	require.NoError(t, repo.Create(ctx, newTestSession("s2", "p2")))

	ids, err := repo.ListSessionIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, ids)
}

func TestRedisTokenRepository_PutGetDelete(t *testing.T) {
	server, client := newRedisClientForTest(t)
	repo := NewRedisTokenRepository(client, "cc:")
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "s1", "u1", "tok-1", time.Hour))

	token, err := repo.Get(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	// 覆盖写入
	require.NoError(t, repo.Put(ctx, "s1", "u1", "tok-2", time.Hour))
	token, err = repo.Get(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)

	// TTL 过期后不可见
	server.FastForward(2 * time.Hour)
	_, err = repo.Get(ctx, "s1", "u1")
	assert.ErrorIs(t, err, repository.ErrTokenNotFound)

	require.NoError(t, repo.Put(ctx, "s1", "u1", "tok-3", time.Hour))
	require.NoError(t, repo.Delete(ctx, "s1", "u1"))
	_, err = repo.Get(ctx, "s1", "u1")
	assert.ErrorIs(t, err, repository.ErrTokenNotFound)
}

func TestRedisTokenRepository_DeleteAllForSession(t *testing.T) {
	_, client := newRedisClientForTest(t)
	repo := NewRedisTokenRepository(client, "cc:")
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "s1", "u1", "a", time.Hour))
	require.NoError(t, repo.Put(ctx, "s1", "u2", "b", time.Hour))
	require.NoError(t, repo.Put(ctx, "s2", "u1", "c", time.Hour))

	require.NoError(t, repo.DeleteAllForSession(ctx, "s1"))

	_, err := repo.Get(ctx, "s1", "u1")
	assert.ErrorIs(t, err, repository.ErrTokenNotFound)
	_, err = repo.Get(ctx, "s1", "u2")
	assert.ErrorIs(t, err, repository.ErrTokenNotFound)

	// 其他会话的令牌不受影响
	token, err := repo.Get(ctx, "s2", "u1")
	require.NoError(t, err)
	assert.Equal(t, "c", token)
}

func TestRedisTokenRepository_ListRefs(t *testing.T) {
	_, client := newRedisClientForTest(t)
	repo := NewRedisTokenRepository(client, "cc:")
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "s1", "u1", "a", time.Hour))
	require.NoError(t, repo.Put(ctx, "s2", "u2", "b", time.Hour))

	refs, err := repo.ListRefs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []repository.TokenRef{
		{SessionID: "s1", UserID: "u1"},
		{SessionID: "s2", UserID: "u2"},
	}, refs)
}
