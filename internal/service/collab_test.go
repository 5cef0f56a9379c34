package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mainak1023/Codelith/internal/domain"
	redisstate "github.com/mainak1023/Codelith/internal/infra/state/redis"
	"github.com/mainak1023/Codelith/internal/repository"
	"github.com/mainak1023/Codelith/internal/service"
)

type collabFixture struct {
	collab      *service.CollabService
	channelAuth *service.ChannelAuthService
	sessionRepo repository.SessionRepository
	tokenRepo   repository.TokenRepository
	recorder    *eventRecorder
}

func newCollabFixture(t *testing.T) *collabFixture {
	t.Helper()
	_, client := newRedisClientForTest(t)

	sessionRepo := redisstate.NewRedisSessionRepository(client, "cc:")
	tokenRepo := redisstate.NewRedisTokenRepository(client, "cc:")
	userRepo := newMemoryUserRepo(
		&domain.User{ID: "u1", Username: "alice", AvatarURL: "https://img/a.png"},
		&domain.User{ID: "u2", Username: "bob"},
	)
	channelAuth, err := service.NewChannelAuthService(tokenRepo, userRepo, "app-key", "app-secret")
	require.NoError(t, err)

	recorder := &eventRecorder{}
	return &collabFixture{
		collab:      service.NewCollabService(sessionRepo, channelAuth, recorder),
		channelAuth: channelAuth,
		sessionRepo: sessionRepo,
		tokenRepo:   tokenRepo,
		recorder:    recorder,
	}
}

func alice() domain.Participant {
	return domain.Participant{UserID: "u1", UserName: "alice", UserAvatar: "https://img/a.png"}
}

func bob() domain.Participant {
	return domain.Participant{UserID: "u2", UserName: "bob"}
}

func TestCollabService_CreateSession(t *testing.T) {
	f := newCollabFixture(t)
	ctx := context.Background()

	ticket, err := f.collab.CreateSession(ctx, "p1", alice())
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.SessionID)
	assert.NotEmpty(t, ticket.AuthToken)
	assert.Equal(t, service.ChannelName(ticket.SessionID), ticket.ChannelName)

	// 会话已持久化，创建者是首个成员
	session, err := f.collab.GetSession(ctx, ticket.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "p1", session.ProjectID)
	require.Len(t, session.Participants, 1)
	assert.Equal(t, "u1", session.Participants[0].UserID)
	assert.Greater(t, session.Participants[0].JoinedAt, int64(0))

	// 令牌可立即换取通道授权
	stored, err := f.tokenRepo.Get(ctx, ticket.SessionID, "u1")
	require.NoError(t, err)
	assert.Equal(t, ticket.AuthToken, stored)
}

func TestCollabService_CreateSession_ProjectAlreadyActive(t *testing.T) {
	f := newCollabFixture(t)
	ctx := context.Background()

	first, err := f.collab.CreateSession(ctx, "p1", alice())
	require.NoError(t, err)

	// 同一项目的第二次创建必须失败，并带回现有会话 id
	_, err = f.collab.CreateSession(ctx, "p1", bob())
	var exists *service.SessionExistsError
	require.True(t, errors.As(err, &exists), "应返回 SessionExistsError")
	assert.Equal(t, first.SessionID, exists.SessionID)
}

func TestCollabService_CreateSession_Validation(t *testing.T) {
	f := newCollabFixture(t)

	_, err := f.collab.CreateSession(context.Background(), "", alice())
	assert.ErrorIs(t, err, service.ErrValidation)

	_, err = f.collab.CreateSession(context.Background(), "p1", domain.Participant{UserID: "u1"})
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestCollabService_JoinSession(t *testing.T) {
	f := newCollabFixture(t)
	ctx := context.Background()

	created, err := f.collab.CreateSession(ctx, "p1", alice())
	require.NoError(t, err)

	ticket, err := f.collab.JoinSession(ctx, created.SessionID, bob())
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.AuthToken)
	assert.NotEqual(t, created.AuthToken, ticket.AuthToken)
	require.Len(t, ticket.Participants, 2, "返回的成员列表应包含双方")

	// 广播了一次 user-joined，负载为新成员
	events := f.recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventUserJoined, events[0].Event)
	assert.Equal(t, service.ChannelName(created.SessionID), events[0].Channel)
	joined, ok := events[0].Data.(domain.Participant)
	require.True(t, ok)
	assert.Equal(t, "u2", joined.UserID)
}

func TestCollabService_JoinSession_Idempotent(t *testing.T) {
	f := newCollabFixture(t)
	ctx := context.Background()

	created, err := f.collab.CreateSession(ctx, "p1", alice())
	require.NoError(t, err)

	first, err := f.collab.JoinSession(ctx, created.SessionID, bob())
	require.NoError(t, err)

	// 重复加入：成员列表不变，不再广播，但令牌轮换
	second, err := f.collab.JoinSession(ctx, created.SessionID, bob())
	require.NoError(t, err)
	assert.Len(t, second.Participants, 2, "重复加入不应产生重复成员")
	assert.NotEqual(t, first.AuthToken, second.AuthToken, "重复加入应轮换令牌")
	assert.Equal(t, 1, f.recorder.CountByEvent(domain.EventUserJoined), "重复加入不应重复广播")

	// 旧令牌随之作废
	stored, err := f.tokenRepo.Get(ctx, created.SessionID, "u2")
	require.NoError(t, err)
	assert.Equal(t, second.AuthToken, stored)
}

func TestCollabService_JoinSession_NotFound(t *testing.T) {
	f := newCollabFixture(t)

	_, err := f.collab.JoinSession(context.Background(), "missing", bob())
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
}

func TestCollabService_LeaveSession_BroadcastsUserLeft(t *testing.T) {
	f := newCollabFixture(t)
	ctx := context.Background()

	created, err := f.collab.CreateSession(ctx, "p1", alice())
	require.NoError(t, err)
	_, err = f.collab.JoinSession(ctx, created.SessionID, bob())
	require.NoError(t, err)

	require.NoError(t, f.collab.LeaveSession(ctx, created.SessionID, "u2"))

	session, err := f.collab.GetSession(ctx, created.SessionID)
	require.NoError(t, err)
	require.Len(t, session.Participants, 1)
	assert.Equal(t, "u1", session.Participants[0].UserID)

	assert.Equal(t, 1, f.recorder.CountByEvent(domain.EventUserLeft))

	// 离开者的令牌被删除
	_, err = f.tokenRepo.Get(ctx, created.SessionID, "u2")
	assert.ErrorIs(t, err, repository.ErrTokenNotFound)
}

func TestCollabService_LeaveSession_LastParticipantDestroysSession(t *testing.T) {
	f := newCollabFixture(t)
	ctx := context.Background()

	created, err := f.collab.CreateSession(ctx, "p1", alice())
	require.NoError(t, err)

	require.NoError(t, f.collab.LeaveSession(ctx, created.SessionID, "u1"))

	_, err = f.collab.GetSession(ctx, created.SessionID)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)

	// 项目索引已释放：同一项目可以立即开新会话
	again, err := f.collab.CreateSession(ctx, "p1", bob())
	require.NoError(t, err)
	assert.NotEqual(t, created.SessionID, again.SessionID)

	// 残留令牌被清空
	_, err = f.tokenRepo.Get(ctx, created.SessionID, "u1")
	assert.ErrorIs(t, err, repository.ErrTokenNotFound)
}

func TestCollabService_LeaveSession_AbsentParticipantIsNoop(t *testing.T) {
	f := newCollabFixture(t)
	ctx := context.Background()

	created, err := f.collab.CreateSession(ctx, "p1", alice())
	require.NoError(t, err)

	// 不在会话中的用户离开：成功返回，会话不变，无广播
	require.NoError(t, f.collab.LeaveSession(ctx, created.SessionID, "u2"))

	session, err := f.collab.GetSession(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Len(t, session.Participants, 1)
	assert.Equal(t, 0, f.recorder.CountByEvent(domain.EventUserLeft))
}

// conflictingSessionRepo 让每次条件写入都撞上版本冲突。
type conflictingSessionRepo struct {
	repository.SessionRepository
	saves int
}

func (r *conflictingSessionRepo) Save(ctx context.Context, session *domain.Session, expectedVersion uint64) error {
	r.saves++
	return repository.ErrVersionConflict
}

func TestCollabService_JoinSession_ConflictAfterRetriesExhausted(t *testing.T) {
	f := newCollabFixture(t)
	ctx := context.Background()

	created, err := f.collab.CreateSession(ctx, "p1", alice())
	require.NoError(t, err)

	conflicting := &conflictingSessionRepo{SessionRepository: f.sessionRepo}
	collab := service.NewCollabService(conflicting, f.channelAuth, f.recorder)

	_, err = collab.JoinSession(ctx, created.SessionID, bob())
	assert.ErrorIs(t, err, service.ErrConflict)
	assert.Equal(t, 3, conflicting.saves, "应在第三次冲突后放弃")
	assert.Equal(t, 0, f.recorder.CountByEvent(domain.EventUserJoined), "失败的加入不应广播")
}

func TestCollabService_LeaveSession_ConflictAfterRetriesExhausted(t *testing.T) {
	f := newCollabFixture(t)
	ctx := context.Background()

	created, err := f.collab.CreateSession(ctx, "p1", alice())
	require.NoError(t, err)
	_, err = f.collab.JoinSession(ctx, created.SessionID, bob())
	require.NoError(t, err)

	conflicting := &conflictingSessionRepo{SessionRepository: f.sessionRepo}
	collab := service.NewCollabService(conflicting, f.channelAuth, f.recorder)

	err = collab.LeaveSession(ctx, created.SessionID, "u2")
	assert.ErrorIs(t, err, service.ErrConflict)
	assert.Equal(t, 3, conflicting.saves)
}

func TestCollabService_LeaveSession_NotFound(t *testing.T) {
	f := newCollabFixture(t)

	err := f.collab.LeaveSession(context.Background(), "missing", "u1")
	assert.ErrorIs(t, err, service.ErrSessionNotFound)
}

func TestCollabService_FullLifecycle(t *testing.T) {
	f := newCollabFixture(t)
	ctx := context.Background()

	created, err := f.collab.CreateSession(ctx, "p1", alice())
	require.NoError(t, err)
	_, err = f.collab.JoinSession(ctx, created.SessionID, bob())
	require.NoError(t, err)

	require.NoError(t, f.collab.LeaveSession(ctx, created.SessionID, "u1"))
	require.NoError(t, f.collab.LeaveSession(ctx, created.SessionID, "u2"))

	_, err = f.collab.GetSession(ctx, created.SessionID)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)

	assert.Equal(t, 1, f.recorder.CountByEvent(domain.EventUserJoined))
	// 最后一人离开销毁会话，不再广播 user-left
	assert.Equal(t, 1, f.recorder.CountByEvent(domain.EventUserLeft))
}

func TestCollabService_ReapStaleSessions(t *testing.T) {
	f := newCollabFixture(t)
	ctx := context.Background()

	created, err := f.collab.CreateSession(ctx, "p1", alice())
	require.NoError(t, err)

	// 孤儿令牌：所属会话已不存在
	require.NoError(t, f.tokenRepo.Put(ctx, "dead-session", "u9", "tok", time.Hour))

	// 负的空闲阈值把截止时间推到未来，现存会话都视为过期
	reaped, err := f.collab.ReapStaleSessions(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	_, err = f.collab.GetSession(ctx, created.SessionID)
	assert.ErrorIs(t, err, service.ErrSessionNotFound)

	_, err = f.tokenRepo.Get(ctx, "dead-session", "u9")
	assert.ErrorIs(t, err, repository.ErrTokenNotFound)

	// 项目索引已释放
	again, err := f.collab.CreateSession(ctx, "p1", bob())
	require.NoError(t, err)
	assert.NotEmpty(t, again.SessionID)
}

func TestCollabService_ReapStaleSessions_KeepsFreshSessions(t *testing.T) {
	f := newCollabFixture(t)
	ctx := context.Background()

	created, err := f.collab.CreateSession(ctx, "p1", alice())
	require.NoError(t, err)

	reaped, err := f.collab.ReapStaleSessions(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, reaped)

	_, err = f.collab.GetSession(ctx, created.SessionID)
	assert.NoError(t, err, "活跃会话不应被回收")

	// 活跃会话的令牌不应被当作孤儿清理
	_, err = f.tokenRepo.Get(ctx, created.SessionID, "u1")
	assert.NoError(t, err)
}
