package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mainak1023/Codelith/internal/domain"
	redisstate "github.com/mainak1023/Codelith/internal/infra/state/redis"
	"github.com/mainak1023/Codelith/internal/service"
)

func TestChannelName_RoundTrip(t *testing.T) {
	channel := service.ChannelName("abc-123")
	assert.Equal(t, "presence-collab-abc-123", channel)

	id, ok := service.SessionIDFromChannel(channel)
	assert.True(t, ok)
	assert.Equal(t, "abc-123", id)

	_, ok = service.SessionIDFromChannel("private-collab-abc")
	assert.False(t, ok)
	_, ok = service.SessionIDFromChannel("presence-collab-")
	assert.False(t, ok)
}

type channelAuthFixture struct {
	server      *miniredis.Miniredis
	channelAuth *service.ChannelAuthService
}

func newChannelAuthFixture(t *testing.T) *channelAuthFixture {
	t.Helper()
	server, client := newRedisClientForTest(t)
	tokenRepo := redisstate.NewRedisTokenRepository(client, "cc:")
	userRepo := newMemoryUserRepo(
		&domain.User{ID: "u1", Username: "alice", AvatarURL: "https://img/a.png"},
	)
	channelAuth, err := service.NewChannelAuthService(tokenRepo, userRepo, "app-key", "app-secret")
	require.NoError(t, err)
	return &channelAuthFixture{server: server, channelAuth: channelAuth}
}

func TestChannelAuthService_VerifyToken_Success(t *testing.T) {
	f := newChannelAuthFixture(t)
	ctx := context.Background()

	token, err := f.channelAuth.IssueToken(ctx, "s1", "u1")
	require.NoError(t, err)

	channel := service.ChannelName("s1")
	grant, err := f.channelAuth.VerifyToken(ctx, "s1", "u1", token, "socket-1", channel)
	require.NoError(t, err)

	// channel_data 携带签名过的身份信息
	var member domain.PresenceMember
	require.NoError(t, json.Unmarshal([]byte(grant.ChannelData), &member))
	assert.Equal(t, "u1", member.UserID)
	assert.Equal(t, "alice", member.UserInfo.Name)
	assert.Equal(t, "https://img/a.png", member.UserInfo.Avatar)

	// auth 形如 "<appKey>:<hex签名>"，hub 用同一套密钥即可验证
	assert.Contains(t, grant.Auth, "app-key:")
	assert.True(t, f.channelAuth.VerifySignature("socket-1", channel, grant.ChannelData, grant.Auth))

	// 换一个 socket_id 签名即失效
	assert.False(t, f.channelAuth.VerifySignature("socket-2", channel, grant.ChannelData, grant.Auth))
}

func TestChannelAuthService_VerifyToken_WrongToken(t *testing.T) {
	f := newChannelAuthFixture(t)
	ctx := context.Background()

	_, err := f.channelAuth.IssueToken(ctx, "s1", "u1")
	require.NoError(t, err)

	_, err = f.channelAuth.VerifyToken(ctx, "s1", "u1", "forged", "socket-1", service.ChannelName("s1"))
	assert.ErrorIs(t, err, service.ErrAuthRejected)
}

func TestChannelAuthService_VerifyToken_AbsentToken(t *testing.T) {
	f := newChannelAuthFixture(t)

	_, err := f.channelAuth.VerifyToken(context.Background(), "s1", "u1", "anything", "socket-1", service.ChannelName("s1"))
	assert.ErrorIs(t, err, service.ErrAuthRejected)
}

func TestChannelAuthService_VerifyToken_ExpiredToken(t *testing.T) {
	f := newChannelAuthFixture(t)
	ctx := context.Background()

	token, err := f.channelAuth.IssueToken(ctx, "s1", "u1")
	require.NoError(t, err)

	// 令牌 24 小时过期
	f.server.FastForward(25 * time.Hour)

	_, err = f.channelAuth.VerifyToken(ctx, "s1", "u1", token, "socket-1", service.ChannelName("s1"))
	assert.ErrorIs(t, err, service.ErrAuthRejected)
}

func TestChannelAuthService_VerifyToken_ChannelMismatch(t *testing.T) {
	f := newChannelAuthFixture(t)
	ctx := context.Background()

	token, err := f.channelAuth.IssueToken(ctx, "s1", "u1")
	require.NoError(t, err)

	// 令牌属于 s1，却试图订阅 s2 的通道
	_, err = f.channelAuth.VerifyToken(ctx, "s1", "u1", token, "socket-1", service.ChannelName("s2"))
	assert.ErrorIs(t, err, service.ErrAuthRejected)

	// 非 presence 通道同样拒绝
	_, err = f.channelAuth.VerifyToken(ctx, "s1", "u1", token, "socket-1", "private-collab-s1")
	assert.ErrorIs(t, err, service.ErrAuthRejected)
}

func TestChannelAuthService_VerifyToken_UnknownUser(t *testing.T) {
	f := newChannelAuthFixture(t)
	ctx := context.Background()

	token, err := f.channelAuth.IssueToken(ctx, "s1", "ghost")
	require.NoError(t, err)

	_, err = f.channelAuth.VerifyToken(ctx, "s1", "ghost", token, "socket-1", service.ChannelName("s1"))
	assert.ErrorIs(t, err, service.ErrUserNotFound)
}

func TestChannelAuthService_IssueToken_Overwrites(t *testing.T) {
	f := newChannelAuthFixture(t)
	ctx := context.Background()

	first, err := f.channelAuth.IssueToken(ctx, "s1", "u1")
	require.NoError(t, err)
	second, err := f.channelAuth.IssueToken(ctx, "s1", "u1")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	// 旧令牌作废，只有最新的能通过校验
	_, err = f.channelAuth.VerifyToken(ctx, "s1", "u1", first, "socket-1", service.ChannelName("s1"))
	assert.ErrorIs(t, err, service.ErrAuthRejected)
	_, err = f.channelAuth.VerifyToken(ctx, "s1", "u1", second, "socket-1", service.ChannelName("s1"))
	assert.NoError(t, err)
}
