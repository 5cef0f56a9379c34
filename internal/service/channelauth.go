package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mainak1023/Codelith/internal/domain"
	"github.com/mainak1023/Codelith/internal/repository"
)

// ChannelPrefix 是 presence 通道名的固定前缀，后接会话 id。
const ChannelPrefix = "presence-collab-"

// TokenTTL 是通道令牌的有效期。
const TokenTTL = 24 * time.Hour

// ChannelName 返回会话对应的 presence 通道名。
func ChannelName(sessionID string) string {
	return ChannelPrefix + sessionID
}

// SessionIDFromChannel 从通道名解出会话 id。
func SessionIDFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, ChannelPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(channel, ChannelPrefix)
	return id, id != ""
}

// ChannelAuthService 负责通道订阅令牌的签发与校验，以及订阅授权签名。
// 签名格式与 Pusher 的 channel-auth 协议一致。
type ChannelAuthService struct {
	tokenRepo repository.TokenRepository
	userRepo  repository.UserRepository
	appKey    string
	appSecret []byte
}

// NewChannelAuthService 创建 ChannelAuthService 实例。
func NewChannelAuthService(tokenRepo repository.TokenRepository, userRepo repository.UserRepository, appKey, appSecret string) (*ChannelAuthService, error) {
	if tokenRepo == nil || userRepo == nil {
		panic("repositories cannot be nil for ChannelAuthService")
	}
	if appKey == "" || appSecret == "" {
		return nil, fmt.Errorf("channel app key and secret cannot be empty")
	}
	return &ChannelAuthService{
		tokenRepo: tokenRepo,
		userRepo:  userRepo,
		appKey:    appKey,
		appSecret: []byte(appSecret),
	}, nil
}

// IssueToken 为 (sessionID, userID) 签发新令牌，覆盖旧值，24 小时过期。
func (s *ChannelAuthService) IssueToken(ctx context.Context, sessionID, userID string) (string, error) {
	token := uuid.NewString()
	if err := s.tokenRepo.Put(ctx, sessionID, userID, token, TokenTTL); err != nil {
		logrus.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID}).
			WithError(err).Error("Failed to store channel token")
		return "", ErrInternalServer
	}
	return token, nil
}

// RevokeToken 删除 (sessionID, userID) 的令牌。
func (s *ChannelAuthService) RevokeToken(ctx context.Context, sessionID, userID string) error {
	if err := s.tokenRepo.Delete(ctx, sessionID, userID); err != nil {
		return ErrInternalServer
	}
	return nil
}

// VerifyToken 校验令牌并生成通道订阅授权。
// 通道名必须能解出与 sessionID 一致的会话 id；令牌比较使用常数时间。
func (s *ChannelAuthService) VerifyToken(ctx context.Context, sessionID, userID, presented, socketID, channel string) (*domain.ChannelGrant, error) {
	logCtx := logrus.WithFields(logrus.Fields{"session_id": sessionID, "user_id": userID, "channel": channel})

	channelSession, ok := SessionIDFromChannel(channel)
	if !ok || channelSession != sessionID {
		logCtx.Warn("Channel name does not match session")
		return nil, ErrAuthRejected
	}

	stored, err := s.tokenRepo.Get(ctx, sessionID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			logCtx.Warn("No stored token for session/user")
			return nil, ErrAuthRejected
		}
		logCtx.WithError(err).Error("Failed to load stored token")
		return nil, ErrInternalServer
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		logCtx.Warn("Presented token does not match stored token")
		return nil, ErrAuthRejected
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logCtx.Warn("User profile not found for channel auth")
			return nil, ErrUserNotFound
		}
		logCtx.WithError(err).Error("Failed to load user profile")
		return nil, ErrInternalServer
	}

	member := domain.PresenceMember{
		UserID: user.ID,
		UserInfo: domain.MemberInfo{
			Name:   user.Username,
			Avatar: user.AvatarURL,
		},
	}
	channelData, err := json.Marshal(member)
	if err != nil {
		logCtx.WithError(err).Error("Failed to marshal channel data")
		return nil, ErrInternalServer
	}

	grant := &domain.ChannelGrant{
		Auth:        s.appKey + ":" + s.sign(socketID, channel, string(channelData)),
		ChannelData: string(channelData),
	}
	logCtx.Debug("Channel grant issued")
	return grant, nil
}

// VerifySignature 校验订阅帧携带的授权签名，hub 在订阅时调用。
func (s *ChannelAuthService) VerifySignature(socketID, channel, channelData, auth string) bool {
	expected := s.appKey + ":" + s.sign(socketID, channel, channelData)
	return hmac.Equal([]byte(expected), []byte(auth))
}

// sign 计算 HMAC-SHA256(secret, "socketID:channel[:channelData]") 的 hex 编码。
func (s *ChannelAuthService) sign(socketID, channel, channelData string) string {
	payload := socketID + ":" + channel
	if channelData != "" {
		payload += ":" + channelData
	}
	mac := hmac.New(sha256.New, s.appSecret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
