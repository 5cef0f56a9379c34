package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mainak1023/Codelith/internal/domain"
	"github.com/mainak1023/Codelith/internal/repository"
)

// casMaxRetries 是乐观并发冲突时重读重试的上限。
const casMaxRetries = 3

// Broadcaster 抽象事件广播的发布侧。
type Broadcaster interface {
	Trigger(ctx context.Context, channel, event string, data interface{}) error
}

// CollabService 管理协作会话的完整生命周期：创建、加入、查询、离开，
// 以及过期会话的回收。成员变更通过 Broadcaster 广播到 presence 通道。
type CollabService struct {
	sessionRepo repository.SessionRepository
	channelAuth *ChannelAuthService
	broadcaster Broadcaster
}

// NewCollabService 创建 CollabService 实例。
func NewCollabService(sessionRepo repository.SessionRepository, channelAuth *ChannelAuthService, broadcaster Broadcaster) *CollabService {
	if sessionRepo == nil || channelAuth == nil || broadcaster == nil {
		panic("dependencies cannot be nil for CollabService")
	}
	return &CollabService{
		sessionRepo: sessionRepo,
		channelAuth: channelAuth,
		broadcaster: broadcaster,
	}
}

// CreateSession 为项目创建新会话，创建者成为首个成员。
// 项目已有活跃会话时返回 *SessionExistsError（携带现有会话 id）。
func (s *CollabService) CreateSession(ctx context.Context, projectID string, creator domain.Participant) (*domain.SessionTicket, error) {
	if projectID == "" || creator.UserID == "" || creator.UserName == "" {
		return nil, ErrValidation
	}

	sessionID := uuid.NewString()
	now := time.Now().UnixMilli()
	creator.JoinedAt = now

	logCtx := logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"project_id": projectID,
		"user_id":    creator.UserID,
	})

	// 先认领项目索引，输掉竞争的一方直接拿到现有会话 id。
	existing, err := s.sessionRepo.ClaimProjectIndex(ctx, projectID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithField("existing_session", existing).Info("Project already has an active session")
			return nil, &SessionExistsError{SessionID: existing}
		}
		logCtx.WithError(err).Error("Failed to claim project session index")
		return nil, ErrInternalServer
	}

	session := &domain.Session{
		ID:           sessionID,
		ProjectID:    projectID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Participants: []domain.Participant{creator},
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		logCtx.WithError(err).Error("Failed to persist new session")
		if rbErr := s.sessionRepo.ReleaseProjectIndex(ctx, projectID); rbErr != nil {
			logCtx.WithError(rbErr).Error("Failed to roll back project index claim")
		}
		return nil, ErrInternalServer
	}

	token, err := s.channelAuth.IssueToken(ctx, sessionID, creator.UserID)
	if err != nil {
		return nil, err
	}

	logCtx.Info("Collaboration session created")
	return &domain.SessionTicket{
		SessionID:   sessionID,
		AuthToken:   token,
		ChannelName: ChannelName(sessionID),
	}, nil
}

// JoinSession 将用户加入会话。重复加入是幂等的：不修改成员列表、
// 不重复广播，但总是签发新令牌（旧令牌作废）。
func (s *CollabService) JoinSession(ctx context.Context, sessionID string, joiner domain.Participant) (*domain.SessionTicket, error) {
	if sessionID == "" || joiner.UserID == "" || joiner.UserName == "" {
		return nil, ErrValidation
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"user_id":    joiner.UserID,
	})

	var session *domain.Session
	added := false
	for attempt := 0; ; attempt++ {
		var err error
		session, err = s.sessionRepo.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return nil, ErrSessionNotFound
			}
			logCtx.WithError(err).Error("Failed to load session")
			return nil, ErrInternalServer
		}

		if session.FindParticipant(joiner.UserID) >= 0 {
			added = false
			break
		}

		joiner.JoinedAt = time.Now().UnixMilli()
		session.AddParticipant(joiner)
		session.UpdatedAt = time.Now().UnixMilli()

		err = s.sessionRepo.Save(ctx, session, session.Version)
		if err == nil {
			added = true
			break
		}
		if errors.Is(err, repository.ErrVersionConflict) {
			if attempt+1 >= casMaxRetries {
				logCtx.Warn("Join retries exhausted due to concurrent updates")
				return nil, ErrConflict
			}
			continue
		}
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		logCtx.WithError(err).Error("Failed to save session")
		return nil, ErrInternalServer
	}

	token, err := s.channelAuth.IssueToken(ctx, sessionID, joiner.UserID)
	if err != nil {
		return nil, err
	}

	if added {
		// 写入已成功，广播失败只记录；客户端可通过 presence 订阅纠偏。
		if err := s.broadcaster.Trigger(ctx, ChannelName(sessionID), domain.EventUserJoined, joiner); err != nil {
			logCtx.WithError(err).Warn("Failed to broadcast user-joined event")
		}
		logCtx.Info("User joined session")
	} else {
		logCtx.Debug("User re-joined session, token rotated")
	}

	return &domain.SessionTicket{
		SessionID:    sessionID,
		AuthToken:    token,
		ChannelName:  ChannelName(sessionID),
		Participants: session.Participants,
	}, nil
}

// GetSession 按 id 读取会话。
func (s *CollabService) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, ErrValidation
	}
	session, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		logrus.WithField("session_id", sessionID).WithError(err).Error("Failed to load session")
		return nil, ErrInternalServer
	}
	return session, nil
}

// LeaveSession 将用户移出会话。最后一名成员离开时销毁会话、
// 项目索引与全部残留令牌。用户本就不在会话中时视为成功，
// 但仍会删除其令牌。
func (s *CollabService) LeaveSession(ctx context.Context, sessionID, userID string) error {
	if sessionID == "" || userID == "" {
		return ErrValidation
	}

	logCtx := logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"user_id":    userID,
	})

	for attempt := 0; ; attempt++ {
		session, err := s.sessionRepo.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return ErrSessionNotFound
			}
			logCtx.WithError(err).Error("Failed to load session")
			return ErrInternalServer
		}

		if !session.RemoveParticipant(userID) {
			// 不在会话中：无事可做，但清掉可能残留的令牌。
			if err := s.channelAuth.RevokeToken(ctx, sessionID, userID); err != nil {
				logCtx.WithError(err).Warn("Failed to revoke channel token")
			}
			return nil
		}

		if len(session.Participants) == 0 {
			if err := s.sessionRepo.Delete(ctx, sessionID, session.ProjectID); err != nil {
				logCtx.WithError(err).Error("Failed to delete empty session")
				return ErrInternalServer
			}
			if err := s.channelAuth.tokenRepo.DeleteAllForSession(ctx, sessionID); err != nil {
				logCtx.WithError(err).Warn("Failed to purge session tokens")
			}
			logCtx.Info("Last participant left, session destroyed")
			return nil
		}

		session.UpdatedAt = time.Now().UnixMilli()
		err = s.sessionRepo.Save(ctx, session, session.Version)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrVersionConflict) {
			if attempt+1 >= casMaxRetries {
				logCtx.Warn("Leave retries exhausted due to concurrent updates")
				return ErrConflict
			}
			continue
		}
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		logCtx.WithError(err).Error("Failed to save session")
		return ErrInternalServer
	}

	if err := s.channelAuth.RevokeToken(ctx, sessionID, userID); err != nil {
		logCtx.WithError(err).Warn("Failed to revoke channel token")
	}
	if err := s.broadcaster.Trigger(ctx, ChannelName(sessionID), domain.EventUserLeft, map[string]string{"userId": userID}); err != nil {
		logCtx.WithError(err).Warn("Failed to broadcast user-left event")
	}
	logCtx.Info("User left session")
	return nil
}

// ReapStaleSessions 清理超过 maxIdle 未活动的会话及失去会话的孤儿令牌。
// 由 janitor 任务周期性调用，返回回收的会话数。
func (s *CollabService) ReapStaleSessions(ctx context.Context, maxIdle time.Duration) (int, error) {
	log := logrus.WithField("component", "session_janitor")

	ids, err := s.sessionRepo.ListSessionIDs(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list sessions")
		return 0, ErrInternalServer
	}

	cutoff := time.Now().Add(-maxIdle).UnixMilli()
	alive := make(map[string]bool, len(ids))
	reaped := 0
	for _, id := range ids {
		session, err := s.sessionRepo.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				continue
			}
			log.WithField("session_id", id).WithError(err).Warn("Failed to load session, skipping")
			continue
		}
		if session.UpdatedAt >= cutoff {
			alive[id] = true
			continue
		}
		if err := s.sessionRepo.Delete(ctx, id, session.ProjectID); err != nil {
			log.WithField("session_id", id).WithError(err).Warn("Failed to delete stale session")
			continue
		}
		if err := s.channelAuth.tokenRepo.DeleteAllForSession(ctx, id); err != nil {
			log.WithField("session_id", id).WithError(err).Warn("Failed to purge stale session tokens")
		}
		reaped++
		log.WithFields(logrus.Fields{
			"session_id": id,
			"updated_at": session.UpdatedAt,
		}).Info("Stale session reaped")
	}

	// 令牌的会话已消失则属于孤儿，直接删除。
	refs, err := s.channelAuth.tokenRepo.ListRefs(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to list channel tokens")
		return reaped, nil
	}
	for _, ref := range refs {
		if alive[ref.SessionID] {
			continue
		}
		if _, err := s.sessionRepo.Get(ctx, ref.SessionID); err == nil {
			alive[ref.SessionID] = true
			continue
		} else if !errors.Is(err, repository.ErrSessionNotFound) {
			continue
		}
		if err := s.channelAuth.tokenRepo.Delete(ctx, ref.SessionID, ref.UserID); err != nil {
			log.WithFields(logrus.Fields{
				"session_id": ref.SessionID,
				"user_id":    ref.UserID,
			}).WithError(err).Warn("Failed to delete orphaned token")
		}
	}

	return reaped, nil
}
