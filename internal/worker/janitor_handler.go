package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/mainak1023/Codelith/internal/service"
)

// SessionJanitorHandler 处理周期性的会话回收任务。
// 覆盖客户端异常退出导致的两类泄漏：长期无人更新的会话记录，
// 和失去所属会话的通道令牌。
type SessionJanitorHandler struct {
	collabService *service.CollabService
	maxIdle       time.Duration
}

// NewSessionJanitorHandler 创建 Handler 实例
func NewSessionJanitorHandler(collabService *service.CollabService, maxIdle time.Duration) *SessionJanitorHandler {
	if collabService == nil {
		panic("CollabService cannot be nil for SessionJanitorHandler")
	}
	if maxIdle <= 0 {
		maxIdle = 24 * time.Hour
	}
	return &SessionJanitorHandler{collabService: collabService, maxIdle: maxIdle}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *SessionJanitorHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
	})
	logCtx.Info("Processing session janitor task...")

	// 扫描可能较慢，给任务本身设上限，避免卡死 worker
	reapCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	reaped, err := h.collabService.ReapStaleSessions(reapCtx, h.maxIdle)
	if err != nil {
		logCtx.WithError(err).Error("Session janitor run failed")
		return err
	}

	logCtx.WithField("reaped", reaped).Info("Session janitor task completed successfully")
	return nil
}
