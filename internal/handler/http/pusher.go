package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mainak1023/Codelith/internal/domain"
	"github.com/mainak1023/Codelith/internal/service"
)

// PresenceCounter 提供通道当前的本地成员数，由 hub 实现。
type PresenceCounter interface {
	LocalMemberCount(channel string) int
}

// PusherHandler 实现通道订阅授权、服务端事件触发和通道信息查询，
// 请求/响应格式与 Pusher 的 channel-auth 协议兼容。
type PusherHandler struct {
	channelAuth *service.ChannelAuthService
	broadcaster service.Broadcaster
	presence    PresenceCounter
}

// NewPusherHandler 创建 PusherHandler 实例
func NewPusherHandler(channelAuth *service.ChannelAuthService, broadcaster service.Broadcaster, presence PresenceCounter) *PusherHandler {
	return &PusherHandler{channelAuth: channelAuth, broadcaster: broadcaster, presence: presence}
}

// AuthorizeChannelRequest 定义通道授权请求的结构体。
// socket_id 和 channel_name 沿用 Pusher 客户端的表单字段名。
type AuthorizeChannelRequest struct {
	SocketID    string `form:"socket_id" binding:"required"`
	ChannelName string `form:"channel_name" binding:"required"`
	UserID      string `form:"user_id" binding:"required"`
	AuthToken   string `form:"auth_token" binding:"required"`
}

// AuthorizeChannel 处理 presence 通道的订阅授权请求
func (h *PusherHandler) AuthorizeChannel(c *gin.Context) {
	var req AuthorizeChannelRequest
	if err := c.ShouldBind(&req); err != nil {
		logrus.WithError(err).Warn("Handler.AuthorizeChannel: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: socket_id, channel_name, user_id and auth_token are required")
		return
	}

	sessionID, ok := service.SessionIDFromChannel(req.ChannelName)
	if !ok {
		ErrorResponse(c, http.StatusBadRequest, "unsupported channel name")
		return
	}

	grant, err := h.channelAuth.VerifyToken(c.Request.Context(), sessionID, req.UserID, req.AuthToken, req.SocketID, req.ChannelName)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, grant)
}

// TriggerRequest 定义服务端事件触发请求的结构体
type TriggerRequest struct {
	Channel string          `json:"channel" binding:"required"`
	Event   string          `json:"event" binding:"required"`
	Data    json.RawMessage `json:"data"`
}

// Trigger 将应用层事件广播到指定通道，典型用途是转发 code-update。
// 端点本身公开，通道令牌体系负责控制谁能订阅到这些事件。
func (h *PusherHandler) Trigger(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Trigger: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: channel and event are required")
		return
	}

	if _, ok := service.SessionIDFromChannel(req.Channel); !ok {
		ErrorResponse(c, http.StatusBadRequest, "unsupported channel name")
		return
	}

	if req.Event == domain.EventCodeUpdate {
		var update domain.CodeUpdate
		if err := json.Unmarshal(req.Data, &update); err != nil || update.UserID == "" || update.FileID == "" {
			ErrorResponse(c, http.StatusBadRequest, "Invalid code-update payload: fileId and userId are required")
			return
		}
	}

	if err := h.broadcaster.Trigger(c.Request.Context(), req.Channel, req.Event, req.Data); err != nil {
		logrus.WithFields(logrus.Fields{"channel": req.Channel, "event": req.Event}).
			WithError(err).Error("Handler.Trigger: Failed to publish event")
		ErrorResponse(c, http.StatusInternalServerError, "Failed to publish event")
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"success": true})
}

// ChannelInfo 返回通道的占用状态和本地成员数，格式仿 Pusher 的
// channel 查询接口，监控和调试用。
func (h *PusherHandler) ChannelInfo(c *gin.Context) {
	channel := c.Param("channelName")
	if _, ok := service.SessionIDFromChannel(channel); !ok {
		ErrorResponse(c, http.StatusBadRequest, "unsupported channel name")
		return
	}

	count := h.presence.LocalMemberCount(channel)
	SuccessResponse(c, http.StatusOK, gin.H{
		"occupied":   count > 0,
		"user_count": count,
	})
}
