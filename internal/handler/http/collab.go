package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mainak1023/Codelith/internal/domain"
	"github.com/mainak1023/Codelith/internal/service"
)

// CollabHandler 封装了协作会话生命周期的 HTTP 处理逻辑。
type CollabHandler struct {
	collabService *service.CollabService
}

// NewCollabHandler 创建 CollabHandler 实例
func NewCollabHandler(collabService *service.CollabService) *CollabHandler {
	return &CollabHandler{collabService: collabService}
}

// CreateSessionRequest 定义创建会话请求的结构体
type CreateSessionRequest struct {
	ProjectID  string `json:"projectId" binding:"required"`
	UserID     string `json:"userId" binding:"required"`
	UserName   string `json:"userName" binding:"required"`
	UserAvatar string `json:"userAvatar"`
}

// CreateSession 处理创建协作会话的请求
func (h *CollabHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateSession: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: projectId, userId and userName are required")
		return
	}

	ticket, err := h.collabService.CreateSession(c.Request.Context(), req.ProjectID, domain.Participant{
		UserID:     req.UserID,
		UserName:   req.UserName,
		UserAvatar: req.UserAvatar,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, ticket)
}

// JoinSessionRequest 定义加入会话请求的结构体
type JoinSessionRequest struct {
	SessionID  string `json:"sessionId" binding:"required"`
	UserID     string `json:"userId" binding:"required"`
	UserName   string `json:"userName" binding:"required"`
	UserAvatar string `json:"userAvatar"`
}

// JoinSession 处理加入协作会话的请求
func (h *CollabHandler) JoinSession(c *gin.Context) {
	var req JoinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.JoinSession: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: sessionId, userId and userName are required")
		return
	}

	ticket, err := h.collabService.JoinSession(c.Request.Context(), req.SessionID, domain.Participant{
		UserID:     req.UserID,
		UserName:   req.UserName,
		UserAvatar: req.UserAvatar,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, ticket)
}

// GetSession 按 sessionId 查询会话状态
func (h *CollabHandler) GetSession(c *gin.Context) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		ErrorResponse(c, http.StatusBadRequest, "sessionId is required")
		return
	}

	session, err := h.collabService.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"session": session})
}

// LeaveSession 处理离开协作会话的请求
func (h *CollabHandler) LeaveSession(c *gin.Context) {
	sessionID := c.Query("sessionId")
	userID := c.Query("userId")
	if sessionID == "" || userID == "" {
		ErrorResponse(c, http.StatusBadRequest, "sessionId and userId are required")
		return
	}

	if err := h.collabService.LeaveSession(c.Request.Context(), sessionID, userID); err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"success": true})
}
