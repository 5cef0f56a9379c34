package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mainak1023/Codelith/internal/service"
)

// ProjectHandler 封装了项目管理的 HTTP 处理逻辑
type ProjectHandler struct {
	projectService *service.ProjectService
}

// NewProjectHandler 创建 ProjectHandler 实例
func NewProjectHandler(projectService *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

// CreateProjectRequest 定义创建项目请求的结构体
type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
}

// CreateProject 处理创建项目的请求
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	userID := AuthenticatedUserID(c)
	if userID == "" {
		return
	}

	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateProject: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: name is required")
		return
	}

	project, err := h.projectService.CreateProject(c.Request.Context(), userID, req.Name, req.Description, req.IsPublic)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, project)
}

// ListProjects 返回当前用户名下的全部项目
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	userID := AuthenticatedUserID(c)
	if userID == "" {
		return
	}

	projects, err := h.projectService.ListProjects(c.Request.Context(), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"projects": projects})
}

// GetProject 按 id 读取项目
func (h *ProjectHandler) GetProject(c *gin.Context) {
	userID := AuthenticatedUserID(c)
	if userID == "" {
		return
	}

	project, err := h.projectService.GetProject(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, project)
}

// UpdateProjectRequest 定义更新项目请求的结构体
type UpdateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    *bool  `json:"isPublic"`
}

// UpdateProject 处理更新项目的请求
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	userID := AuthenticatedUserID(c)
	if userID == "" {
		return
	}

	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.UpdateProject: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input")
		return
	}

	project, err := h.projectService.UpdateProject(c.Request.Context(), c.Param("id"), userID, req.Name, req.Description, req.IsPublic)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, project)
}

// DeleteProject 处理删除项目的请求
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	userID := AuthenticatedUserID(c)
	if userID == "" {
		return
	}

	if err := h.projectService.DeleteProject(c.Request.Context(), c.Param("id"), userID); err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"message": "Project deleted successfully"})
}
