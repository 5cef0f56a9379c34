package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mainak1023/Codelith/internal/service"
)

// FileHandler 封装了项目文件管理的 HTTP 处理逻辑
type FileHandler struct {
	fileService *service.FileService
}

// NewFileHandler 创建 FileHandler 实例
func NewFileHandler(fileService *service.FileService) *FileHandler {
	return &FileHandler{fileService: fileService}
}

// CreateFileRequest 定义创建文件请求的结构体
type CreateFileRequest struct {
	ProjectID string `json:"projectId" binding:"required"`
	Name      string `json:"name" binding:"required,min=1,max=255"`
	Content   string `json:"content"`
}

// CreateFile 处理创建文件的请求
func (h *FileHandler) CreateFile(c *gin.Context) {
	userID := AuthenticatedUserID(c)
	if userID == "" {
		return
	}

	var req CreateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateFile: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: projectId and name are required")
		return
	}

	file, err := h.fileService.CreateFile(c.Request.Context(), req.ProjectID, userID, req.Name, req.Content)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusCreated, file)
}

// ListFiles 返回项目下的全部文件
func (h *FileHandler) ListFiles(c *gin.Context) {
	userID := AuthenticatedUserID(c)
	if userID == "" {
		return
	}

	projectID := c.Query("projectId")
	if projectID == "" {
		ErrorResponse(c, http.StatusBadRequest, "projectId is required")
		return
	}

	files, err := h.fileService.ListFiles(c.Request.Context(), projectID, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"files": files})
}

// GetFile 按 id 读取文件
func (h *FileHandler) GetFile(c *gin.Context) {
	userID := AuthenticatedUserID(c)
	if userID == "" {
		return
	}

	file, err := h.fileService.GetFile(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, file)
}

// UpdateFileRequest 定义更新文件请求的结构体
type UpdateFileRequest struct {
	Name    string  `json:"name"`
	Content *string `json:"content"`
}

// UpdateFile 处理更新文件的请求
func (h *FileHandler) UpdateFile(c *gin.Context) {
	userID := AuthenticatedUserID(c)
	if userID == "" {
		return
	}

	var req UpdateFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.UpdateFile: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input")
		return
	}

	file, err := h.fileService.UpdateFile(c.Request.Context(), c.Param("id"), userID, req.Name, req.Content)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, file)
}

// DeleteFile 处理删除文件的请求
func (h *FileHandler) DeleteFile(c *gin.Context) {
	userID := AuthenticatedUserID(c)
	if userID == "" {
		return
	}

	if err := h.fileService.DeleteFile(c.Request.Context(), c.Param("id"), userID); err != nil {
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, gin.H{"message": "File deleted successfully"})
}
