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

// FileService 管理项目文件的增删改查。
type FileService struct {
	fileRepo    repository.FileRepository
	projectRepo repository.ProjectRepository
}

// NewFileService 创建 FileService 实例。
func NewFileService(fileRepo repository.FileRepository, projectRepo repository.ProjectRepository) *FileService {
	if fileRepo == nil || projectRepo == nil {
		panic("repositories cannot be nil for FileService")
	}
	return &FileService{fileRepo: fileRepo, projectRepo: projectRepo}
}

// canAccess 检查调用者是否可以读取项目内容。
func (s *FileService) canAccess(project *domain.Project, callerID string) bool {
	return project.IsPublic || project.UserID == callerID
}

// CreateFile 在项目下创建文件，仅项目属主可操作。
func (s *FileService) CreateFile(ctx context.Context, projectID, callerID, name, content string) (*domain.File, error) {
	if projectID == "" || name == "" {
		return nil, ErrValidation
	}
	project, err := s.projectRepo.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, ErrInternalServer
	}
	if project.UserID != callerID {
		return nil, ErrForbidden
	}

	now := time.Now().UnixMilli()
	file := &domain.File{
		ID:        uuid.NewString(),
		Name:      name,
		Content:   content,
		UserID:    callerID,
		ProjectID: projectID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.fileRepo.Save(ctx, file); err != nil {
		logrus.WithFields(logrus.Fields{"project_id": projectID, "name": name}).
			WithError(err).Error("Failed to save file")
		return nil, ErrInternalServer
	}
	logrus.WithFields(logrus.Fields{"file_id": file.ID, "project_id": projectID}).Info("File created")
	return file, nil
}

// GetFile 读取文件，访问控制跟随所属项目的可见性。
func (s *FileService) GetFile(ctx context.Context, fileID, callerID string) (*domain.File, error) {
	if fileID == "" {
		return nil, ErrValidation
	}
	file, err := s.fileRepo.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, ErrInternalServer
	}
	project, err := s.projectRepo.Get(ctx, file.ProjectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, ErrInternalServer
	}
	if !s.canAccess(project, callerID) {
		return nil, ErrForbidden
	}
	return file, nil
}

// ListFiles 返回项目下全部文件，访问控制跟随项目可见性。
func (s *FileService) ListFiles(ctx context.Context, projectID, callerID string) ([]*domain.File, error) {
	if projectID == "" {
		return nil, ErrValidation
	}
	project, err := s.projectRepo.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, ErrInternalServer
	}
	if !s.canAccess(project, callerID) {
		return nil, ErrForbidden
	}
	files, err := s.fileRepo.ListByProject(ctx, projectID)
	if err != nil {
		logrus.WithField("project_id", projectID).WithError(err).Error("Failed to list files")
		return nil, ErrInternalServer
	}
	return files, nil
}

// UpdateFile 更新文件名称或内容，仅项目属主可操作。
func (s *FileService) UpdateFile(ctx context.Context, fileID, callerID, name string, content *string) (*domain.File, error) {
	if fileID == "" {
		return nil, ErrValidation
	}
	file, err := s.fileRepo.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, ErrInternalServer
	}
	project, err := s.projectRepo.Get(ctx, file.ProjectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, ErrInternalServer
	}
	if project.UserID != callerID {
		return nil, ErrForbidden
	}
	if name != "" {
		file.Name = name
	}
	if content != nil {
		file.Content = *content
	}
	file.UpdatedAt = time.Now().UnixMilli()
	if err := s.fileRepo.Save(ctx, file); err != nil {
		logrus.WithField("file_id", fileID).WithError(err).Error("Failed to save file")
		return nil, ErrInternalServer
	}
	return file, nil
}

// DeleteFile 删除文件，仅项目属主可操作。
func (s *FileService) DeleteFile(ctx context.Context, fileID, callerID string) error {
	if fileID == "" {
		return ErrValidation
	}
	file, err := s.fileRepo.Get(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return ErrFileNotFound
		}
		return ErrInternalServer
	}
	project, err := s.projectRepo.Get(ctx, file.ProjectID)
	if err == nil && project.UserID != callerID {
		return ErrForbidden
	}
	if err := s.fileRepo.Delete(ctx, file); err != nil {
		logrus.WithField("file_id", fileID).WithError(err).Error("Failed to delete file")
		return ErrInternalServer
	}
	logrus.WithField("file_id", fileID).Info("File deleted")
	return nil
}
