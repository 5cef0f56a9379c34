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

// ProjectService 管理项目的增删改查，删除时级联清理项目文件。
type ProjectService struct {
	projectRepo repository.ProjectRepository
	fileRepo    repository.FileRepository
}

// NewProjectService 创建 ProjectService 实例。
func NewProjectService(projectRepo repository.ProjectRepository, fileRepo repository.FileRepository) *ProjectService {
	if projectRepo == nil || fileRepo == nil {
		panic("repositories cannot be nil for ProjectService")
	}
	return &ProjectService{projectRepo: projectRepo, fileRepo: fileRepo}
}

// CreateProject 创建项目。
func (s *ProjectService) CreateProject(ctx context.Context, userID, name, description string, isPublic bool) (*domain.Project, error) {
	if userID == "" || name == "" {
		return nil, ErrValidation
	}
	now := time.Now().UnixMilli()
	project := &domain.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		UserID:      userID,
		IsPublic:    isPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.projectRepo.Save(ctx, project); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "name": name}).
			WithError(err).Error("Failed to save project")
		return nil, ErrInternalServer
	}
	logrus.WithFields(logrus.Fields{"project_id": project.ID, "user_id": userID}).Info("Project created")
	return project, nil
}

// GetProject 读取项目；私有项目仅属主可见。
func (s *ProjectService) GetProject(ctx context.Context, projectID, callerID string) (*domain.Project, error) {
	if projectID == "" {
		return nil, ErrValidation
	}
	project, err := s.projectRepo.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, ErrProjectNotFound
		}
		logrus.WithField("project_id", projectID).WithError(err).Error("Failed to load project")
		return nil, ErrInternalServer
	}
	if !project.IsPublic && project.UserID != callerID {
		return nil, ErrForbidden
	}
	return project, nil
}

// ListProjects 返回用户名下全部项目。
func (s *ProjectService) ListProjects(ctx context.Context, userID string) ([]*domain.Project, error) {
	if userID == "" {
		return nil, ErrValidation
	}
	projects, err := s.projectRepo.ListByUser(ctx, userID)
	if err != nil {
		logrus.WithField("user_id", userID).WithError(err).Error("Failed to list projects")
		return nil, ErrInternalServer
	}
	return projects, nil
}

// UpdateProject 更新项目的名称、描述和可见性，仅属主可操作。
func (s *ProjectService) UpdateProject(ctx context.Context, projectID, callerID, name, description string, isPublic *bool) (*domain.Project, error) {
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
	if project.UserID != callerID {
		return nil, ErrForbidden
	}
	if name != "" {
		project.Name = name
	}
	if description != "" {
		project.Description = description
	}
	if isPublic != nil {
		project.IsPublic = *isPublic
	}
	project.UpdatedAt = time.Now().UnixMilli()
	if err := s.projectRepo.Save(ctx, project); err != nil {
		logrus.WithField("project_id", projectID).WithError(err).Error("Failed to save project")
		return nil, ErrInternalServer
	}
	return project, nil
}

// DeleteProject 删除项目及其全部文件，仅属主可操作。
func (s *ProjectService) DeleteProject(ctx context.Context, projectID, callerID string) error {
	if projectID == "" {
		return ErrValidation
	}
	project, err := s.projectRepo.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return ErrProjectNotFound
		}
		return ErrInternalServer
	}
	if project.UserID != callerID {
		return ErrForbidden
	}
	if err := s.fileRepo.DeleteAllForProject(ctx, projectID); err != nil {
		logrus.WithField("project_id", projectID).WithError(err).Error("Failed to delete project files")
		return ErrInternalServer
	}
	if err := s.projectRepo.Delete(ctx, project); err != nil {
		logrus.WithField("project_id", projectID).WithError(err).Error("Failed to delete project")
		return ErrInternalServer
	}
	logrus.WithField("project_id", projectID).Info("Project deleted")
	return nil
}
