package repository

import (
	"context"

	"github.com/mainak1023/Codelith/internal/domain"
)

// ProjectRepository 定义项目记录及 owner 索引集合的存储操作。
type ProjectRepository interface {
	// Get 按 id 读取项目。不存在时返回 ErrProjectNotFound。
	Get(ctx context.Context, projectID string) (*domain.Project, error)

	// Save 写入项目记录并确保 owner 索引包含该项目。
	Save(ctx context.Context, project *domain.Project) error

	// Delete 删除项目记录、owner 索引项和项目的文件索引集合。
	Delete(ctx context.Context, project *domain.Project) error

	// ListByUser 返回某用户名下全部项目。
	ListByUser(ctx context.Context, userID string) ([]*domain.Project, error)
}

// FileRepository 定义文件记录及 project 索引集合的存储操作。
type FileRepository interface {
	// Get 按 id 读取文件。不存在时返回 ErrFileNotFound。
	Get(ctx context.Context, fileID string) (*domain.File, error)

	// Save 写入文件记录并确保项目索引包含该文件。
	Save(ctx context.Context, file *domain.File) error

	// Delete 删除文件记录及其项目索引项。
	Delete(ctx context.Context, file *domain.File) error

	// ListByProject 返回项目下全部文件。
	ListByProject(ctx context.Context, projectID string) ([]*domain.File, error)

	// DeleteAllForProject 删除项目下全部文件（级联删除用）。
	DeleteAllForProject(ctx context.Context, projectID string) error
}
