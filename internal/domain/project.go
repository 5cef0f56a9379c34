package domain

// Project 表示一个代码项目，文件和协作会话都挂在项目之下。
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	UserID      string `json:"userId"`
	IsPublic    bool   `json:"isPublic"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// File 表示项目中的一个源文件，内容整体存储。
type File struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}
