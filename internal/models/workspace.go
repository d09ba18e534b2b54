package models

import "time"

type WorkspaceRole string

const (
	RoleOwner  WorkspaceRole = "owner"
	RoleAdmin  WorkspaceRole = "admin"
	RoleMember WorkspaceRole = "member"
	RoleViewer WorkspaceRole = "viewer"
)

const DefaultWorkspaceColor = "#FF5733"

type WorkspaceMember struct {
	UserID   string        `json:"user"`
	Role     WorkspaceRole `json:"role"`
	JoinedAt time.Time     `json:"joinedAt"`
}

type Workspace struct {
	ID          string            `json:"_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Color       string            `json:"color"`
	OwnerID     string            `json:"owner"`
	Members     []WorkspaceMember `json:"members"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type CreateWorkspaceRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"required,max=500"`
	Color       string `json:"color" binding:"omitempty,hexcolor"`
}

// UpdateWorkspaceRequest changes the non-empty fields only.
type UpdateWorkspaceRequest struct {
	Name        string `json:"name" binding:"omitempty,max=100"`
	Description string `json:"description" binding:"omitempty,max=500"`
	Color       string `json:"color" binding:"omitempty,hexcolor"`
}
