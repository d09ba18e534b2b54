package authz

import "taskhub/internal/models"

// RoleIn returns the member's role in w, or false when userID is not a member.
func RoleIn(w *models.Workspace, userID string) (models.WorkspaceRole, bool) {
	if w == nil {
		return "", false
	}
	for _, m := range w.Members {
		if m.UserID == userID {
			return m.Role, true
		}
	}
	return "", false
}

func CanView(w *models.Workspace, userID string) bool {
	_, ok := RoleIn(w, userID)
	return ok
}

// IsElevated reports whether role may change workspace settings.
func IsElevated(role models.WorkspaceRole) bool {
	return role == models.RoleOwner || role == models.RoleAdmin
}
