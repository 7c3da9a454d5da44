package workspaces

import "github.com/platinummonkey/workspace-billing/pkg/auth"

// AdminWriteGuard decides whether a user may change a workspace's billing
type AdminWriteGuard struct{}

// IsAdminWriteForbidden returns true unless user is an ADMIN member of ws
func (AdminWriteGuard) IsAdminWriteForbidden(ws *Workspace, user auth.User) bool {
	if ws == nil || user.ID == "" {
		return true
	}
	role, ok := ws.MemberRole(user.ID)
	return !ok || role != RoleAdmin
}
