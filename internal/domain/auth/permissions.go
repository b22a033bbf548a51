package auth

import "context"

const (
	RoleCollaborator   = "Collaborator"
	RoleLeader         = "Leader"
	RoleProjectManager = "Project Manager"
	RoleHR             = "HR"
	RoleAdmin          = "Admin"
)

var Roles = []string{
	RoleCollaborator,
	RoleLeader,
	RoleProjectManager,
	RoleHR,
	RoleAdmin,
}

const (
	PermLeaveRead     = "leave.read"
	PermLeaveWrite    = "leave.write"
	PermLeaveApprove  = "leave.approve"
	PermProfilesRead  = "profiles.read"
	PermProfilesAdmin = "profiles.admin"
	PermAuditRead     = "audit.read"
	PermJobsRun       = "jobs.run"
)

var DefaultPermissions = []string{
	PermLeaveRead,
	PermLeaveWrite,
	PermLeaveApprove,
	PermProfilesRead,
	PermProfilesAdmin,
	PermAuditRead,
	PermJobsRun,
}

var RolePermissions = map[string][]string{
	RoleCollaborator: {
		PermLeaveRead,
		PermLeaveWrite,
	},
	RoleLeader: {
		PermLeaveRead,
		PermLeaveWrite,
		PermLeaveApprove,
	},
	RoleProjectManager: {
		PermLeaveRead,
		PermLeaveWrite,
		PermLeaveApprove,
	},
	RoleHR: {
		PermLeaveRead,
		PermLeaveWrite,
		PermLeaveApprove,
		PermProfilesRead,
		PermAuditRead,
	},
	RoleAdmin: {
		PermLeaveRead,
		PermLeaveWrite,
		PermProfilesRead,
		PermProfilesAdmin,
		PermAuditRead,
		PermJobsRun,
	},
}

// NormalizeRole maps accepted spellings onto the canonical role names.
// Unknown or empty roles become Collaborator.
func NormalizeRole(role string) string {
	switch role {
	case RoleLeader, RoleProjectManager, RoleHR, RoleAdmin, RoleCollaborator:
		return role
	case "ProjectManager", "PM", "project_manager":
		return RoleProjectManager
	default:
		return RoleCollaborator
	}
}

func ValidRole(role string) bool {
	for _, candidate := range Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// StaticPermissions answers permission checks from RolePermissions.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(ctx context.Context, role, permission string) (bool, error) {
	for _, perm := range RolePermissions[role] {
		if perm == permission {
			return true, nil
		}
	}
	return false, nil
}
