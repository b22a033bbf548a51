package leave

import "leaveflow/internal/domain/auth"

// ScopeFor returns the listing scope of a principal.
func ScopeFor(p auth.Principal) Scope {
	switch auth.NormalizeRole(p.Role) {
	case auth.RoleHR, auth.RoleAdmin:
		return Scope{All: true}
	case auth.RoleProjectManager:
		return Scope{Filter: ListFilter{Status: StatusPendingPM}}
	case auth.RoleLeader:
		return Scope{Filter: ListFilter{Status: StatusPendingLeader}}
	default:
		return Scope{Filter: ListFilter{OwnerID: p.ID}}
	}
}

// Visible reports whether req falls inside the scope or belongs to p.
func Visible(p auth.Principal, req LeaveRequest) bool {
	if req.UserID == p.ID {
		return true
	}
	scope := ScopeFor(p)
	if scope.All {
		return true
	}
	if scope.Filter.OwnerID != "" && scope.Filter.OwnerID != req.UserID {
		return false
	}
	if scope.Filter.Status != "" && scope.Filter.Status != req.Status {
		return false
	}
	return true
}
