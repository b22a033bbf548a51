package leave

import (
	"fmt"
	"strings"

	"leaveflow/internal/domain/auth"
)

type stage struct {
	role string
	next Status
	mark func(*ApprovalFlow)
}

var stages = map[Status]stage{
	StatusPendingPM:     {role: auth.RoleProjectManager, next: StatusPendingLeader, mark: func(f *ApprovalFlow) { f.PM = true }},
	StatusPendingLeader: {role: auth.RoleLeader, next: StatusPendingHR, mark: func(f *ApprovalFlow) { f.Leader = true }},
	StatusPendingHR:     {role: auth.RoleHR, next: StatusApproved, mark: func(f *ApprovalFlow) { f.HR = true }},
}

// StageRole returns the role that may approve a request in status.
func StageRole(status Status) (string, bool) {
	st, ok := stages[status]
	return st.role, ok
}

// InitialState picks the entry stage for a new request.
func InitialState(hasProject bool) (Status, ApprovalFlow) {
	if hasProject {
		return StatusPendingPM, ApprovalFlow{}
	}
	return StatusPendingLeader, ApprovalFlow{PM: true}
}

func isApprover(role string) bool {
	switch role {
	case auth.RoleProjectManager, auth.RoleLeader, auth.RoleHR:
		return true
	}
	return false
}

// Transition applies action by actorRole to a request and returns the new
// workflow state. Inputs are never modified.
func Transition(status Status, flow ApprovalFlow, actorRole, action, comments, comment string) (Outcome, error) {
	act, ok := ParseAction(action)
	if !ok {
		return Outcome{}, invalid("unknown action", Issue{Field: "action", Reason: "must be approve or reject"})
	}
	if status.Terminal() {
		return Outcome{}, fmt.Errorf("%w: request is already %s", ErrStateConflict, status)
	}
	st, ok := stages[status]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: unknown status %q", ErrStateConflict, status)
	}

	role := auth.NormalizeRole(actorRole)
	out := Outcome{Status: status, Flow: flow, Comments: comments}
	switch act {
	case ActionApprove:
		if role != st.role {
			return Outcome{}, fmt.Errorf("%w: %s approval requires role %s", ErrForbidden, status, st.role)
		}
		st.mark(&out.Flow)
		out.Status = st.next
	case ActionReject:
		if !isApprover(role) {
			return Outcome{}, fmt.Errorf("%w: role %s cannot reject requests", ErrForbidden, role)
		}
		out.Status = StatusRejected
	}
	out.Comments = AppendComment(comments, comment)
	return out, nil
}

// AppendComment joins a non-empty comment onto the trail.
func AppendComment(trail, comment string) string {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return trail
	}
	if trail == "" {
		return comment
	}
	return trail + commentSeparator + comment
}
