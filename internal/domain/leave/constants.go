package leave

import "strings"

type Status string

const (
	StatusPendingPM     Status = "Pending PM"
	StatusPendingLeader Status = "Pending Leader"
	StatusPendingHR     Status = "Pending HR"
	StatusApproved      Status = "Approved"
	StatusRejected      Status = "Rejected"
)

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s Status) Pending() bool {
	switch s {
	case StatusPendingPM, StatusPendingLeader, StatusPendingHR:
		return true
	}
	return false
}

type Type string

const (
	TypeVacation    Type = "Vacation"
	TypePermission  Type = "Permission"
	TypeEconomicDay Type = "Economic Day"
)

var Types = []Type{TypeVacation, TypePermission, TypeEconomicDay}

// ParseType matches case-insensitively and accepts "EconomicDay" without the space.
func ParseType(raw string) (Type, bool) {
	normalized := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", ""))
	for _, t := range Types {
		if normalized == strings.ToLower(strings.ReplaceAll(string(t), " ", "")) {
			return t, true
		}
	}
	return "", false
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func ParseAction(raw string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionApprove:
		return ActionApprove, true
	case ActionReject:
		return ActionReject, true
	}
	return "", false
}

const (
	AuditActionCreate  = "leave.request.create"
	AuditActionUpdate  = "leave.request.update"
	AuditActionApprove = "leave.request.approve"
	AuditActionReject  = "leave.request.reject"
	AuditEntityType    = "leave_request"

	commentSeparator = " | "
	dateLayout       = "2006-01-02"
	timeLayout       = "15:04"
)
