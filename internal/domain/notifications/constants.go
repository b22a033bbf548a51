package notifications

const (
	TypeLeaveSubmitted       = "leave_submitted"
	TypeLeavePendingApproval = "leave_pending_approval"
	TypeLeaveApproved        = "leave_approved"
	TypeLeaveRejected        = "leave_rejected"
)
