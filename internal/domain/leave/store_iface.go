package leave

import "context"

type StoreAPI interface {
	Insert(ctx context.Context, req LeaveRequest) (string, error)
	GetByID(ctx context.Context, id string) (LeaveRequest, error)
	List(ctx context.Context, filter ListFilter) ([]LeaveRequest, error)
	UpdateFields(ctx context.Context, req LeaveRequest, columns []string, expectedVersion int) error
	UpdateWorkflow(ctx context.Context, id string, out Outcome, expectedVersion int) error
	UserIDsByRole(ctx context.Context, role string) ([]string, error)
}

// Notifier receives workflow events after the store write.
type Notifier interface {
	RequestSubmitted(ctx context.Context, req LeaveRequest, recipients []string) error
	RequestAdvanced(ctx context.Context, req LeaveRequest, recipients []string) error
	RequestDecided(ctx context.Context, req LeaveRequest) error
}

type Auditor interface {
	Record(ctx context.Context, actorID, action, entityType, entityID string, before, after any) error
}

// Observer counts workflow transitions.
type Observer interface {
	ObserveTransition(action, status string)
}
