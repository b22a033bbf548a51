package leave

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"leaveflow/internal/domain/auth"
)

type Service struct {
	store    StoreAPI
	Notifier Notifier
	Auditor  Auditor
	Observer Observer
	Now      func() time.Time

	// NotifyTimeout bounds each background notification dispatch.
	NotifyTimeout time.Duration
	pending       sync.WaitGroup
}

const defaultNotifyTimeout = 30 * time.Second

func NewService(store StoreAPI) *Service {
	return &Service{store: store, Now: time.Now}
}

func (s *Service) today() time.Time {
	return dateOnly(s.Now())
}

// Create submits a new request owned by p.
func (s *Service) Create(ctx context.Context, p auth.Principal, in Input) (LeaveRequest, error) {
	req := LeaveRequest{}
	patch := ParsePatch(in)
	issues := patch.Apply(&req)
	issues = append(issues, check(req)...)
	if p.HasProject && strings.TrimSpace(req.MitigationPlan) == "" {
		issues = append(issues, Issue{Field: "mitigationPlan", Reason: "is required while assigned to a project"})
	}
	if len(issues) > 0 {
		return LeaveRequest{}, invalid("invalid leave request", issues...)
	}

	req.ID = uuid.NewString()
	req.UserID = p.ID
	req.Status, req.ApprovalFlow = InitialState(p.HasProject)
	req.RequestDate = s.today()
	req.Version = 1
	derive(&req)

	id, err := s.store.Insert(ctx, req)
	if err != nil {
		return LeaveRequest{}, fmt.Errorf("insert leave request: %w", err)
	}
	created, err := s.store.GetByID(ctx, id)
	if err != nil {
		return LeaveRequest{}, fmt.Errorf("reload leave request: %w", err)
	}

	s.observe("create", created.Status)
	s.audit(ctx, p.ID, AuditActionCreate, created.ID, nil, Present(created))
	s.notify(ctx, "submitted", created, func(ctx context.Context, n Notifier) error {
		return n.RequestSubmitted(ctx, created, s.stageRecipients(ctx, created.Status))
	})
	return created, nil
}

// Get returns a request the principal may see. Requests outside the scope
// are reported as not found.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (LeaveRequest, error) {
	if strings.TrimSpace(id) == "" {
		return LeaveRequest{}, invalid("id is required", Issue{Field: "id", Reason: "is required"})
	}
	req, err := s.store.GetByID(ctx, id)
	if err != nil {
		return LeaveRequest{}, err
	}
	if !Visible(p, req) {
		return LeaveRequest{}, ErrNotFound
	}
	return req, nil
}

func (s *Service) List(ctx context.Context, p auth.Principal) ([]LeaveRequest, error) {
	scope := ScopeFor(p)
	filter := scope.Filter
	if scope.All {
		filter = ListFilter{}
	}
	return s.store.List(ctx, filter)
}

// UpdateFields edits the editable attributes of a pending request.
func (s *Service) UpdateFields(ctx context.Context, p auth.Principal, id string, in Input) (LeaveRequest, error) {
	if strings.TrimSpace(id) == "" {
		return LeaveRequest{}, invalid("id is required", Issue{Field: "id", Reason: "is required"})
	}
	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return LeaveRequest{}, err
	}
	role := auth.NormalizeRole(p.Role)
	if current.UserID != p.ID && role != auth.RoleAdmin && role != auth.RoleHR {
		return LeaveRequest{}, fmt.Errorf("%w: only the owner, HR or Admin can edit a request", ErrForbidden)
	}
	if !current.Status.Pending() {
		return LeaveRequest{}, fmt.Errorf("%w: request is already %s", ErrStateConflict, current.Status)
	}

	patch := ParsePatch(in)
	if patch.Empty() {
		return LeaveRequest{}, invalid("nothing to update")
	}

	merged := current
	issues := patch.Apply(&merged)
	issues = append(issues, check(merged)...)
	if strings.TrimSpace(current.MitigationPlan) != "" && strings.TrimSpace(merged.MitigationPlan) == "" {
		issues = append(issues, Issue{Field: "mitigationPlan", Reason: "cannot be cleared"})
	}
	if len(issues) > 0 {
		return LeaveRequest{}, invalid("invalid leave request", issues...)
	}
	derive(&merged)

	columns := uniqueColumns(patch.Columns(), derivedColumns)
	if err := s.store.UpdateFields(ctx, merged, columns, current.Version); err != nil {
		return LeaveRequest{}, err
	}
	updated, err := s.store.GetByID(ctx, id)
	if err != nil {
		return LeaveRequest{}, fmt.Errorf("reload leave request: %w", err)
	}
	s.audit(ctx, p.ID, AuditActionUpdate, id, Present(current), Present(updated))
	return updated, nil
}

// Act applies an approve or reject action.
func (s *Service) Act(ctx context.Context, p auth.Principal, id, action, comment string) (LeaveRequest, error) {
	var issues []Issue
	if strings.TrimSpace(id) == "" {
		issues = append(issues, Issue{Field: "id", Reason: "is required"})
	}
	if strings.TrimSpace(action) == "" {
		issues = append(issues, Issue{Field: "action", Reason: "is required"})
	}
	if len(issues) > 0 {
		return LeaveRequest{}, invalid("id and action are required", issues...)
	}

	current, err := s.store.GetByID(ctx, id)
	if err != nil {
		return LeaveRequest{}, err
	}
	if current.UserID == p.ID {
		return LeaveRequest{}, fmt.Errorf("%w: you cannot act on your own request", ErrForbidden)
	}

	out, err := Transition(current.Status, current.ApprovalFlow, p.Role, action, current.Comments, comment)
	if err != nil {
		return LeaveRequest{}, err
	}
	if err := s.store.UpdateWorkflow(ctx, id, out, current.Version); err != nil {
		return LeaveRequest{}, err
	}
	updated, err := s.store.GetByID(ctx, id)
	if err != nil {
		return LeaveRequest{}, fmt.Errorf("reload leave request: %w", err)
	}

	act, _ := ParseAction(action)
	s.observe(string(act), updated.Status)
	auditAction := AuditActionApprove
	if act == ActionReject {
		auditAction = AuditActionReject
	}
	s.audit(ctx, p.ID, auditAction, id, workflowSnapshot(current), workflowSnapshot(updated))

	if updated.Status.Terminal() {
		s.notify(ctx, "decided", updated, func(ctx context.Context, n Notifier) error {
			return n.RequestDecided(ctx, updated)
		})
	} else {
		s.notify(ctx, "advanced", updated, func(ctx context.Context, n Notifier) error {
			return n.RequestAdvanced(ctx, updated, s.stageRecipients(ctx, updated.Status))
		})
	}
	return updated, nil
}

// notify hands a workflow event to the Notifier in the background. The
// dispatch keeps the request context's values but not its cancellation, and
// failures are only logged.
func (s *Service) notify(ctx context.Context, event string, req LeaveRequest, send func(context.Context, Notifier) error) {
	n := s.Notifier
	if n == nil {
		return
	}
	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := send(nctx, n); err != nil {
			slog.Warn("leave notification failed", "event", event, "requestId", req.ID, "status", string(req.Status), "err", err)
		}
	}()
}

// Wait blocks until every dispatched notification has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) stageRecipients(ctx context.Context, status Status) []string {
	role, ok := StageRole(status)
	if !ok {
		return nil
	}
	ids, err := s.store.UserIDsByRole(ctx, role)
	if err != nil {
		slog.Warn("approver lookup failed", "role", role, "err", err)
		return nil
	}
	return ids
}

func (s *Service) audit(ctx context.Context, actorID, action, entityID string, before, after any) {
	if s.Auditor == nil {
		return
	}
	if err := s.Auditor.Record(ctx, actorID, action, AuditEntityType, entityID, before, after); err != nil {
		slog.Warn("audit record failed", "action", action, "entityId", entityID, "err", err)
	}
}

func (s *Service) observe(action string, status Status) {
	if s.Observer != nil {
		s.Observer.ObserveTransition(action, string(status))
	}
}

func workflowSnapshot(req LeaveRequest) map[string]any {
	return map[string]any{
		"status":       string(req.Status),
		"approvalFlow": req.ApprovalFlow,
		"comments":     req.Comments,
	}
}

func uniqueColumns(groups ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, group := range groups {
		for _, column := range group {
			if !seen[column] {
				seen[column] = true
				out = append(out, column)
			}
		}
	}
	return out
}
