package leave

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leaveflow/internal/domain/auth"
)

type memStore struct {
	mu    sync.Mutex
	rows  map[string]LeaveRequest
	names map[string]string
	roles map[string][]string
	seq   int
	// beforeWrite runs inside the write path to simulate a racing writer.
	beforeWrite func()
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]LeaveRequest{}, names: map[string]string{}, roles: map[string][]string{}}
}

func (m *memStore) Insert(ctx context.Context, req LeaveRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	req.CreatedAt = time.Date(2024, 1, 1, 0, 0, m.seq, 0, time.UTC)
	req.UpdatedAt = req.CreatedAt
	m.rows[req.ID] = req
	return req.ID, nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (LeaveRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.rows[id]
	if !ok {
		return LeaveRequest{}, ErrNotFound
	}
	req.UserName = m.names[req.UserID]
	return req, nil
}

func (m *memStore) List(ctx context.Context, filter ListFilter) ([]LeaveRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LeaveRequest, 0)
	for _, req := range m.rows {
		if filter.OwnerID != "" && req.UserID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) checkVersion(id string, expected int) (LeaveRequest, error) {
	if m.beforeWrite != nil {
		hook := m.beforeWrite
		m.beforeWrite = nil
		m.mu.Unlock()
		hook()
		m.mu.Lock()
	}
	req, ok := m.rows[id]
	if !ok {
		return LeaveRequest{}, ErrNotFound
	}
	if req.Version != expected {
		return LeaveRequest{}, fmt.Errorf("%w: request was modified concurrently; reload and retry", ErrStateConflict)
	}
	return req, nil
}

func (m *memStore) UpdateFields(ctx context.Context, req LeaveRequest, columns []string, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, err := m.checkVersion(req.ID, expectedVersion)
	if err != nil {
		return err
	}
	for _, column := range columns {
		f, ok := FieldByColumn(column)
		if !ok || !f.Writable() {
			return fmt.Errorf("column %q is not writable", column)
		}
	}
	next := req
	next.Status, next.ApprovalFlow, next.Comments = current.Status, current.ApprovalFlow, current.Comments
	next.Version = current.Version + 1
	next.CreatedAt = current.CreatedAt
	m.rows[req.ID] = next
	return nil
}

func (m *memStore) UpdateWorkflow(ctx context.Context, id string, out Outcome, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, err := m.checkVersion(id, expectedVersion)
	if err != nil {
		return err
	}
	current.Status, current.ApprovalFlow, current.Comments = out.Status, out.Flow, out.Comments
	current.Version++
	m.rows[id] = current
	return nil
}

func (m *memStore) UserIDsByRole(ctx context.Context, role string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roles[role], nil
}

type event struct {
	kind       string
	status     Status
	recipients []string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
	err    error
}

func (n *recordingNotifier) add(e event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) RequestSubmitted(ctx context.Context, req LeaveRequest, recipients []string) error {
	return n.add(event{"submitted", req.Status, recipients})
}

func (n *recordingNotifier) RequestAdvanced(ctx context.Context, req LeaveRequest, recipients []string) error {
	return n.add(event{"advanced", req.Status, recipients})
}

func (n *recordingNotifier) RequestDecided(ctx context.Context, req LeaveRequest) error {
	return n.add(event{"decided", req.Status, []string{req.UserID}})
}

type recordingAuditor struct {
	actions []string
}

func (a *recordingAuditor) Record(ctx context.Context, actorID, action, entityType, entityID string, before, after any) error {
	a.actions = append(a.actions, action)
	return errors.New("audit store down")
}

var (
	collaborator = auth.Principal{ID: "u-collab", Name: "Ana", Role: auth.RoleCollaborator}
	projectDev   = auth.Principal{ID: "u-dev", Name: "Dev", Role: auth.RoleCollaborator, HasProject: true}
	pm           = auth.Principal{ID: "u-pm", Role: auth.RoleProjectManager}
	leader       = auth.Principal{ID: "u-leader", Role: auth.RoleLeader}
	hr           = auth.Principal{ID: "u-hr", Role: auth.RoleHR}
	admin        = auth.Principal{ID: "u-admin", Role: auth.RoleAdmin}
)

func newTestService() (*Service, *memStore, *recordingNotifier) {
	store := newMemStore()
	store.names[collaborator.ID] = collaborator.Name
	store.roles[auth.RoleLeader] = []string{leader.ID}
	store.roles[auth.RoleHR] = []string{hr.ID}
	store.roles[auth.RoleProjectManager] = []string{pm.ID}
	n := &recordingNotifier{}
	svc := NewService(store)
	svc.Notifier = n
	svc.Now = func() time.Time { return time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC) }
	return svc, store, n
}

func vacationInput() Input {
	return Input{
		"type":              "Vacation",
		"startDate":         "2024-01-01",
		"endDate":           "2024-01-05",
		"returnDate":        "2024-01-08",
		"handoverTasks":     "weekly report",
		"responsiblePerson": "Luis",
		"daysRequested":     42,
		"status":            "Approved",
	}
}

func TestCreateInitialState(t *testing.T) {
	svc, _, n := newTestService()
	ctx := context.Background()

	req, err := svc.Create(ctx, collaborator, vacationInput())
	require.NoError(t, err)
	assert.Equal(t, StatusPendingLeader, req.Status)
	assert.Equal(t, ApprovalFlow{PM: true}, req.ApprovalFlow)
	assert.Equal(t, 5, req.DaysRequested, "client supplied days are ignored")
	assert.Equal(t, 0.0, req.HoursRequested)
	assert.Equal(t, collaborator.ID, req.UserID)
	assert.Equal(t, "Ana", req.UserName)
	assert.Equal(t, "2024-01-01", req.RequestDate.Format(dateLayout))
	assert.Equal(t, 1, req.Version)
	svc.Wait()
	require.Len(t, n.events, 1)
	assert.Equal(t, []string{leader.ID}, n.events[0].recipients)

	in := vacationInput()
	in["mitigationPlan"] = "Luis covers standups"
	req, err = svc.Create(ctx, projectDev, in)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingPM, req.Status)
	assert.Equal(t, ApprovalFlow{}, req.ApprovalFlow)
	svc.Wait()
	assert.Equal(t, []string{pm.ID}, n.events[1].recipients)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, collaborator, Input{})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.ErrorIs(t, err, ErrValidation)
	fields := map[string]bool{}
	for _, issue := range ve.Issues {
		fields[issue.Field] = true
	}
	for _, f := range []string{"type", "startDate", "endDate", "returnDate", "handoverTasks", "responsiblePerson"} {
		assert.True(t, fields[f], "missing field %s must be reported", f)
	}

	_, err = svc.Create(ctx, projectDev, vacationInput())
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "mitigationPlan", ve.Issues[0].Field)

	in := vacationInput()
	in["returnDate"] = "2024-01-05"
	_, err = svc.Create(ctx, collaborator, in)
	assert.ErrorIs(t, err, ErrValidation)

	in = vacationInput()
	in["isPartialDay"] = true
	in["startTime"] = "09:00"
	in["endTime"] = "10:00"
	_, err = svc.Create(ctx, collaborator, in)
	assert.ErrorIs(t, err, ErrValidation, "partial day only for Permission")
}

func TestCreatePartialDay(t *testing.T) {
	svc, _, _ := newTestService()
	req, err := svc.Create(context.Background(), collaborator, Input{
		"type":               "Permission",
		"start_date":         "2024-01-02",
		"end_date":           "2024-01-02",
		"return_date":        "2024-01-03",
		"handover_tasks":     "none",
		"responsible_person": "Luis",
		"is_partial_day":     true,
		"start_time":         "09:00",
		"end_time":           "13:30",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, req.DaysRequested)
	assert.Equal(t, 4.5, req.HoursRequested)

	sameDay, err := svc.Create(context.Background(), collaborator, Input{
		"type":              "Permission",
		"startDate":         "2024-01-02",
		"endDate":           "2024-01-02",
		"returnDate":        "2024-01-02",
		"handoverTasks":     "none",
		"responsiblePerson": "Luis",
		"isPartialDay":      true,
		"startTime":         "09:00",
		"endTime":           "13:30",
	})
	require.NoError(t, err, "partial-day leave may return the same day")
	assert.Equal(t, sameDay.EndDate, sameDay.ReturnDate)

	_, err = svc.Create(context.Background(), collaborator, Input{
		"type":              "Permission",
		"startDate":         "2024-01-02",
		"endDate":           "2024-01-02",
		"returnDate":        "2024-01-01",
		"handoverTasks":     "none",
		"responsiblePerson": "Luis",
		"isPartialDay":      true,
		"startTime":         "09:00",
		"endTime":           "13:30",
	})
	var early *ValidationError
	require.ErrorAs(t, err, &early)
	assert.Equal(t, "returnDate", early.Issues[0].Field)

	_, err = svc.Create(context.Background(), collaborator, Input{
		"type":              "Permission",
		"startDate":         "2024-01-02",
		"endDate":           "2024-01-03",
		"returnDate":        "2024-01-04",
		"handoverTasks":     "none",
		"responsiblePerson": "Luis",
		"isPartialDay":      true,
		"startTime":         "13:00",
		"endTime":           "09:00",
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.GreaterOrEqual(t, len(ve.Issues), 2)
}

func TestListScopes(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	other := auth.Principal{ID: "u-other", Role: auth.RoleCollaborator}

	_, err := svc.Create(ctx, collaborator, vacationInput())
	require.NoError(t, err)
	in := vacationInput()
	in["mitigationPlan"] = "covered"
	_, err = svc.Create(ctx, projectDev, in)
	require.NoError(t, err)

	count := func(p auth.Principal) int {
		list, err := svc.List(ctx, p)
		require.NoError(t, err)
		return len(list)
	}
	assert.Equal(t, 1, count(collaborator))
	assert.Equal(t, 0, count(other))
	assert.Equal(t, 2, count(hr))
	assert.Equal(t, 2, count(admin))
	assert.Equal(t, 1, count(pm))
	assert.Equal(t, 1, count(leader))

	list, err := svc.List(ctx, hr)
	require.NoError(t, err)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt), "newest first")
}

func TestGetScope(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	created, err := svc.Create(ctx, collaborator, vacationInput())
	require.NoError(t, err)

	_, err = svc.Get(ctx, collaborator, created.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, leader, created.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, pm, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(ctx, auth.Principal{ID: "u-other", Role: auth.RoleCollaborator}, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(ctx, hr, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateFields(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	created, err := svc.Create(ctx, collaborator, vacationInput())
	require.NoError(t, err)

	updated, err := svc.UpdateFields(ctx, collaborator, created.ID, Input{
		"end_date":     "2024-01-03",
		"returnDate":   "2024-01-04",
		"status":       "Approved",
		"comments":     "sneaky",
		"approvalFlow": map[string]any{"hr": true},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.DaysRequested)
	assert.Equal(t, StatusPendingLeader, updated.Status, "status is untouched by field edit")
	assert.Equal(t, "", updated.Comments)
	assert.Equal(t, ApprovalFlow{PM: true}, updated.ApprovalFlow)
	assert.Equal(t, 2, updated.Version)

	_, err = svc.UpdateFields(ctx, collaborator, created.ID, Input{"status": "Approved"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "nothing to update", ve.Message)

	_, err = svc.UpdateFields(ctx, leader, created.ID, Input{"justification": "x"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.UpdateFields(ctx, hr, created.ID, Input{"justification": "by hr"})
	assert.NoError(t, err)
	_, err = svc.UpdateFields(ctx, admin, created.ID, Input{"justification": "by admin"})
	assert.NoError(t, err)

	_, err = svc.UpdateFields(ctx, collaborator, "", Input{"justification": "x"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.UpdateFields(ctx, collaborator, "missing", Input{"justification": "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Act(ctx, leader, created.ID, "reject", "no")
	require.NoError(t, err)
	_, err = svc.UpdateFields(ctx, collaborator, created.ID, Input{"justification": "late"})
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestActOwnerNeverActs(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	selfLeader := auth.Principal{ID: "u-leader-self", Role: auth.RoleLeader}
	created, err := svc.Create(ctx, selfLeader, vacationInput())
	require.NoError(t, err)

	_, err = svc.Act(ctx, selfLeader, created.ID, "approve", "")
	assert.ErrorIs(t, err, ErrForbidden)
	stored, _ := store.GetByID(ctx, created.ID)
	assert.Equal(t, StatusPendingLeader, stored.Status)
	assert.Equal(t, 1, stored.Version)
}

func TestActOnTerminalRequestLeavesRecordUnchanged(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	created, err := svc.Create(ctx, collaborator, vacationInput())
	require.NoError(t, err)
	rejected, err := svc.Act(ctx, leader, created.ID, "reject", "overlaps release")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)

	for _, p := range []auth.Principal{pm, leader, hr, admin} {
		for _, action := range []string{"approve", "reject"} {
			_, err := svc.Act(ctx, p, created.ID, action, "second thoughts")
			assert.ErrorIs(t, err, ErrStateConflict, "%s %s", p.Role, action)
		}
	}

	stored, err := store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, rejected.Status, stored.Status)
	assert.Equal(t, rejected.ApprovalFlow, stored.ApprovalFlow)
	assert.Equal(t, rejected.Comments, stored.Comments)
	assert.Equal(t, rejected.Version, stored.Version)
}

func TestActValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	created, err := svc.Create(ctx, collaborator, vacationInput())
	require.NoError(t, err)

	_, err = svc.Act(ctx, leader, "", "", "")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Issues, 2)

	_, err = svc.Act(ctx, leader, created.ID, "escalate", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Act(ctx, leader, "missing", "approve", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Act(ctx, admin, created.ID, "approve", "")
	assert.ErrorIs(t, err, ErrForbidden, "admin has no bypass")
}

func TestEndToEndWorkflow(t *testing.T) {
	svc, store, n := newTestService()
	ctx := context.Background()
	auditor := &recordingAuditor{}
	svc.Auditor = auditor

	created, err := svc.Create(ctx, collaborator, vacationInput())
	require.NoError(t, err)
	svc.Wait()

	step, err := svc.Act(ctx, leader, created.ID, "approve", "too busy")
	require.NoError(t, err)
	svc.Wait()
	assert.Equal(t, StatusPendingHR, step.Status)
	assert.Equal(t, ApprovalFlow{PM: true, Leader: true}, step.ApprovalFlow)
	assert.Equal(t, "too busy", step.Comments)

	_, err = svc.Act(ctx, leader, created.ID, "approve", "again")
	assert.ErrorIs(t, err, ErrForbidden)

	step, err = svc.Act(ctx, hr, created.ID, "approve", "ok now")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, step.Status)
	assert.Equal(t, ApprovalFlow{PM: true, Leader: true, HR: true}, step.ApprovalFlow)
	assert.Equal(t, "too busy | ok now", step.Comments)

	_, err = svc.Act(ctx, pm, created.ID, "approve", "")
	assert.ErrorIs(t, err, ErrStateConflict)
	stored, err := store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)
	assert.Equal(t, step.ApprovalFlow, stored.ApprovalFlow)
	assert.Equal(t, step.Comments, stored.Comments)
	assert.Equal(t, step.Version, stored.Version)

	svc.Wait()
	kinds := make([]string, 0, len(n.events))
	for _, e := range n.events {
		kinds = append(kinds, e.kind)
	}
	assert.Equal(t, []string{"submitted", "advanced", "decided"}, kinds)
	assert.Equal(t, []string{hr.ID}, n.events[1].recipients)
	assert.Equal(t, []string{collaborator.ID}, n.events[2].recipients)
	assert.Equal(t, []string{AuditActionCreate, AuditActionApprove, AuditActionApprove}, auditor.actions, "audit failures are swallowed")
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	svc, _, n := newTestService()
	n.err = errors.New("smtp down")
	created, err := svc.Create(context.Background(), collaborator, vacationInput())
	require.NoError(t, err)
	_, err = svc.Act(context.Background(), leader, created.ID, "reject", "")
	require.NoError(t, err)
	svc.Wait()
	assert.Len(t, n.events, 2)
}

type blockingNotifier struct {
	release chan struct{}
	done    chan error
}

func (b *blockingNotifier) wait(ctx context.Context) error {
	select {
	case <-b.release:
		b.done <- nil
	case <-ctx.Done():
		b.done <- ctx.Err()
	}
	return nil
}

func (b *blockingNotifier) RequestSubmitted(ctx context.Context, req LeaveRequest, recipients []string) error {
	return b.wait(ctx)
}

func (b *blockingNotifier) RequestAdvanced(ctx context.Context, req LeaveRequest, recipients []string) error {
	return b.wait(ctx)
}

func (b *blockingNotifier) RequestDecided(ctx context.Context, req LeaveRequest) error {
	return b.wait(ctx)
}

func TestStalledNotifierDoesNotBlockWorkflow(t *testing.T) {
	svc, _, _ := newTestService()
	stalled := &blockingNotifier{release: make(chan struct{}), done: make(chan error, 4)}
	svc.Notifier = stalled

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		req LeaveRequest
		err error
	}
	results := make(chan result, 1)
	go func() {
		created, err := svc.Create(ctx, collaborator, vacationInput())
		if err != nil {
			results <- result{err: err}
			return
		}
		req, err := svc.Act(ctx, leader, created.ID, "approve", "")
		results <- result{req, err}
	}()

	select {
	case r := <-results:
		require.NoError(t, r.err)
		assert.Equal(t, StatusPendingHR, r.req.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("create and approve waited on the notifier")
	}

	// Ending the request must not cancel dispatches already handed off.
	cancel()
	close(stalled.release)
	svc.Wait()
	require.Len(t, stalled.done, 2)
	assert.NoError(t, <-stalled.done)
	assert.NoError(t, <-stalled.done)
}

func TestNotifyTimeoutBoundsDispatch(t *testing.T) {
	svc, _, _ := newTestService()
	stalled := &blockingNotifier{release: make(chan struct{}), done: make(chan error, 1)}
	svc.Notifier = stalled
	svc.NotifyTimeout = 20 * time.Millisecond

	_, err := svc.Create(context.Background(), collaborator, vacationInput())
	require.NoError(t, err)
	svc.Wait()
	assert.ErrorIs(t, <-stalled.done, context.DeadlineExceeded)
}

func TestConcurrentWriteConflict(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	created, err := svc.Create(ctx, collaborator, vacationInput())
	require.NoError(t, err)

	// The owner's edit lands between the leader's read and write.
	store.beforeWrite = func() {
		_, err := svc.UpdateFields(ctx, collaborator, created.ID, Input{"justification": "changed"})
		require.NoError(t, err)
	}
	_, err = svc.Act(ctx, leader, created.ID, "approve", "")
	assert.ErrorIs(t, err, ErrStateConflict)

	stored, _ := store.GetByID(ctx, created.ID)
	assert.Equal(t, StatusPendingLeader, stored.Status)
	assert.Equal(t, "changed", stored.Justification)

	_, err = svc.Act(ctx, leader, created.ID, "approve", "")
	assert.NoError(t, err, "retry after reload succeeds")
}

func TestConcurrentApprovalsSingleWinner(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	created, err := svc.Create(ctx, collaborator, vacationInput())
	require.NoError(t, err)

	leaders := []auth.Principal{leader, {ID: "u-leader-2", Role: auth.RoleLeader}, {ID: "u-leader-3", Role: auth.RoleLeader}}
	var wg sync.WaitGroup
	errs := make([]error, len(leaders))
	for i, p := range leaders {
		wg.Add(1)
		go func(i int, p auth.Principal) {
			defer wg.Done()
			_, errs[i] = svc.Act(ctx, p, created.ID, "approve", p.ID)
		}(i, p)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, errors.Is(err, ErrStateConflict) || errors.Is(err, ErrForbidden), "unexpected error %v", err)
	}
	assert.Equal(t, 1, wins)
}
