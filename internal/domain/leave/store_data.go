package leave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const requestColumns = `
    r.id, r.user_id, COALESCE(p.name, ''), r.type, r.start_date, r.end_date, r.return_date,
    r.days_requested, r.hours_requested::float8, COALESCE(r.justification, ''),
    r.handover_tasks, r.responsible_person, COALESCE(r.mitigation_plan, ''),
    r.status, r.approval_flow, COALESCE(r.comments, ''), COALESCE(r.request_date, r.created_at::date),
    r.is_partial_day, COALESCE(to_char(r.start_time, 'HH24:MI'), ''),
    COALESCE(to_char(r.end_time, 'HH24:MI'), ''), r.version, r.created_at, r.updated_at
  `

func scanRequest(row pgx.Row) (LeaveRequest, error) {
	var req LeaveRequest
	var reqType, status string
	var flow []byte
	if err := row.Scan(
		&req.ID, &req.UserID, &req.UserName, &reqType, &req.StartDate, &req.EndDate, &req.ReturnDate,
		&req.DaysRequested, &req.HoursRequested, &req.Justification,
		&req.HandoverTasks, &req.ResponsiblePerson, &req.MitigationPlan,
		&status, &flow, &req.Comments, &req.RequestDate,
		&req.IsPartialDay, &req.StartTime, &req.EndTime, &req.Version, &req.CreatedAt, &req.UpdatedAt,
	); err != nil {
		return LeaveRequest{}, err
	}
	if t, ok := ParseType(reqType); ok {
		req.Type = t
	} else {
		req.Type = Type(reqType)
	}
	req.Status = Status(status)
	if len(flow) > 0 {
		if err := json.Unmarshal(flow, &req.ApprovalFlow); err != nil {
			return LeaveRequest{}, fmt.Errorf("decode approval_flow for %s: %w", req.ID, err)
		}
	}
	return req, nil
}

func encodeFlow(flow ApprovalFlow) (string, error) {
	payload, err := json.Marshal(flow)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// placeholder returns the SQL expression binding parameter n to column.
func placeholder(column string, n int) string {
	switch column {
	case "start_time", "end_time":
		return fmt.Sprintf("NULLIF($%d::text, '')::time", n)
	}
	return fmt.Sprintf("$%d", n)
}

func (s *Store) Insert(ctx context.Context, req LeaveRequest) (string, error) {
	flow, err := encodeFlow(req.ApprovalFlow)
	if err != nil {
		return "", err
	}
	var id string
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO vacation_requests (
      id, user_id, type, start_date, end_date, return_date, days_requested, hours_requested,
      justification, handover_tasks, responsible_person, mitigation_plan, status, approval_flow,
      comments, request_date, is_partial_day, start_time, end_time, version
    )
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::jsonb,$15,$16,$17,`+
		placeholder("start_time", 18)+`,`+placeholder("end_time", 19)+`,$20)
    RETURNING id
  `, req.ID, req.UserID, string(req.Type), req.StartDate, req.EndDate, req.ReturnDate, req.DaysRequested, req.HoursRequested,
		req.Justification, req.HandoverTasks, req.ResponsiblePerson, req.MitigationPlan, string(req.Status), flow,
		req.Comments, req.RequestDate, req.IsPartialDay, req.StartTime, req.EndTime, req.Version,
	).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// validID keeps malformed ids away from uuid columns.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) GetByID(ctx context.Context, id string) (LeaveRequest, error) {
	if !validID(id) {
		return LeaveRequest{}, ErrNotFound
	}
	req, err := scanRequest(s.DB.QueryRow(ctx, `
    SELECT `+requestColumns+`
    FROM vacation_requests r
    LEFT JOIN profiles p ON p.id = r.user_id
    WHERE r.id = $1
  `, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return LeaveRequest{}, ErrNotFound
	}
	if err != nil {
		return LeaveRequest{}, fmt.Errorf("get leave request: %w", err)
	}
	return req, nil
}

func (s *Store) List(ctx context.Context, filter ListFilter) ([]LeaveRequest, error) {
	query := `
    SELECT ` + requestColumns + `
    FROM vacation_requests r
    LEFT JOIN profiles p ON p.id = r.user_id
    WHERE 1=1
  `
	var args []any
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		query += fmt.Sprintf(" AND r.user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND r.status = $%d", len(args))
	}
	query += " ORDER BY r.created_at DESC"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list leave requests: %w", err)
	}
	defer rows.Close()

	out := make([]LeaveRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// UpdateFields writes the given columns only if the row still carries
// expectedVersion.
func (s *Store) UpdateFields(ctx context.Context, req LeaveRequest, columns []string, expectedVersion int) error {
	if len(columns) == 0 {
		return invalid("nothing to update")
	}
	if !validID(req.ID) {
		return ErrNotFound
	}
	args := []any{req.ID, expectedVersion}
	sets := make([]string, 0, len(columns)+2)
	for _, column := range columns {
		f, ok := FieldByColumn(column)
		if !ok || !f.Writable() {
			return fmt.Errorf("column %q is not writable", column)
		}
		args = append(args, f.Value(req))
		sets = append(sets, column+" = "+placeholder(column, len(args)))
	}
	sets = append(sets, "version = version + 1", "updated_at = now()")

	tag, err := s.DB.Exec(ctx, `
    UPDATE vacation_requests SET `+strings.Join(sets, ", ")+`
    WHERE id = $1 AND version = $2
  `, args...)
	if err != nil {
		return fmt.Errorf("update leave request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.versionConflict(ctx, req.ID)
	}
	return nil
}

func (s *Store) UpdateWorkflow(ctx context.Context, id string, out Outcome, expectedVersion int) error {
	if !validID(id) {
		return ErrNotFound
	}
	flow, err := encodeFlow(out.Flow)
	if err != nil {
		return err
	}
	tag, err := s.DB.Exec(ctx, `
    UPDATE vacation_requests
    SET status = $3, approval_flow = $4::jsonb, comments = $5, version = version + 1, updated_at = now()
    WHERE id = $1 AND version = $2
  `, id, expectedVersion, string(out.Status), flow, out.Comments)
	if err != nil {
		return fmt.Errorf("update leave workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.versionConflict(ctx, id)
	}
	return nil
}

// versionConflict distinguishes a vanished row from a stale version.
func (s *Store) versionConflict(ctx context.Context, id string) error {
	var exists bool
	if err := s.DB.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM vacation_requests WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("check leave request: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("%w: request was modified concurrently; reload and retry", ErrStateConflict)
}

func (s *Store) UserIDsByRole(ctx context.Context, role string) ([]string, error) {
	rows, err := s.DB.Query(ctx, "SELECT id FROM profiles WHERE role = $1", role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
