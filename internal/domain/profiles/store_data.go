package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const profileColumns = `
    p.id, u.email, p.name, p.role, COALESCE(p.department, ''), COALESCE(p.position, ''),
    COALESCE(p.leader_name, ''), p.join_date, p.balance, p.has_project, p.created_at, p.updated_at`

var writableColumns = map[string]bool{
	"name": true, "department": true, "position": true, "leader_name": true,
	"join_date": true, "balance": true, "role": true, "has_project": true,
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.Name, &p.Role, &p.Department, &p.Position,
		&p.LeaderName, &p.JoinDate, &p.Balance, &p.HasProject, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) GetByID(ctx context.Context, id string) (Profile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Profile{}, ErrNotFound
	}
	p, err := scanProfile(s.DB.QueryRow(ctx, `
    SELECT `+profileColumns+`
    FROM profiles p
    JOIN users u ON u.id = p.id
    WHERE p.id = $1
  `, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *Store) List(ctx context.Context) ([]Profile, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+profileColumns+`
    FROM profiles p
    JOIN users u ON u.id = p.id
    ORDER BY p.name, u.email
  `)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	out := []Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Update(ctx context.Context, id string, changes []Change) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	sets := make([]string, 0, len(changes)+1)
	args := make([]any, 0, len(changes)+1)
	for _, c := range changes {
		if !writableColumns[c.Column] {
			return fmt.Errorf("update profile: column %q is not writable", c.Column)
		}
		args = append(args, c.Value)
		sets = append(sets, fmt.Sprintf("%s = $%d", c.Column, len(args)))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	tag, err := s.DB.Exec(ctx, fmt.Sprintf("UPDATE profiles SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
