package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"gopkg.in/yaml.v3"

	"leaveflow/internal/domain/auth"
	"leaveflow/internal/platform/config"
)

// SeedUser is one entry of the seed directory file.
type SeedUser struct {
	Email      string `yaml:"email"`
	Name       string `yaml:"name"`
	Role       string `yaml:"role"`
	Password   string `yaml:"password"`
	Department string `yaml:"department"`
	Position   string `yaml:"position"`
	LeaderName string `yaml:"leaderName"`
	JoinDate   string `yaml:"joinDate"`
	Balance    int    `yaml:"balance"`
	HasProject bool   `yaml:"hasProject"`
}

type seedFile struct {
	Users []SeedUser `yaml:"users"`
}

// Seed creates the bootstrap Admin account and the users listed in the seed
// file. Existing users are left untouched, so it is safe to run repeatedly.
func Seed(ctx context.Context, q Querier, cfg config.Config) error {
	if email := strings.TrimSpace(cfg.SeedAdminEmail); email != "" && cfg.SeedAdminPassword != "" {
		admin := SeedUser{Email: email, Role: auth.RoleAdmin, Password: cfg.SeedAdminPassword}
		if _, err := ensureUser(ctx, q, admin); err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
	}
	if cfg.SeedFile == "" {
		return nil
	}
	users, err := LoadSeedFile(cfg.SeedFile)
	if err != nil {
		return err
	}
	for _, u := range users {
		if _, err := ensureUser(ctx, q, u); err != nil {
			return fmt.Errorf("seed %s: %w", u.Email, err)
		}
	}
	return nil
}

func LoadSeedFile(path string) ([]SeedUser, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return parseSeed(raw)
}

func parseSeed(raw []byte) ([]SeedUser, error) {
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i := range file.Users {
		u := &file.Users[i]
		u.Email = strings.ToLower(strings.TrimSpace(u.Email))
		if u.Email == "" {
			return nil, fmt.Errorf("seed user %d: email is required", i+1)
		}
		if u.Role == "" {
			u.Role = auth.RoleCollaborator
		}
		if !auth.ValidRole(u.Role) {
			return nil, fmt.Errorf("seed user %s: unknown role %q", u.Email, u.Role)
		}
		if u.JoinDate != "" {
			if _, err := time.Parse("2006-01-02", u.JoinDate); err != nil {
				return nil, fmt.Errorf("seed user %s: joinDate must be YYYY-MM-DD", u.Email)
			}
		}
	}
	return file.Users, nil
}

// ensureUser reports whether the user was created.
func ensureUser(ctx context.Context, q Querier, u SeedUser) (bool, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	var id string
	err := q.QueryRow(ctx, "SELECT id FROM users WHERE email = $1", email).Scan(&id)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	var hash any
	if u.Password != "" {
		h, err := auth.HashPassword(u.Password)
		if err != nil {
			return false, err
		}
		hash = h
	}
	name := u.Name
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	var joinDate any
	if u.JoinDate != "" {
		joinDate = u.JoinDate
	}

	_, err = q.Exec(ctx, `
    WITH u AS (
      INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id
    )
    INSERT INTO profiles (id, name, role, department, position, leader_name, join_date, balance, has_project)
    SELECT id, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8::date, $9, $10 FROM u
  `, email, hash, name, u.Role, u.Department, u.Position, u.LeaderName, joinDate, u.Balance, u.HasProject)
	if err != nil {
		return false, err
	}
	return true, nil
}
