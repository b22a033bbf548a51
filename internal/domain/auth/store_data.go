package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const userColumns = `
    u.id, u.email, COALESCE(u.password_hash, ''), u.mfa_enabled, u.mfa_secret_enc,
    COALESCE(p.name, ''), COALESCE(p.role, ''), COALESCE(p.has_project, false)
  `

func tokenTable(kind TokenKind) (string, error) {
	switch kind {
	case TokenMagicLink:
		return "magic_link_tokens", nil
	case TokenPasswordReset:
		return "password_reset_tokens", nil
	default:
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	var name, role string
	var hasProject bool
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.MFAEnabled, &u.MFASecretEnc, &name, &role, &hasProject); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	u.Principal = Principal{
		ID:         u.ID,
		Email:      u.Email,
		Name:       name,
		Role:       NormalizeRole(role),
		HasProject: hasProject,
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.DB.QueryRow(ctx, `
    SELECT `+userColumns+`
    FROM users u
    LEFT JOIN profiles p ON p.id = u.id
    WHERE u.email = $1
  `, email))
}

func (s *Store) UserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.DB.QueryRow(ctx, `
    SELECT `+userColumns+`
    FROM users u
    LEFT JOIN profiles p ON p.id = u.id
    WHERE u.id = $1
  `, userID))
}

func (s *Store) CreateUser(ctx context.Context, email, name, role, passwordHash string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    WITH u AS (
      INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id
    )
    INSERT INTO profiles (id, name, role)
    SELECT id, $3, $4 FROM u
    RETURNING id
  `, email, nullIfEmpty(passwordHash), name, role).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET last_login = now() WHERE id = $1", userID)
	return err
}

func (s *Store) UpdatePassword(ctx context.Context, userID, hash string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2", hash, userID)
	return err
}

func (s *Store) UpdateMFASecret(ctx context.Context, userID string, secretEnc []byte) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE users SET mfa_secret_enc = $1, mfa_enabled = false WHERE id = $2
  `, secretEnc, userID)
	return err
}

func (s *Store) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET mfa_enabled = $1 WHERE id = $2", enabled, userID)
	return err
}

func (s *Store) CountTokensSince(ctx context.Context, kind TokenKind, userID string, since time.Time) (int, error) {
	table, err := tokenTable(kind)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM `+table+`
    WHERE user_id = $1 AND created_at > $2
  `, userID, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CreateToken(ctx context.Context, kind TokenKind, userID, tokenHash string, expires time.Time) error {
	table, err := tokenTable(kind)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO `+table+` (user_id, token, expires_at)
    VALUES ($1, $2, $3)
  `, userID, tokenHash, expires)
	return err
}

func (s *Store) TokenByHash(ctx context.Context, kind TokenKind, tokenHash string) (TokenRecord, error) {
	table, err := tokenTable(kind)
	if err != nil {
		return TokenRecord{}, err
	}
	var rec TokenRecord
	err = s.DB.QueryRow(ctx, `
    SELECT t.id, t.user_id, u.email, t.expires_at, t.used
    FROM `+table+` t
    JOIN users u ON u.id = t.user_id
    WHERE t.token = $1
  `, tokenHash).Scan(&rec.ID, &rec.UserID, &rec.Email, &rec.ExpiresAt, &rec.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return TokenRecord{}, ErrTokenNotFound
	}
	if err != nil {
		return TokenRecord{}, err
	}
	return rec, nil
}

// MarkTokenUsed flips an unused token to used. A token that is already used,
// including one consumed by a concurrent caller, yields ErrTokenUsed.
func (s *Store) MarkTokenUsed(ctx context.Context, kind TokenKind, tokenID string) error {
	table, err := tokenTable(kind)
	if err != nil {
		return err
	}
	tag, err := s.DB.Exec(ctx, "UPDATE "+table+" SET used = true WHERE id = $1 AND used = false", tokenID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTokenUsed
	}
	return nil
}

// DeleteExpiredTokens removes tokens that expired before the cutoff.
func (s *Store) DeleteExpiredTokens(ctx context.Context, kind TokenKind, before time.Time) (int64, error) {
	table, err := tokenTable(kind)
	if err != nil {
		return 0, err
	}
	tag, err := s.DB.Exec(ctx, "DELETE FROM "+table+" WHERE expires_at < $1", before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
