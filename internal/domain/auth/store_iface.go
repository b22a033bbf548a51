package auth

import (
	"context"
	"time"
)

type StoreAPI interface {
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, userID string) (User, error)
	CreateUser(ctx context.Context, email, name, role, passwordHash string) (string, error)
	UpdateLastLogin(ctx context.Context, userID string) error
	UpdatePassword(ctx context.Context, userID, hash string) error
	UpdateMFASecret(ctx context.Context, userID string, secretEnc []byte) error
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error

	CountTokensSince(ctx context.Context, kind TokenKind, userID string, since time.Time) (int, error)
	CreateToken(ctx context.Context, kind TokenKind, userID, tokenHash string, expires time.Time) error
	TokenByHash(ctx context.Context, kind TokenKind, tokenHash string) (TokenRecord, error)
	MarkTokenUsed(ctx context.Context, kind TokenKind, tokenID string) error
	DeleteExpiredTokens(ctx context.Context, kind TokenKind, before time.Time) (int64, error)
}
