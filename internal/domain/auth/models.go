package auth

import "time"

// Principal is the resolved identity behind a bearer token.
type Principal struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	HasProject bool   `json:"hasProject"`
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	MFAEnabled   bool
	MFASecretEnc []byte
	Principal    Principal
}

type TokenKind string

const (
	TokenMagicLink     TokenKind = "magic_link"
	TokenPasswordReset TokenKind = "password_reset"
)

type TokenRecord struct {
	ID        string
	UserID    string
	Email     string
	ExpiresAt time.Time
	Used      bool
}

// Session is what a successful login or magic link verification hands back.
type Session struct {
	Token     string    `json:"token"`
	Principal Principal `json:"user"`
}

type CleanupResult struct {
	MagicLinkTokens     int64 `json:"magicLinkTokens"`
	PasswordResetTokens int64 `json:"passwordResetTokens"`
}
