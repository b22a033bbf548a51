package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	MinPasswordLength = 6
	tokenWindow       = time.Hour
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

type Cipher interface {
	Configured() bool
	EncryptString(value string) ([]byte, error)
	DecryptString(value []byte) (string, error)
}

type Settings struct {
	JWTSecret          string
	JWTTTL             time.Duration
	AllowedEmailDomain string
	AllowSelfSignup    bool
	AdminEmail         string
	AppBaseURL         string
	EmailFrom          string
	MagicLinkTTL       time.Duration
	PasswordResetTTL   time.Duration
	TokensPerHour      int
	MFAIssuer          string
}

type Service struct {
	store    StoreAPI
	Mailer   Mailer
	Cipher   Cipher
	Settings Settings
	Now      func() time.Time
}

func NewService(store StoreAPI, mailer Mailer, cipher Cipher, settings Settings) *Service {
	if settings.TokensPerHour <= 0 {
		settings.TokensPerHour = 3
	}
	if settings.MagicLinkTTL <= 0 {
		settings.MagicLinkTTL = 15 * time.Minute
	}
	if settings.PasswordResetTTL <= 0 {
		settings.PasswordResetTTL = time.Hour
	}
	if settings.JWTTTL <= 0 {
		settings.JWTTTL = 7 * 24 * time.Hour
	}
	if settings.MFAIssuer == "" {
		settings.MFAIssuer = "Leaveflow"
	}
	return &Service{store: store, Mailer: mailer, Cipher: cipher, Settings: settings, Now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmailDomain reports whether email belongs to the allowed domain.
// An empty allowed domain accepts every address.
func (s *Service) ValidateEmailDomain(email string) bool {
	domain := strings.ToLower(strings.TrimSpace(s.Settings.AllowedEmailDomain))
	if domain == "" {
		return true
	}
	domain = strings.TrimPrefix(domain, "@")
	return strings.HasSuffix(normalizeEmail(email), "@"+domain)
}

func (s *Service) checkEmail(email string) (string, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || !strings.Contains(normalized, "@") {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	if !s.ValidateEmailDomain(normalized) {
		return "", ErrDomainNotAllowed
	}
	return normalized, nil
}

func (s *Service) issueSession(ctx context.Context, user User) (Session, error) {
	token, err := GenerateToken(s.Settings.JWTSecret, Claims{UserID: user.ID, Email: user.Email}, s.Settings.JWTTTL)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	if err := s.store.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("update last_login failed", "userId", user.ID, "err", err)
	}
	return Session{Token: token, Principal: user.Principal}, nil
}

func (s *Service) Login(ctx context.Context, email, password, mfaCode string) (Session, error) {
	normalized, err := s.checkEmail(email)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.UserByEmail(ctx, normalized)
	if errors.Is(err, ErrUserNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if user.PasswordHash == "" || CheckPassword(user.PasswordHash, password) != nil {
		return Session{}, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		if strings.TrimSpace(mfaCode) == "" {
			return Session{}, ErrMFARequired
		}
		secret, err := s.mfaSecret(user.MFASecretEnc)
		if err != nil || secret == "" || !totp.Validate(mfaCode, secret) {
			return Session{}, ErrMFAInvalid
		}
	}

	return s.issueSession(ctx, user)
}

// Signup creates the account when it does not exist yet and sends a magic
// link either way.
func (s *Service) Signup(ctx context.Context, email, name, password string) error {
	if !s.Settings.AllowSelfSignup {
		return ErrSignupDisabled
	}
	normalized, err := s.checkEmail(email)
	if err != nil {
		return err
	}
	if password != "" && len(password) < MinPasswordLength {
		return ErrWeakPassword
	}

	user, err := s.store.UserByEmail(ctx, normalized)
	switch {
	case errors.Is(err, ErrUserNotFound):
		displayName := strings.TrimSpace(name)
		if displayName == "" {
			displayName = strings.SplitN(normalized, "@", 2)[0]
		}
		role := RoleCollaborator
		if s.Settings.AdminEmail != "" && normalizeEmail(s.Settings.AdminEmail) == normalized {
			role = RoleAdmin
		}
		hash := ""
		if password != "" {
			hash, err = HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
		}
		id, err := s.store.CreateUser(ctx, normalized, displayName, role, hash)
		if err != nil {
			return err
		}
		slog.Info("user signed up", "userId", id, "role", role)
		user = User{ID: id, Email: normalized}
	case err != nil:
		return err
	}

	return s.issueOneTimeToken(ctx, TokenMagicLink, user)
}

// RequestMagicLink answers nil for unknown addresses so callers can always
// respond with the same message.
func (s *Service) RequestMagicLink(ctx context.Context, email string) error {
	normalized, err := s.checkEmail(email)
	if err != nil {
		return err
	}
	user, err := s.store.UserByEmail(ctx, normalized)
	if errors.Is(err, ErrUserNotFound) {
		slog.Info("magic link requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}
	return s.issueOneTimeToken(ctx, TokenMagicLink, user)
}

func (s *Service) VerifyMagicLink(ctx context.Context, token string) (Session, error) {
	rec, err := s.consumeToken(ctx, TokenMagicLink, token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.UserByID(ctx, rec.UserID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	normalized, err := s.checkEmail(email)
	if err != nil {
		return err
	}
	user, err := s.store.UserByEmail(ctx, normalized)
	if errors.Is(err, ErrUserNotFound) {
		slog.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}
	return s.issueOneTimeToken(ctx, TokenPasswordReset, user)
}

func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: token is required", ErrValidation)
	}
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	rec, err := s.consumeToken(ctx, TokenPasswordReset, token)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, rec.UserID, hash); err != nil {
		return err
	}
	slog.Info("password reset completed", "userId", rec.UserID)
	return nil
}

// Authenticate resolves a bearer credential to the current principal.
func (s *Service) Authenticate(ctx context.Context, credential string) (Principal, error) {
	claims, err := ParseToken(s.Settings.JWTSecret, credential)
	if err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	return s.Resolve(ctx, claims.UserID)
}

// Resolve loads role and project membership fresh from the profile so that
// changes apply without reissuing tokens.
func (s *Service) Resolve(ctx context.Context, userID string) (Principal, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	return user.Principal, nil
}

func (s *Service) SetupMFA(ctx context.Context, userID, accountName string) (string, string, error) {
	if s.Cipher == nil || !s.Cipher.Configured() {
		return "", "", ErrMFAUnavailable
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Settings.MFAIssuer,
		AccountName: accountName,
		Period:      30,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate mfa secret: %w", err)
	}
	encrypted, err := s.Cipher.EncryptString(key.Secret())
	if err != nil {
		return "", "", fmt.Errorf("encrypt mfa secret: %w", err)
	}
	if err := s.store.UpdateMFASecret(ctx, userID, encrypted); err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

func (s *Service) EnableMFA(ctx context.Context, userID, code string) error {
	return s.toggleMFA(ctx, userID, code, true)
}

func (s *Service) DisableMFA(ctx context.Context, userID, code string) error {
	return s.toggleMFA(ctx, userID, code, false)
}

func (s *Service) toggleMFA(ctx context.Context, userID, code string, enabled bool) error {
	if s.Cipher == nil || !s.Cipher.Configured() {
		return ErrMFAUnavailable
	}
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return err
	}
	if len(user.MFASecretEnc) == 0 {
		return ErrMFANotSetUp
	}
	secret, err := s.mfaSecret(user.MFASecretEnc)
	if err != nil {
		return ErrMFAInvalid
	}
	if !totp.Validate(code, secret) {
		return ErrMFAInvalid
	}
	return s.store.SetMFAEnabled(ctx, userID, enabled)
}

func (s *Service) mfaSecret(enc []byte) (string, error) {
	if s.Cipher != nil && s.Cipher.Configured() {
		return s.Cipher.DecryptString(enc)
	}
	return string(enc), nil
}

// CleanupExpiredTokens purges tokens once they can no longer count towards
// the hourly issuance window.
func (s *Service) CleanupExpiredTokens(ctx context.Context) (CleanupResult, error) {
	cutoff := purgeCutoff(s.Now())
	var out CleanupResult
	magic, err := s.store.DeleteExpiredTokens(ctx, TokenMagicLink, cutoff)
	if err != nil {
		return out, fmt.Errorf("cleanup magic link tokens: %w", err)
	}
	out.MagicLinkTokens = magic
	reset, err := s.store.DeleteExpiredTokens(ctx, TokenPasswordReset, cutoff)
	if err != nil {
		return out, fmt.Errorf("cleanup password reset tokens: %w", err)
	}
	out.PasswordResetTokens = reset
	return out, nil
}

// issueOneTimeToken enforces the counted hourly window, stores the hashed
// token and mails the raw one.
func (s *Service) issueOneTimeToken(ctx context.Context, kind TokenKind, user User) error {
	now := s.Now()
	count, err := s.store.CountTokensSince(ctx, kind, user.ID, now.Add(-tokenWindow))
	if err != nil {
		return err
	}
	if count >= s.Settings.TokensPerHour {
		slog.Warn("one-time token rate limit exceeded", "kind", string(kind), "userId", user.ID, "count", count)
		return ErrRateLimited
	}

	raw, err := NewOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	ttl := s.Settings.MagicLinkTTL
	if kind == TokenPasswordReset {
		ttl = s.Settings.PasswordResetTTL
	}
	if err := s.store.CreateToken(ctx, kind, user.ID, HashToken(raw), now.Add(ttl)); err != nil {
		return err
	}

	s.sendTokenEmail(ctx, kind, user.Email, raw, ttl)

	if _, err := s.store.DeleteExpiredTokens(ctx, kind, purgeCutoff(now)); err != nil {
		slog.Warn("expired token cleanup failed", "kind", string(kind), "err", err)
	}
	return nil
}

// purgeCutoff keeps expired tokens for one extra window. A token expires
// after it is created, so a row that expired before the cutoff was also
// created before it and no longer counts towards the window.
func purgeCutoff(now time.Time) time.Time {
	return now.Add(-tokenWindow)
}

func (s *Service) consumeToken(ctx context.Context, kind TokenKind, raw string) (TokenRecord, error) {
	if strings.TrimSpace(raw) == "" {
		return TokenRecord{}, fmt.Errorf("%w: token is required", ErrValidation)
	}
	rec, err := s.store.TokenByHash(ctx, kind, HashToken(strings.TrimSpace(raw)))
	if err != nil {
		return TokenRecord{}, err
	}
	// Expired rows stay until the cleanup cutoff so the issuance window
	// still sees them.
	if s.Now().After(rec.ExpiresAt) {
		return TokenRecord{}, ErrTokenExpired
	}
	if rec.Used {
		return TokenRecord{}, ErrTokenUsed
	}
	if err := s.store.MarkTokenUsed(ctx, kind, rec.ID); err != nil {
		return TokenRecord{}, err
	}
	return rec, nil
}

func (s *Service) sendTokenEmail(ctx context.Context, kind TokenKind, to, raw string, ttl time.Duration) {
	if s.Mailer == nil || to == "" {
		return
	}
	subject, body := tokenMessage(kind, strings.TrimRight(s.Settings.AppBaseURL, "/"), raw, ttl)
	if err := s.Mailer.Send(ctx, s.Settings.EmailFrom, to, subject, body); err != nil {
		slog.Warn("token email send failed", "kind", string(kind), "err", err)
	}
}

func tokenMessage(kind TokenKind, baseURL, raw string, ttl time.Duration) (string, string) {
	minutes := int(ttl.Minutes())
	if kind == TokenPasswordReset {
		link := baseURL + "/reset-password?token=" + raw
		return "Reset your password",
			fmt.Sprintf("We received a request to reset your password.\n\nOpen this link to choose a new one:\n%s\n\nThe link expires in %d minutes. If you did not ask for this, ignore this message.\n", link, minutes)
	}
	link := baseURL + "/magic?token=" + raw
	return "Your sign-in link",
		fmt.Sprintf("Use this link to sign in:\n%s\n\nThe link expires in %d minutes and can be used once.\n", link, minutes)
}
