package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/snapdock/snapdock-api/internal/cache"
	appconfig "github.com/snapdock/snapdock-api/internal/config"
	"github.com/snapdock/snapdock-api/internal/constants"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/repository"
)

// Session validation failures.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLoginRateLimited   = errors.New("too many login attempts")
	ErrSessionNotFound    = errors.New("session not found")
)

// dummyHash keeps bcrypt timing flat when the account does not exist.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// SessionService manages dashboard sessions and account sign-in.
type SessionService struct {
	repos  *repository.Repositories
	cache  *cache.Store
	cfg    *appconfig.Config
	logger *slog.Logger
}

// NewSessionService creates a new session service.
func NewSessionService(repos *repository.Repositories, store *cache.Store, cfg *appconfig.Config, logger *slog.Logger) *SessionService {
	return &SessionService{
		repos:  repos,
		cache:  store,
		cfg:    cfg,
		logger: logger,
	}
}

// SessionResult carries a freshly minted session with the raw token
// and CSRF token. The raw token exists only in this return value and
// the Set-Cookie header.
type SessionResult struct {
	Session   *models.Session
	User      *models.User
	RawToken  string
	CSRFToken string
}

// Login authenticates with email and password. Attempts are rate
// limited per (ip, email); a success resets the counter.
func (s *SessionService) Login(ctx context.Context, email, password, ip, userAgent string) (*SessionResult, error) {
	limitKey := cache.LoginLimitKey(ip, email)
	result := s.cache.Allow(ctx, limitKey,
		constants.LoginLimitPoints, constants.LoginLimitWindow, constants.LoginLimitBlockout)
	if !result.Allowed {
		return nil, ErrLoginRateLimited
	}

	user, err := s.repos.User.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	// Always run the bcrypt compare so missing accounts take as long
	// as wrong passwords.
	storedHash := dummyHash
	if user != nil && user.PasswordHash != "" {
		storedHash = []byte(user.PasswordHash)
	}
	if err := bcrypt.CompareHashAndPassword(storedHash, []byte(password)); err != nil || user == nil || user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}

	s.cache.Reset(ctx, limitKey)

	if err := s.repos.User.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		s.logger.Warn("failed to record last login", "user_id", user.ID, "error", err)
	}

	return s.create(ctx, user, ip, userAgent)
}

// CreateForUser mints a session without a password check, for the
// OAuth callback path.
func (s *SessionService) CreateForUser(ctx context.Context, user *models.User, ip, userAgent string) (*SessionResult, error) {
	return s.create(ctx, user, ip, userAgent)
}

func (s *SessionService) create(ctx context.Context, user *models.User, ip, userAgent string) (*SessionResult, error) {
	rawToken, err := randomToken()
	if err != nil {
		return nil, err
	}
	csrfToken, err := randomToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		CSRFToken: csrfToken,
		UserAgent: userAgent,
		IPAddress: ip,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
		CreatedAt: now,
	}
	if err := s.repos.Session.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &SessionResult{
		Session:   session,
		User:      user,
		RawToken:  rawToken,
		CSRFToken: csrfToken,
	}, nil
}

// Validate resolves a raw session token. Expired sessions are removed
// on sight; sessions close to expiry get a sliding extension.
func (s *SessionService) Validate(ctx context.Context, rawToken string) (*models.Session, *models.User, error) {
	session, err := s.repos.Session.GetByTokenHash(ctx, hashToken(rawToken))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if session == nil {
		return nil, nil, ErrSessionNotFound
	}

	now := time.Now()
	if session.ExpiresAt.Before(now) {
		_ = s.repos.Session.Delete(ctx, session.ID)
		return nil, nil, ErrSessionNotFound
	}

	if session.ExpiresAt.Sub(now) < s.cfg.SessionExtendIn {
		extended := now.Add(s.cfg.SessionTTL)
		if err := s.repos.Session.ExtendExpiry(ctx, session.ID, extended); err != nil {
			s.logger.Warn("failed to extend session", "session_id", session.ID, "error", err)
		} else {
			session.ExpiresAt = extended
		}
	}

	user, err := s.repos.User.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, nil, ErrSessionNotFound
	}

	return session, user, nil
}

// Logout removes the session for a raw token. Unknown tokens are a
// silent no-op.
func (s *SessionService) Logout(ctx context.Context, rawToken string) error {
	session, err := s.repos.Session.GetByTokenHash(ctx, hashToken(rawToken))
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	if session == nil {
		return nil
	}
	return s.repos.Session.Delete(ctx, session.ID)
}

// ListSessions returns the user's active sessions.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	return s.repos.Session.GetByUserID(ctx, userID)
}

// RevokeSession deletes one of the user's sessions by id.
func (s *SessionService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	deleted, err := s.repos.Session.DeleteByIDAndUser(ctx, sessionID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if !deleted {
		return ErrSessionNotFound
	}
	return nil
}

// OAuthProfile is the subset of an identity-provider profile we keep.
type OAuthProfile struct {
	Provider   string
	ExternalID string
	Email      string
	Name       string
	AvatarURL  string
}

// ResolveOAuthProfile maps a provider profile to a local user:
// an existing link wins, then an email match gets a new link, and a
// brand-new identity provisions a FREE tenant with its first user.
func (s *SessionService) ResolveOAuthProfile(ctx context.Context, profile OAuthProfile) (*models.User, error) {
	user, err := s.repos.User.GetByOAuth(ctx, profile.Provider, profile.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up oauth link: %w", err)
	}
	if user != nil {
		return user, nil
	}

	now := time.Now()

	user, err = s.repos.User.GetByEmail(ctx, profile.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if user != nil {
		link := &models.OAuthLink{
			ID:         uuid.NewString(),
			UserID:     user.ID,
			Provider:   profile.Provider,
			ExternalID: profile.ExternalID,
			CreatedAt:  now,
		}
		if err := s.repos.User.CreateOAuthLink(ctx, link); err != nil {
			return nil, fmt.Errorf("failed to link oauth identity: %w", err)
		}
		return user, nil
	}

	limits := constants.LimitsForTier(constants.TierFree)
	tenant := &models.Tenant{
		ID:             uuid.NewString(),
		Email:          profile.Email,
		Tier:           models.TierFree,
		MonthlyCredits: limits.MonthlyCredits,
		LastResetAt:    now,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	user = &models.User{
		ID:          uuid.NewString(),
		TenantID:    tenant.ID,
		Email:       profile.Email,
		DisplayName: profile.Name,
		AvatarURL:   profile.AvatarURL,
		CreatedAt:   now,
	}
	link := &models.OAuthLink{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Provider:   profile.Provider,
		ExternalID: profile.ExternalID,
		CreatedAt:  now,
	}
	if err := s.repos.User.CreateWithTenant(ctx, tenant, user, link); err != nil {
		return nil, fmt.Errorf("failed to provision account: %w", err)
	}

	s.logger.Info("provisioned new account",
		"tenant_id", tenant.ID,
		"provider", profile.Provider,
	)
	return user, nil
}

// CleanupExpired removes expired sessions. Run periodically.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repos.Session.DeleteExpired(ctx, time.Now())
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
