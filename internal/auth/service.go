package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/furnishly-backend/internal/users"
	pkgAuth "github.com/angelmondragon/furnishly-backend/pkg/auth"
	"github.com/angelmondragon/furnishly-backend/pkg/auth/session"
	"github.com/angelmondragon/furnishly-backend/pkg/config"
	"github.com/angelmondragon/furnishly-backend/pkg/db"
	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
	"github.com/angelmondragon/furnishly-backend/pkg/logger"
	"github.com/angelmondragon/furnishly-backend/pkg/security"
)

const minPasswordLength = 8

// badCredentials is returned for every login failure so accounts cannot be probed.
func badCredentials() error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
}

func emailTaken() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error)
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context, accessToken string) error
}

type accountStore interface {
	Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string, userID uuid.UUID) (string, error)
	Rotate(ctx context.Context, oldAccessID string, userID uuid.UUID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

type ServiceParams struct {
	UserRepo       accountStore
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	Logger         *logger.Logger
	Now            func() time.Time
}

type service struct {
	ServiceParams
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.UserRepo == nil:
		return nil, errors.New("user repository is required")
	case params.SessionManager == nil:
		return nil, errors.New("session manager is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{ServiceParams: params}, nil
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*users.UserDTO, error) {
	email, name := normalizeEmail(req.Email), strings.TrimSpace(req.Name)
	if email == "" || name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name and email are required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "password must be at least %d characters", minPasswordLength)
	}

	switch _, err := s.UserRepo.FindByEmail(ctx, email); {
	case err == nil:
		return nil, emailTaken()
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check user email")
	}

	hash, err := security.HashPassword(req.Password, s.PasswordConfig)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	// the unique index still decides a race between two registrations
	created, err := s.UserRepo.Create(ctx, users.CreateUserDTO{Email: email, PasswordHash: hash, Name: name})
	switch {
	case db.IsUniqueViolation(err, ""):
		return nil, emailTaken()
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}

	s.Logger.Info(s.Logger.WithUserID(ctx, created.ID.String()), "auth.registered")
	return users.FromModel(created), nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	account, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	at := s.Now().UTC()
	if err := s.UserRepo.UpdateLastLogin(ctx, account.ID, at); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update last login")
	}
	account.LastLoginAt = &at

	if security.NeedsRehash(account.PasswordHash, s.PasswordConfig) {
		s.upgradeHash(ctx, account.ID, req.Password)
	}

	accessID := session.NewAccessID()
	refresh, err := s.SessionManager.Generate(ctx, accessID, account.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refresh token")
	}
	return s.issue(at, account, accessID, refresh)
}

// Refresh rotates the session behind a possibly expired access token. The
// account is reloaded so a role change or deactivation applies immediately.
func (s *service) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenResponse, error) {
	claims, err := s.sessionClaims(accessToken)
	if err != nil {
		return nil, err
	}

	accessID, refresh, err := s.SessionManager.Rotate(ctx, claims.ID, claims.UserID, refreshToken)
	switch {
	case errors.Is(err, session.ErrInvalidRefreshToken):
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}

	account, err := s.UserRepo.FindByID(ctx, claims.UserID)
	if err == nil && account.IsActive {
		return s.issue(s.Now().UTC(), account, accessID, refresh)
	}

	// the new session must not outlive a rejected refresh
	_ = s.SessionManager.Revoke(ctx, accessID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return nil, badCredentials()
}

func (s *service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.sessionClaims(accessToken)
	if err != nil {
		return err
	}
	if err := s.SessionManager.Revoke(ctx, claims.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

// sessionClaims accepts expired tokens; the signature and issuer still have to hold.
func (s *service) sessionClaims(accessToken string) (*pkgAuth.AccessTokenClaims, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.JWTConfig, accessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	return claims, nil
}

func (s *service) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, badCredentials()
	}

	account, err := s.UserRepo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, badCredentials()
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}

	ok, err := security.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok || !account.IsActive {
		return nil, badCredentials()
	}
	return account, nil
}

// upgradeHash is best effort: the login already succeeded.
func (s *service) upgradeHash(ctx context.Context, userID uuid.UUID, password string) {
	hash, err := security.HashPassword(password, s.PasswordConfig)
	if err == nil {
		err = s.UserRepo.UpdatePasswordHash(ctx, userID, hash)
	}
	if err != nil {
		ctx = s.Logger.WithField(s.Logger.WithUserID(ctx, userID.String()), "error", err.Error())
		s.Logger.Warn(ctx, "auth.rehash_failed")
	}
}

func (s *service) issue(now time.Time, account *models.User, accessID, refresh string) (*TokenResponse, error) {
	access, err := pkgAuth.MintAccessToken(s.JWTConfig, now, pkgAuth.AccessTokenPayload{
		UserID: account.ID,
		Email:  account.Email,
		Role:   account.Role,
		JTI:    accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.JWTConfig.ExpirationMinutes * 60,
		User:         users.FromModel(account),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
