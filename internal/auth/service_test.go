package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/furnishly-backend/internal/users"
	pkgAuth "github.com/angelmondragon/furnishly-backend/pkg/auth"
	"github.com/angelmondragon/furnishly-backend/pkg/auth/session"
	"github.com/angelmondragon/furnishly-backend/pkg/config"
	"github.com/angelmondragon/furnishly-backend/pkg/db/models"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/furnishly-backend/pkg/errors"
	"github.com/angelmondragon/furnishly-backend/pkg/security"
)

var (
	testJWT = config.JWTConfig{Secret: "secret", Issuer: "furnishly", ExpirationMinutes: 15}
	testPwd = config.PasswordConfig{ArgonMemoryKB: 8192, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
)

type stubUsers struct {
	byID      map[uuid.UUID]*models.User
	createErr error
	rehashed  bool
}

func newStubUsers(list ...*models.User) *stubUsers {
	s := &stubUsers{byID: map[uuid.UUID]*models.User{}}
	for _, u := range list {
		s.byID[u.ID] = u
	}
	return s
}

func (s *stubUsers) Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	u := dto.ToModel()
	u.ID = uuid.New()
	s.byID[u.ID] = u
	return u, nil
}

func (s *stubUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range s.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUsers) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := s.byID[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUsers) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

func (s *stubUsers) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	s.rehashed = true
	s.byID[id].PasswordHash = hash
	return nil
}

type stubSessions struct {
	tokens  map[string]string
	owners  map[string]uuid.UUID
	revoked []string
}

func newStubSessions() *stubSessions {
	return &stubSessions{tokens: map[string]string{}, owners: map[string]uuid.UUID{}}
}

func (s *stubSessions) Generate(ctx context.Context, accessID string, userID uuid.UUID) (string, error) {
	token := "refresh-" + accessID
	s.tokens[accessID] = token
	s.owners[accessID] = userID
	return token, nil
}

func (s *stubSessions) Rotate(ctx context.Context, oldAccessID string, userID uuid.UUID, provided string) (string, string, error) {
	if s.tokens[oldAccessID] != provided || s.owners[oldAccessID] != userID {
		return "", "", session.ErrInvalidRefreshToken
	}
	delete(s.tokens, oldAccessID)
	id := session.NewAccessID()
	token, _ := s.Generate(ctx, id, userID)
	return id, token, nil
}

func (s *stubSessions) Revoke(ctx context.Context, accessID string) error {
	s.revoked = append(s.revoked, accessID)
	delete(s.tokens, accessID)
	return nil
}

func mustHash(t *testing.T, password string, cfg config.PasswordConfig) string {
	t.Helper()
	hash, err := security.HashPassword(password, cfg)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

func buildService(t *testing.T, repo *stubUsers, sessions *stubSessions) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		SessionManager: sessions,
		JWTConfig:      testJWT,
		PasswordConfig: testPwd,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestRegisterCreatesCustomer(t *testing.T) {
	repo := newStubUsers()
	svc := buildService(t, repo, newStubSessions())

	dto, err := svc.Register(context.Background(), RegisterRequest{Name: " Ada ", Email: " Ada@Example.com ", Password: "longenough"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if dto.Email != "ada@example.com" || dto.Name != "Ada" {
		t.Fatalf("expected normalized identity, got %+v", dto)
	}
	if dto.Role != enums.UserRoleCustomer {
		t.Fatalf("expected customer role, got %s", dto.Role)
	}

	_, err = svc.Register(context.Background(), RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "longenough"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	_, err = svc.Register(context.Background(), RegisterRequest{Name: "Bob", Email: "bob@example.com", Password: "short"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegisterMapsUniqueViolationToConflict(t *testing.T) {
	repo := newStubUsers()
	repo.createErr = errors.New("UNIQUE constraint failed: users.email")
	svc := buildService(t, repo, newStubSessions())

	_, err := svc.Register(context.Background(), RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "longenough"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestLoginIssuesTokensWithRole(t *testing.T) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        "sup@example.com",
		PasswordHash: mustHash(t, "supplier-pass", testPwd),
		Role:         enums.UserRoleSupplier,
		IsActive:     true,
	}
	sessions := newStubSessions()
	svc := buildService(t, newStubUsers(user), sessions)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: "SUP@example.com", Password: "supplier-pass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Role != enums.UserRoleSupplier || claims.UserID != user.ID {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if sessions.tokens[claims.ID] != resp.RefreshToken {
		t.Fatalf("refresh token not stored under jti")
	}
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 900 {
		t.Fatalf("unexpected token metadata %+v", resp)
	}
	if resp.User.LastLoginAt == nil {
		t.Fatalf("expected last login to be recorded")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	active := &models.User{ID: uuid.New(), Email: "a@example.com", PasswordHash: mustHash(t, "right-pass", testPwd), IsActive: true, Role: enums.UserRoleCustomer}
	inactive := &models.User{ID: uuid.New(), Email: "b@example.com", PasswordHash: mustHash(t, "right-pass", testPwd), Role: enums.UserRoleCustomer}
	svc := buildService(t, newStubUsers(active, inactive), newStubSessions())

	cases := []LoginRequest{
		{Email: "a@example.com", Password: "wrong-pass"},
		{Email: "missing@example.com", Password: "right-pass"},
		{Email: "b@example.com", Password: "right-pass"},
		{Email: "", Password: ""},
	}
	for _, req := range cases {
		if _, err := svc.Login(context.Background(), req); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			t.Fatalf("expected unauthorized for %+v, got %v", req, err)
		}
	}
}

func TestLoginRehashesWeakHashes(t *testing.T) {
	weak := testPwd
	weak.ArgonMemoryKB = 8
	user := &models.User{ID: uuid.New(), Email: "old@example.com", PasswordHash: mustHash(t, "legacy-pass", weak), IsActive: true, Role: enums.UserRoleCustomer}
	repo := newStubUsers(user)
	svc := buildService(t, repo, newStubSessions())

	if _, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: "legacy-pass"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !repo.rehashed {
		t.Fatal("expected weak hash to be upgraded")
	}
	if security.NeedsRehash(user.PasswordHash, testPwd) {
		t.Fatal("stored hash should match current parameters")
	}
}

func TestRefreshRotatesAndPicksUpRoleChanges(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "c@example.com", PasswordHash: mustHash(t, "customer-pass", testPwd), IsActive: true, Role: enums.UserRoleCustomer}
	sessions := newStubSessions()
	svc := buildService(t, newStubUsers(user), sessions)
	ctx := context.Background()

	login, err := svc.Login(ctx, LoginRequest{Email: user.Email, Password: "customer-pass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	user.Role = enums.UserRoleAdmin
	refreshed, err := svc.Refresh(ctx, login.AccessToken, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := pkgAuth.ParseAccessToken(testJWT, refreshed.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != enums.UserRoleAdmin {
		t.Fatalf("expected refreshed role admin, got %s", claims.Role)
	}

	if _, err := svc.Refresh(ctx, login.AccessToken, login.RefreshToken); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected replay to be rejected, got %v", err)
	}
	if _, err := svc.Refresh(ctx, "garbage", "x"); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected invalid token to be rejected, got %v", err)
	}

	user.IsActive = false
	if _, err := svc.Refresh(ctx, refreshed.AccessToken, refreshed.RefreshToken); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected deactivated user to be rejected, got %v", err)
	}
	if len(sessions.revoked) != 1 {
		t.Fatalf("expected rotated session to be revoked, got %v", sessions.revoked)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "d@example.com", PasswordHash: mustHash(t, "logout-pass", testPwd), IsActive: true, Role: enums.UserRoleCustomer}
	sessions := newStubSessions()
	svc := buildService(t, newStubUsers(user), sessions)

	login, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: "logout-pass"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := svc.Logout(context.Background(), login.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(sessions.tokens) != 0 {
		t.Fatalf("expected session removed, got %v", sessions.tokens)
	}
	if err := svc.Logout(context.Background(), "nope"); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
