package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/furnishly-backend/pkg/auth"
	"github.com/angelmondragon/furnishly-backend/pkg/auth/session"
	"github.com/angelmondragon/furnishly-backend/pkg/config"
	"github.com/angelmondragon/furnishly-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "test-secret", Issuer: "furnishly-test", ExpirationMinutes: 60}

type sessionLookup struct {
	live bool
	err  error
}

func (s sessionLookup) HasSession(context.Context, string) (bool, error) {
	return s.live, s.err
}

func signToken(t *testing.T, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{
		UserID: userID,
		Email:  "buyer@example.com",
		Role:   role,
		JTI:    session.NewAccessID(),
	})
	require.NoError(t, err)
	return token
}

func TestAuthOutcomes(t *testing.T) {
	valid := signToken(t, uuid.New(), enums.UserRoleCustomer)
	cases := map[string]struct {
		header   string
		sessions sessionLookup
		want     int
	}{
		"no header":          {"", sessionLookup{live: true}, http.StatusUnauthorized},
		"garbage token":      {"Bearer not-a-jwt", sessionLookup{live: true}, http.StatusUnauthorized},
		"basic scheme":       {"Basic dXNlcjpwdw==", sessionLookup{live: true}, http.StatusUnauthorized},
		"bearer token":       {"Bearer " + valid, sessionLookup{live: true}, http.StatusOK},
		"lowercase scheme":   {"bearer " + valid, sessionLookup{live: true}, http.StatusOK},
		"bare token":         {valid, sessionLookup{live: true}, http.StatusOK},
		"revoked session":    {"Bearer " + valid, sessionLookup{live: false}, http.StatusUnauthorized},
		"session store down": {"Bearer " + valid, sessionLookup{err: errors.New("redis down")}, http.StatusServiceUnavailable},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := Auth(testJWT, tc.sessions, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAuthPopulatesIdentity(t *testing.T) {
	userID := uuid.New()
	var gotID uuid.UUID
	var gotRole enums.UserRole
	h := Auth(testJWT, sessionLookup{live: true}, nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotID, _ = UserUUIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/supplier/products", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, userID, enums.UserRoleSupplier))
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, userID, gotID)
	assert.Equal(t, enums.UserRoleSupplier, gotRole)
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(nil, enums.UserRoleSupplier, enums.UserRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for role, want := range map[enums.UserRole]int{
		enums.UserRoleAdmin:    http.StatusNoContent,
		enums.UserRoleSupplier: http.StatusNoContent,
		enums.UserRoleCustomer: http.StatusForbidden,
		"":                     http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/products", nil)
		if role != "" {
			req = req.WithContext(WithRole(req.Context(), role))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, "role %q", role)
	}
}
