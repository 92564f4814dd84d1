package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/furnishly-backend/pkg/config"
)

const refreshTokenBytes = 32

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	errBlankAccessID       = errors.New("access id is required")
)

// Store is the Redis surface sessions live on. *redis.Client satisfies it.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker is what the auth middleware needs.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// record is stored under the access token's jti. Only a digest of the
// refresh token is kept, so a Redis dump cannot be replayed.
type record struct {
	UserID    uuid.UUID `json:"uid"`
	TokenHash string    `json:"rth"`
	IssuedAt  int64     `json:"iat"`
}

func (r record) encode() (string, error) {
	raw, err := json.Marshal(r)
	return string(raw), err
}

// Manager issues, rotates and revokes refresh sessions. Each access token
// (by jti) has at most one; rotating consumes it.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager requires refresh sessions to outlive the access tokens they back.
func NewManager(store Store, cfg config.JWTConfig) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	ttl := cfg.RefreshTokenTTL()
	accessTTL := time.Duration(cfg.ExpirationMinutes) * time.Minute
	if ttl <= 0 {
		return nil, errors.New("refresh token ttl must be positive")
	}
	if ttl <= accessTTL {
		return nil, fmt.Errorf("refresh token ttl (%s) must exceed access token ttl (%s)", ttl, accessTTL)
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// Generate returns a new opaque refresh token bound to accessID and userID.
func (m *Manager) Generate(ctx context.Context, accessID string, userID uuid.UUID) (string, error) {
	if strings.TrimSpace(accessID) == "" {
		return "", errBlankAccessID
	}
	if userID == uuid.Nil {
		return "", errors.New("user id is required")
	}

	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	value, err := record{UserID: userID, TokenHash: digest(token), IssuedAt: m.clock().Unix()}.encode()
	if err != nil {
		return "", err
	}
	if err := m.store.Set(ctx, m.store.AccessSessionKey(accessID), value, m.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Rotate trades the refresh token bound to oldAccessID for a new access id
// and refresh token. Of two concurrent rotations with the same token only one
// succeeds. Every mismatch reports ErrInvalidRefreshToken.
func (m *Manager) Rotate(ctx context.Context, oldAccessID string, userID uuid.UUID, provided string) (string, string, error) {
	if strings.TrimSpace(oldAccessID) == "" || strings.TrimSpace(provided) == "" || userID == uuid.Nil {
		return "", "", ErrInvalidRefreshToken
	}

	key := m.store.AccessSessionKey(oldAccessID)
	stored, err := m.store.Get(ctx, key)
	if errors.Is(err, redislib.Nil) {
		return "", "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", "", err
	}

	var rec record
	if err := json.Unmarshal([]byte(stored), &rec); err != nil {
		return "", "", ErrInvalidRefreshToken
	}
	tokenMatches := subtle.ConstantTimeCompare([]byte(rec.TokenHash), []byte(digest(provided))) == 1
	if !tokenMatches || rec.UserID != userID {
		return "", "", ErrInvalidRefreshToken
	}

	// compare-and-delete makes the token single use
	consumed, err := m.store.DeleteIfValue(ctx, key, stored)
	if err != nil {
		return "", "", err
	}
	if !consumed {
		return "", "", ErrInvalidRefreshToken
	}

	next := NewAccessID()
	token, err := m.Generate(ctx, next, userID)
	if err != nil {
		return "", "", err
	}
	return next, token, nil
}

// Revoke is idempotent.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return errBlankAccessID
	}
	return m.store.Del(ctx, m.store.AccessSessionKey(accessID))
}

func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, errBlankAccessID
	}
	_, err := m.store.Get(ctx, m.store.AccessSessionKey(accessID))
	switch {
	case errors.Is(err, redislib.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (m *Manager) clock() time.Time {
	if m.now == nil {
		return time.Now()
	}
	return m.now()
}

// NewAccessID mints the jti shared by the access token and its session key.
func NewAccessID() string {
	return uuid.NewString()
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
