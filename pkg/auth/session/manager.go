// Package session keeps back-office refresh sessions in Redis. A session is
// keyed by the jti of the access token it was issued with, so ending the
// session also revokes that access token.
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

	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
)

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	errNoAccessID          = errors.New("access id is required")
)

type store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	GetDel(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// Owner is the back-office account a session was issued to.
type Owner struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
}

// stored is the Redis value. The refresh token itself is never persisted.
type stored struct {
	Digest   []byte    `json:"digest"`
	Owner    Owner     `json:"owner"`
	IssuedAt time.Time `json:"issued_at"`
}

type Rotation struct {
	AccessID     string
	RefreshToken string
	Owner        Owner
}

// AccessSessionChecker is what the auth middleware needs.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

type Manager struct {
	store store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager takes the refresh lifetime from cfg; it must outlive the access
// token or refresh would never be reachable.
func NewManager(client store, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := cfg.RefreshTokenTTL()
	access := time.Duration(cfg.ExpirationMinutes) * time.Minute
	if ttl <= access {
		return nil, fmt.Errorf("refresh ttl %s must exceed access ttl %s", ttl, access)
	}
	return &Manager{store: client, ttl: ttl, now: time.Now}, nil
}

// NewAccessID returns a fresh jti.
func NewAccessID() string {
	return uuid.NewString()
}

// Generate opens a session for owner under accessID and returns the refresh
// token to hand to the client.
func (m *Manager) Generate(ctx context.Context, accessID string, owner Owner) (string, error) {
	if strings.TrimSpace(accessID) == "" {
		return "", errNoAccessID
	}
	if owner.UserID == uuid.Nil {
		return "", errors.New("session owner is required")
	}
	return m.open(ctx, accessID, owner)
}

// Rotate consumes the session under oldAccessID and opens a new one for the
// same owner. The old session is taken atomically, so a token can be rotated
// once; a wrong token still ends the session it was presented for.
func (m *Manager) Rotate(ctx context.Context, oldAccessID, refreshToken string) (*Rotation, error) {
	if strings.TrimSpace(oldAccessID) == "" || refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	raw, err := m.store.GetDel(ctx, m.store.AccessSessionKey(oldAccessID))
	if errors.Is(err, redislib.Nil) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var current stored
	if err := json.Unmarshal([]byte(raw), &current); err != nil || len(current.Digest) == 0 {
		return nil, ErrInvalidRefreshToken
	}
	if subtle.ConstantTimeCompare(current.Digest, digest(refreshToken)) != 1 {
		return nil, ErrInvalidRefreshToken
	}

	accessID := NewAccessID()
	token, err := m.open(ctx, accessID, current.Owner)
	if err != nil {
		return nil, err
	}
	return &Rotation{AccessID: accessID, RefreshToken: token, Owner: current.Owner}, nil
}

// Revoke ends the session; revoking an unknown id is not an error.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return errNoAccessID
	}
	return m.store.Del(ctx, m.store.AccessSessionKey(accessID))
}

func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, errNoAccessID
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

func (m *Manager) open(ctx context.Context, accessID string, owner Owner) (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(secret)

	value, err := json.Marshal(stored{Digest: digest(token), Owner: owner, IssuedAt: m.now().UTC()})
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	if err := m.store.Set(ctx, m.store.AccessSessionKey(accessID), string(value), m.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

func digest(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}
