package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/groceryhub-backend/pkg/auth"
	"github.com/angelmondragon/groceryhub-backend/pkg/auth/session"
	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
)

var sessionJWT = config.JWTConfig{Secret: "secret", Issuer: "groceryhub", ExpirationMinutes: 10}

type fakeSessions struct {
	revoked   []string
	rotatedID string
	provided  string
	rotation  *session.Rotation
	rotateErr error
}

func (f *fakeSessions) Rotate(_ context.Context, oldAccessID, provided string) (*session.Rotation, error) {
	f.rotatedID = oldAccessID
	f.provided = provided
	return f.rotation, f.rotateErr
}

func (f *fakeSessions) Revoke(_ context.Context, accessID string) error {
	f.revoked = append(f.revoked, accessID)
	return nil
}

func staffToken(t *testing.T, userID uuid.UUID, issuedAt time.Time) (string, string) {
	t.Helper()
	jti := session.NewAccessID()
	token, err := auth.MintAccessToken(sessionJWT, issuedAt, auth.AccessTokenPayload{
		UserID: userID,
		Role:   enums.UserRoleStaff,
		JTI:    jti,
	})
	require.NoError(t, err)
	return token, jti
}

func refreshRequestFor(token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(`{"refresh_token":"old-refresh"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAuthLogoutRevokesPresentedSession(t *testing.T) {
	sessions := &fakeSessions{}
	token, jti := staffToken(t, uuid.New(), time.Now())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	AuthLogout(sessions, sessionJWT, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{jti}, sessions.revoked)
}

func TestAuthLogoutWithoutToken(t *testing.T) {
	rec := httptest.NewRecorder()
	AuthLogout(&fakeSessions{}, sessionJWT, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRefreshUsesSessionOwner(t *testing.T) {
	userID := uuid.New()
	sessions := &fakeSessions{rotation: &session.Rotation{
		AccessID:     "new-jti",
		RefreshToken: "new-refresh",
		Owner:        session.Owner{UserID: userID, Role: enums.UserRoleAdmin},
	}}
	// expired access tokens are still accepted for refresh
	token, jti := staffToken(t, userID, time.Now().Add(-time.Hour))

	rec := httptest.NewRecorder()
	AuthRefresh(sessions, sessionJWT, nil).ServeHTTP(rec, refreshRequestFor(token))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, jti, sessions.rotatedID)
	assert.Equal(t, "old-refresh", sessions.provided)

	var envelope struct {
		Data tokenPair `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "new-refresh", envelope.Data.RefreshToken)
	assert.Equal(t, "Bearer", envelope.Data.TokenType)
	assert.Equal(t, 600, envelope.Data.ExpiresIn)

	claims, err := auth.ParseAccessToken(sessionJWT, envelope.Data.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "new-jti", claims.ID)
	assert.Equal(t, enums.UserRoleAdmin, claims.Role)
}

func TestAuthRefreshRejectsInvalidToken(t *testing.T) {
	sessions := &fakeSessions{rotateErr: session.ErrInvalidRefreshToken}
	token, _ := staffToken(t, uuid.New(), time.Now())

	rec := httptest.NewRecorder()
	AuthRefresh(sessions, sessionJWT, nil).ServeHTTP(rec, refreshRequestFor(token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRefreshRejectsForeignSession(t *testing.T) {
	sessions := &fakeSessions{rotation: &session.Rotation{
		AccessID:     "new-jti",
		RefreshToken: "new-refresh",
		Owner:        session.Owner{UserID: uuid.New(), Role: enums.UserRoleStaff},
	}}
	token, _ := staffToken(t, uuid.New(), time.Now())

	rec := httptest.NewRecorder()
	AuthRefresh(sessions, sessionJWT, nil).ServeHTTP(rec, refreshRequestFor(token))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, []string{"new-jti"}, sessions.revoked)
}
