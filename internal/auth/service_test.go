package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgAuth "github.com/angelmondragon/groceryhub-backend/pkg/auth"
	"github.com/angelmondragon/groceryhub-backend/pkg/auth/session"
	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/security"
)

var testJWT = config.JWTConfig{
	Secret:            "secret",
	Issuer:            "groceryhub",
	ExpirationMinutes: 30,
}

func TestServiceLoginMintsRoleAndSession(t *testing.T) {
	password := "admin-secret"
	user := &models.User{
		ID:           uuid.New(),
		Email:        "admin@example.com",
		PasswordHash: mustHashPassword(t, password),
		Name:         "Admin",
		Role:         enums.UserRoleAdmin,
		IsActive:     true,
	}
	svc, sessions, repo := buildTestService(t, user)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: "  ADMIN@example.com ", Password: password})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWT, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.Role != enums.UserRoleAdmin {
		t.Fatalf("expected admin role claim, got %s", claims.Role)
	}
	if claims.UserID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, claims.UserID)
	}
	if sessions.lastAccessID != claims.ID {
		t.Fatalf("refresh session stored under %q, jwt jti is %q", sessions.lastAccessID, claims.ID)
	}
	if sessions.lastOwner.UserID != user.ID || sessions.lastOwner.Role != user.Role {
		t.Fatalf("unexpected session owner %+v", sessions.lastOwner)
	}
	if resp.RefreshToken == "" || resp.TokenType != "Bearer" || resp.ExpiresIn != 1800 {
		t.Fatalf("unexpected token envelope %+v", resp)
	}
	if repo.lastLogin.IsZero() {
		t.Fatal("expected last login to be recorded")
	}
	if resp.User == nil || resp.User.Role != "admin" {
		t.Fatalf("unexpected user payload %+v", resp.User)
	}
}

func TestServiceLoginRejectsBadCredentials(t *testing.T) {
	password := "staff-secret"
	active := &models.User{ID: uuid.New(), Email: "staff@example.com", PasswordHash: mustHashPassword(t, password), Role: enums.UserRoleStaff, IsActive: true}
	svc, sessions, _ := buildTestService(t, active)

	cases := []LoginRequest{
		{Email: "staff@example.com", Password: "wrong"},
		{Email: "missing@example.com", Password: password},
		{Email: "", Password: password},
		{Email: "staff@example.com", Password: ""},
	}
	for _, req := range cases {
		_, err := svc.Login(context.Background(), req)
		if !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
			t.Fatalf("expected unauthorized for %q, got %v", req.Email, err)
		}
	}

	active.IsActive = false
	if _, err := svc.Login(context.Background(), LoginRequest{Email: active.Email, Password: password}); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected inactive user to be rejected, got %v", err)
	}
	if sessions.lastAccessID != "" {
		t.Fatal("no session should be created for rejected logins")
	}
}

func TestServiceMe(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "me@example.com", Name: "Me", Role: enums.UserRoleStaff, IsActive: true}
	svc, _, _ := buildTestService(t, user)

	dto, err := svc.Me(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if dto.Email != "me@example.com" {
		t.Fatalf("unexpected email %s", dto.Email)
	}

	if _, err := svc.Me(context.Background(), uuid.New()); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for unknown user, got %v", err)
	}
}

func TestServiceLoginUpgradesWeakHash(t *testing.T) {
	user := &models.User{
		ID:           uuid.New(),
		Email:        "staff@example.com",
		PasswordHash: mustHashPassword(t, "staff-secret"),
		Role:         enums.UserRoleStaff,
		IsActive:     true,
	}
	repo := &stubUserRepo{user: user}
	current := config.PasswordConfig{ArgonMemoryKB: 16, ArgonTime: 2, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		SessionManager: &stubSessionManager{},
		JWTConfig:      testJWT,
		Password:       &current,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	if _, err := svc.Login(context.Background(), LoginRequest{Email: "staff@example.com", Password: "staff-secret"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if repo.rehashedTo == "" || security.NeedsRehash(repo.rehashedTo, current) {
		t.Fatalf("expected hash upgraded to current costs, got %q", repo.rehashedTo)
	}
	ok, err := security.VerifyPassword("staff-secret", repo.rehashedTo)
	if err != nil || !ok {
		t.Fatalf("upgraded hash must still verify: %v", err)
	}
}

func buildTestService(t *testing.T, user *models.User) (Service, *stubSessionManager, *stubUserRepo) {
	t.Helper()
	repo := &stubUserRepo{user: user}
	sessions := &stubSessionManager{}
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		SessionManager: sessions,
		JWTConfig:      testJWT,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc, sessions, repo
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{
		ArgonMemoryKB:    8,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

type stubUserRepo struct {
	user       *models.User
	lastLogin  time.Time
	rehashedTo string
}

func (s *stubUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if s.user != nil && strings.EqualFold(s.user.Email, email) {
		return s.user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if s.user != nil && s.user.ID == id {
		return s.user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) UpdateLastLogin(_ context.Context, _ uuid.UUID, at time.Time) error {
	s.lastLogin = at
	return nil
}

func (s *stubUserRepo) UpdatePasswordHash(_ context.Context, _ uuid.UUID, hash string) error {
	s.rehashedTo = hash
	return nil
}

type stubSessionManager struct {
	lastAccessID string
	lastOwner    session.Owner
}

func (s *stubSessionManager) Generate(_ context.Context, accessID string, owner session.Owner) (string, error) {
	s.lastAccessID = accessID
	s.lastOwner = owner
	return "refresh-" + accessID, nil
}
