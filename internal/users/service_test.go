package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/security"
)

var fastArgon = config.PasswordConfig{ArgonMemoryKB: 8, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}

func TestProvisionCreatesThenUpdates(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	svc, err := NewService(repo, fastArgon)
	require.NoError(t, err)
	ctx := context.Background()

	user, created, err := svc.Provision(ctx, ProvisionInput{
		Email:    "  Admin@Example.COM ",
		Name:     "Store Admin",
		Password: "first-password",
		Role:     enums.UserRoleAdmin,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "admin@example.com", user.Email)
	assert.Equal(t, "admin", user.Role)
	assert.True(t, user.IsActive)

	inactive := false
	again, created, err := svc.Provision(ctx, ProvisionInput{
		Email:    "admin@example.com",
		Name:     "Renamed",
		Password: "second-password",
		IsActive: &inactive,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, "staff", again.Role)

	stored, err := repo.FindByEmail(ctx, "ADMIN@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.False(t, stored.IsActive)
	ok, err := security.VerifyPassword("second-password", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProvisionValidation(t *testing.T) {
	svc, err := NewService(NewRepository(dbtest.Open(t)), fastArgon)
	require.NoError(t, err)

	_, _, err = svc.Provision(context.Background(), ProvisionInput{Email: "nope", Password: "short", Role: "owner"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "name")
	assert.Contains(t, details, "password")
	assert.Contains(t, details, "role")
}
