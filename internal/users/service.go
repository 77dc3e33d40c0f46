package users

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/groceryhub-backend/pkg/config"
	"github.com/angelmondragon/groceryhub-backend/pkg/db"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/security"
)

const minPasswordLength = 8

// ProvisionInput describes a back-office account to create or refresh.
type ProvisionInput struct {
	Email    string
	Name     string
	Password string
	Role     enums.UserRole
	IsActive *bool
}

// Service manages back-office accounts outside the HTTP surface.
type Service struct {
	repo     *Repository
	password config.PasswordConfig
	validate *validator.Validate
}

func NewService(repo *Repository, password config.PasswordConfig) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	return &Service{repo: repo, password: password, validate: validator.New()}, nil
}

// Provision creates the user or, when the email exists, updates its name,
// role, status and password. It reports whether a row was created.
func (s *Service) Provision(ctx context.Context, input ProvisionInput) (*UserDTO, bool, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	name := strings.TrimSpace(input.Name)
	fields := map[string]string{}
	if err := s.validate.Var(email, "required,email"); err != nil {
		fields["email"] = "the email must be a valid email address"
	}
	if name == "" {
		fields["name"] = "the name field is required"
	}
	if utf8.RuneCountInString(input.Password) < minPasswordLength {
		fields["password"] = fmt.Sprintf("the password must be at least %d characters", minPasswordLength)
	}
	role := input.Role
	if role == "" {
		role = enums.UserRoleStaff
	}
	if !role.IsValid() {
		fields["role"] = "the selected role is invalid"
	}
	if len(fields) > 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "the given data was invalid").WithDetails(fields)
	}

	hash, err := security.HashPassword(input.Password, s.password)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		existing.Name = name
		existing.Role = role
		existing.IsActive = active
		existing.PasswordHash = hash
		if err := s.repo.UpdateProfile(ctx, existing); err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update user")
		}
		return FromModel(existing), false, nil
	case !db.IsNotFound(err):
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: find user")
	}

	user := &models.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		IsActive:     active,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: create user")
	}
	return FromModel(user), true, nil
}
