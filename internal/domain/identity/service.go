package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/pkg/apperrors"
)

const invalidCredentials = "invalid login or password"

type Service struct {
	users  UserRepository
	tokens *auth.TokenIssuer
}

func NewService(users UserRepository, tokens *auth.TokenIssuer) *Service {
	return &Service{users: users, tokens: tokens}
}

// Register creates an account on behalf of the caller in ctx. Anyone may
// create a user account; admin and doctor accounts need an admin caller.
func (s *Service) Register(ctx context.Context, login, password, role string) (*User, error) {
	if auth.ValidRoles[role] && role != auth.RoleUser && !auth.IsAdmin(ctx) {
		return nil, apperrors.NewForbiddenError("only an admin may create " + role + " accounts")
	}
	return s.CreateUser(ctx, login, password, role)
}

// CreateUser creates an account without a caller check. It backs Register
// and the bootstrap CLI.
func (s *Service) CreateUser(ctx context.Context, login, password, role string) (*User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, apperrors.NewValidationError("login is required")
	}
	if password == "" {
		return nil, apperrors.NewValidationError("password is required")
	}
	if !auth.ValidRoles[role] {
		return nil, apperrors.NewValidationError("role must be one of: admin, doctor, user")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperrors.NewInternalError("hash password", err)
	}
	u := &User{Login: login, PasswordHash: hash, Role: role}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate checks credentials and issues a bearer token. Unknown logins
// and wrong passwords produce the same error.
func (s *Service) Authenticate(ctx context.Context, login, password string) (*LoginResult, error) {
	u, err := s.users.GetByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewUnauthorizedError(invalidCredentials)
		}
		return nil, err
	}

	ok, err := auth.CheckPassword(u.PasswordHash, password)
	if err != nil {
		return nil, apperrors.NewInternalError("verify password", err)
	}
	if !ok {
		return nil, apperrors.NewUnauthorizedError(invalidCredentials)
	}

	token, expiresAt, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, apperrors.NewInternalError("issue token", err)
	}
	return &LoginResult{UserID: u.ID, Role: u.Role, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}
