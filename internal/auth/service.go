package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sitdb/sitdb/internal/platform/httpx"
	"github.com/sitdb/sitdb/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo      Repository
	tokens    *shared.TokenManager
	validator *shared.Validator
	cost      int
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *shared.TokenManager, validator *shared.Validator) *Service {
	return &Service{repo: repo, tokens: tokens, validator: validator, cost: bcrypt.DefaultCost}
}

// Register creates a citizen or volunteer account.
func (s *Service) Register(ctx context.Context, in RegisterInput, meta shared.RequestMeta) (*User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	role := shared.Role(in.Role)
	if role == "" {
		role = shared.RoleMasyarakat
	}
	if _, err := s.repo.FindByEmail(ctx, in.Email); err == nil {
		return nil, httpx.NewError(httpx.ErrDuplicate, "Email sudah terdaftar")
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.CreateUser(ctx, User{
		Email:        in.Email,
		PasswordHash: string(hash),
		Name:         in.Name,
		Phone:        in.Phone,
		Role:         role,
		Status:       shared.UserActive,
	}, shared.AuditLog{
		Action:  shared.AuditUserRegistered,
		Entity:  "User",
		Changes: map[string]any{"email": in.Email, "name": in.Name, "role": role},
		Meta:    meta,
	})
	if errors.Is(err, ErrEmailTaken) {
		return nil, httpx.NewError(httpx.ErrDuplicate, "Email sudah terdaftar")
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, in LoginInput) (*User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	user, err := s.repo.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.Status.CanSignIn() {
		return nil, httpx.NewError(httpx.ErrUnauthorized, "Akun tidak aktif")
	}
	return user, nil
}

// IssueToken signs a bearer token for the user.
func (s *Service) IssueToken(user *User) (string, time.Time, error) {
	return s.tokens.Issue(user.ID, user.Role)
}

// Me loads the account behind the principal.
func (s *Service) Me(ctx context.Context, id string) (*User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, httpx.NewError(httpx.ErrNotFound, "User tidak ditemukan")
	}
	return user, err
}

// RegisterSession stores session metadata after successful login.
func (s *Service) RegisterSession(ctx context.Context, sessionID, userID string, expiresAt time.Time, meta shared.RequestMeta) error {
	return s.repo.CreateSession(ctx, sessionID, userID, expiresAt, meta.IP, meta.UserAgent)
}

// RemoveSession deletes the session metadata record.
func (s *Service) RemoveSession(ctx context.Context, sessionID string) error {
	return s.repo.DeleteSession(ctx, sessionID)
}
