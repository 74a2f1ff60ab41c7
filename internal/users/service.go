package users

import (
	"context"
	"errors"

	"github.com/sitdb/sitdb/internal/platform/httpx"
	"github.com/sitdb/sitdb/internal/rbac"
	"github.com/sitdb/sitdb/internal/shared"
)

var (
	errUserNotFound     = httpx.NewError(httpx.ErrNotFound, "User tidak ditemukan")
	errConcurrentUpdate = httpx.NewError(httpx.ErrConflict, "User sedang diperbarui admin lain, coba lagi")
)

// Service exposes admin user management.
type Service struct {
	store     Store
	authz     rbac.Authorizer
	validator *shared.Validator
}

// NewService builds Service.
func NewService(store Store, authz rbac.Authorizer, validator *shared.Validator) *Service {
	return &Service{store: store, authz: authz, validator: validator}
}

// List returns users matching filter and the page metadata.
func (s *Service) List(ctx context.Context, actor shared.Principal, filter ListFilter) ([]User, shared.Pagination, error) {
	if err := s.authz.Authorize(ctx, rbac.ActionUserList, actor, ""); err != nil {
		return nil, shared.Pagination{}, err
	}
	if err := s.validator.Struct(filter); err != nil {
		return nil, shared.Pagination{}, err
	}
	filter.PageRequest = filter.PageRequest.Normalize()
	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.Limit, total), nil
}

// Update changes an account's profile, role or status and audits the
// before/after snapshot.
func (s *Service) Update(ctx context.Context, actor shared.Principal, in UpdateInput, meta shared.RequestMeta) (*User, error) {
	if err := s.authz.Authorize(ctx, rbac.ActionUserUpdate, actor, ""); err != nil {
		return nil, err
	}
	if in.UserID == "" {
		return nil, httpx.NewError(httpx.ErrValidation, "User ID diperlukan")
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	var updated *User
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		before, err := tx.GetForUpdate(ctx, in.UserID)
		if err != nil {
			return err
		}
		if in.Empty() {
			updated = before
			return nil
		}
		after, err := tx.Update(ctx, in.UserID, in)
		if err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			Action:   shared.AuditUserUpdated,
			Entity:   "User",
			EntityID: after.ID,
			ActorID:  actor.ID,
			Changes:  map[string]any{"previousData": before.snapshot(), "newData": after.snapshot()},
			Meta:     meta,
		}); err != nil {
			return err
		}
		updated = after
		return nil
	})
	if errors.Is(err, shared.ErrNotFound) {
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}
