package users

import (
	"time"

	"github.com/sitdb/sitdb/internal/shared"
)

// User is the admin view of an account.
type User struct {
	ID        string            `json:"id"`
	Email     string            `json:"email"`
	Name      string            `json:"name"`
	Phone     *string           `json:"phone,omitempty"`
	Role      shared.Role       `json:"role"`
	Status    shared.UserStatus `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Count     Counts            `json:"_count"`
}

// Counts are activity totals shown next to each account.
type Counts struct {
	Reports       int `json:"reports"`
	StatusUpdates int `json:"statusUpdates"`
}

// ListFilter narrows the user listing.
type ListFilter struct {
	Role   string `json:"role" validate:"omitempty,oneof=MASYARAKAT RELAWAN ADMIN"`
	Status string `json:"status" validate:"omitempty,oneof=PENDING ACTIVE INACTIVE REJECTED"`
	Search string `json:"search" validate:"omitempty,max=100"`
	shared.PageRequest
}

// UpdateInput is the admin patch for one account.
type UpdateInput struct {
	UserID string  `json:"userId" validate:"required"`
	Name   *string `json:"name" validate:"omitempty,min=2,max=100"`
	Phone  *string `json:"phone" validate:"omitempty,max=20"`
	Role   *string `json:"role" validate:"omitempty,oneof=MASYARAKAT RELAWAN ADMIN"`
	Status *string `json:"status" validate:"omitempty,oneof=PENDING ACTIVE INACTIVE REJECTED"`
}

// Empty reports whether the patch changes nothing.
func (in UpdateInput) Empty() bool {
	return in.Name == nil && in.Phone == nil && in.Role == nil && in.Status == nil
}

// snapshot is the audit representation of an account; it never includes the
// password hash.
func (u User) snapshot() map[string]any {
	return map[string]any{
		"id":     u.ID,
		"email":  u.Email,
		"name":   u.Name,
		"phone":  u.Phone,
		"role":   u.Role,
		"status": u.Status,
	}
}
