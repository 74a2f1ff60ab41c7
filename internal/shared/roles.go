package shared

// Role is the coarse permission level of a user account.
type Role string

const (
	RoleMasyarakat Role = "MASYARAKAT"
	RoleRelawan    Role = "RELAWAN"
	RoleAdmin      Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleMasyarakat, RoleRelawan, RoleAdmin:
		return true
	}
	return false
}

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	UserPending  UserStatus = "PENDING"
	UserActive   UserStatus = "ACTIVE"
	UserInactive UserStatus = "INACTIVE"
	UserRejected UserStatus = "REJECTED"
)

// Valid reports whether s is a known user status.
func (s UserStatus) Valid() bool {
	switch s {
	case UserPending, UserActive, UserInactive, UserRejected:
		return true
	}
	return false
}

// CanSignIn reports whether an account in this state may authenticate.
func (s UserStatus) CanSignIn() bool {
	return s == UserActive || s == UserPending
}
