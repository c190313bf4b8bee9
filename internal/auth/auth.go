// Package auth provides user accounts, role-based access control and
// HTTP basic authentication for the antifraud API.
//
// Access model:
//   - The first registered user becomes an unlocked ADMINISTRATOR.
//   - Every later registration creates a locked MERCHANT; an
//     administrator must unlock the account before it can be used.
//   - MERCHANT submits transactions, SUPPORT manages blocklists and
//     feedback, ADMINISTRATOR manages users.
package auth

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("username already taken")
	ErrRoleAlreadyAssigned = errors.New("role already assigned to user")
	ErrInvalidRole         = errors.New("role must be SUPPORT or MERCHANT")
	ErrCannotLockAdmin     = errors.New("cannot lock the administrator")
	ErrInvalidCredentials  = errors.New("invalid username or password")
	ErrUserLocked          = errors.New("user account is locked")
)

// Role is a user's access level.
type Role string

const (
	RoleAdministrator Role = "ADMINISTRATOR"
	RoleMerchant      Role = "MERCHANT"
	RoleSupport       Role = "SUPPORT"
)

// Assignable reports whether the role may be granted via the role
// change endpoint. ADMINISTRATOR is assigned only to the first user.
func (r Role) Assignable() bool {
	return r == RoleMerchant || r == RoleSupport
}

// User is a registered API user.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Locked       bool      `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// Store persists user accounts. Lookups are case-insensitive on
// username.
type Store interface {
	Create(ctx context.Context, user *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	UpdateRole(ctx context.Context, username string, role Role) (*User, error)
	SetLocked(ctx context.Context, username string, locked bool) error
	Delete(ctx context.Context, username string) error
	Count(ctx context.Context) (int64, error)
}
