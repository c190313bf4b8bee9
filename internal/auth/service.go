package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mdudarev/antifraud/internal/logging"
)

// Service implements user management on top of a Store.
type Service struct {
	store Store

	// registerMu serializes registrations so the first-user rule
	// cannot hand out two administrators under concurrent signups.
	registerMu sync.Mutex
}

// NewService creates an auth service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Register creates a new user account. The first user in the system
// becomes an unlocked administrator; later users start as locked
// merchants.
func (s *Service) Register(ctx context.Context, name, username, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	count, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}

	user := &User{
		Name:         name,
		Username:     strings.ToLower(username),
		PasswordHash: string(hash),
		Role:         RoleMerchant,
		Locked:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if count == 0 {
		user.Role = RoleAdministrator
		user.Locked = false
	}

	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Authenticate verifies basic-auth credentials and returns the user.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.store.GetByUsername(ctx, strings.ToLower(username))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Locked {
		return nil, ErrUserLocked
	}
	return user, nil
}

// List returns all users ordered by id.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.store.List(ctx)
}

// Delete removes a user by username.
func (s *Service) Delete(ctx context.Context, username string) error {
	if err := s.store.Delete(ctx, strings.ToLower(username)); err != nil {
		return err
	}
	logging.L(ctx).Info("user deleted")
	return nil
}

// ChangeRole assigns a new role to a user. Only MERCHANT and SUPPORT
// can be assigned; granting the role the user already holds fails.
func (s *Service) ChangeRole(ctx context.Context, username string, role Role) (*User, error) {
	if !role.Assignable() {
		return nil, ErrInvalidRole
	}
	user, err := s.store.UpdateRole(ctx, strings.ToLower(username), role)
	if err != nil {
		return nil, err
	}
	logging.L(ctx).Info("user role changed", "user_id", user.ID, "role", role)
	return user, nil
}

// SetAccess locks or unlocks a user. The administrator account can
// never be locked.
func (s *Service) SetAccess(ctx context.Context, username string, locked bool) error {
	username = strings.ToLower(username)
	user, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if locked && user.Role == RoleAdministrator {
		return ErrCannotLockAdmin
	}
	if err := s.store.SetLocked(ctx, username, locked); err != nil {
		return err
	}
	logging.L(ctx).Info("user access changed", "user_id", user.ID, "locked", locked)
	return nil
}
