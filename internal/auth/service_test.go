package auth

import (
	"context"
	"errors"
	"testing"
)

func newTestService() *Service {
	return NewService(NewMemoryStore())
}

func TestFirstUserBecomesAdministrator(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	first, err := svc.Register(ctx, "John Doe", "johndoe", "secret123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if first.Role != RoleAdministrator {
		t.Errorf("role = %s, want ADMINISTRATOR", first.Role)
	}
	if first.Locked {
		t.Error("first user must be unlocked")
	}

	second, err := svc.Register(ctx, "Jane Doe", "janedoe", "secret123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if second.Role != RoleMerchant {
		t.Errorf("role = %s, want MERCHANT", second.Role)
	}
	if !second.Locked {
		t.Error("later users must start locked")
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "John", "johndoe", "secret123"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Case-insensitive.
	_, err := svc.Register(ctx, "Johnny", "JohnDoe", "secret456")
	if !errors.Is(err, ErrUserExists) {
		t.Errorf("err = %v, want ErrUserExists", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, "Admin", "admin", "secret123"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	t.Run("valid credentials", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, "admin", "secret123")
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if user.Username != "admin" {
			t.Errorf("username = %q", user.Username)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "admin", "wrong")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "ghost", "secret123")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("err = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("locked user", func(t *testing.T) {
		if _, err := svc.Register(ctx, "Merchant", "merchant", "secret123"); err != nil {
			t.Fatalf("Register: %v", err)
		}
		_, err := svc.Authenticate(ctx, "merchant", "secret123")
		if !errors.Is(err, ErrUserLocked) {
			t.Errorf("err = %v, want ErrUserLocked", err)
		}
	})
}

func TestChangeRole(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	svcMustRegister(t, svc, "Admin", "admin")
	svcMustRegister(t, svc, "Worker", "worker")

	t.Run("merchant to support", func(t *testing.T) {
		user, err := svc.ChangeRole(ctx, "worker", RoleSupport)
		if err != nil {
			t.Fatalf("ChangeRole: %v", err)
		}
		if user.Role != RoleSupport {
			t.Errorf("role = %s, want SUPPORT", user.Role)
		}
	})

	t.Run("same role conflicts", func(t *testing.T) {
		_, err := svc.ChangeRole(ctx, "worker", RoleSupport)
		if !errors.Is(err, ErrRoleAlreadyAssigned) {
			t.Errorf("err = %v, want ErrRoleAlreadyAssigned", err)
		}
	})

	t.Run("administrator not assignable", func(t *testing.T) {
		_, err := svc.ChangeRole(ctx, "worker", RoleAdministrator)
		if !errors.Is(err, ErrInvalidRole) {
			t.Errorf("err = %v, want ErrInvalidRole", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.ChangeRole(ctx, "ghost", RoleSupport)
		if !errors.Is(err, ErrUserNotFound) {
			t.Errorf("err = %v, want ErrUserNotFound", err)
		}
	})
}

func TestSetAccess(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	svcMustRegister(t, svc, "Admin", "admin")
	svcMustRegister(t, svc, "Worker", "worker")

	if err := svc.SetAccess(ctx, "worker", false); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "worker", "secret123"); err != nil {
		t.Errorf("Authenticate after unlock: %v", err)
	}

	if err := svc.SetAccess(ctx, "worker", true); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "worker", "secret123"); !errors.Is(err, ErrUserLocked) {
		t.Errorf("err = %v, want ErrUserLocked", err)
	}

	// The administrator can never be locked.
	if err := svc.SetAccess(ctx, "admin", true); !errors.Is(err, ErrCannotLockAdmin) {
		t.Errorf("err = %v, want ErrCannotLockAdmin", err)
	}
}

func TestDeleteUser(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	svcMustRegister(t, svc, "Admin", "admin")

	if err := svc.Delete(ctx, "admin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, "admin"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func svcMustRegister(t *testing.T, svc *Service, name, username string) {
	t.Helper()
	if _, err := svc.Register(context.Background(), name, username, "secret123"); err != nil {
		t.Fatalf("Register %s: %v", username, err)
	}
}
