package auth

import (
	"errors"
	"testing"
	"time"
)

func managerVariants(t *testing.T) map[string]Service {
	t.Helper()
	sqliteManager, err := NewSQLiteManager(":memory:", 0)
	if err != nil {
		t.Fatalf("open sqlite manager: %v", err)
	}
	t.Cleanup(func() { _ = sqliteManager.Close() })
	return map[string]Service{
		"memory": NewManager(),
		"sqlite": sqliteManager,
	}
}

func TestRegisterAndLogin(t *testing.T) {
	for name, m := range managerVariants(t) {
		t.Run(name, func(t *testing.T) {
			accountID, token, err := m.Register("alice_01", "secret12")
			if err != nil {
				t.Fatalf("register failed: %v", err)
			}
			if accountID == 0 || token == "" {
				t.Fatalf("expected account id and token, got %d %q", accountID, token)
			}

			identity, ok := m.ResolveSession(token)
			if !ok {
				t.Fatalf("expected valid session")
			}
			if identity.AccountID != accountID {
				t.Fatalf("expected same account id, got %d and %d", accountID, identity.AccountID)
			}
			if identity.Username != "alice_01" {
				t.Fatalf("expected username alice_01, got %s", identity.Username)
			}
			if identity.Role != RoleStudent {
				t.Fatalf("expected self-registered account to be a student, got %s", identity.Role)
			}

			loginID, loginToken, err := m.Login("ALICE_01", "secret12")
			if err != nil {
				t.Fatalf("login failed: %v", err)
			}
			if loginID != accountID || loginToken == "" {
				t.Fatalf("expected same account id and a token after login")
			}
		})
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	for name, m := range managerVariants(t) {
		if _, _, err := m.Register("alice_01", "secret12"); err != nil {
			t.Fatalf("%s: register failed: %v", name, err)
		}
		if _, _, err := m.Register("Alice_01", "secret12"); !errors.Is(err, ErrUsernameTaken) {
			t.Fatalf("%s: expected ErrUsernameTaken, got %v", name, err)
		}
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	m := NewManager()
	if _, _, err := m.Register("a", "secret12"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
	if _, _, err := m.Register("alice_01", "123"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	for name, m := range managerVariants(t) {
		if _, _, err := m.Register("alice_01", "secret12"); err != nil {
			t.Fatalf("%s: register failed: %v", name, err)
		}
		if _, _, err := m.Login("alice_01", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", name, err)
		}
		if _, _, err := m.Login("nobody", "secret12"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials for unknown user, got %v", name, err)
		}
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	for name, m := range managerVariants(t) {
		_, token, err := m.Register("alice_01", "secret12")
		if err != nil {
			t.Fatalf("%s: register failed: %v", name, err)
		}
		m.Logout(token)
		if _, ok := m.ResolveSession(token); ok {
			t.Fatalf("%s: expected logged out token to be invalid", name)
		}
	}
}

func TestCreateAccountWithRole(t *testing.T) {
	for name, m := range managerVariants(t) {
		t.Run(name, func(t *testing.T) {
			id, err := m.CreateAccount("teacher.lin", "secret12", RoleTeacher)
			if err != nil {
				t.Fatalf("create account: %v", err)
			}
			loginID, token, err := m.Login("teacher.lin", "secret12")
			if err != nil || loginID != id {
				t.Fatalf("login as teacher: id=%d err=%v", loginID, err)
			}
			identity, ok := m.ResolveSession(token)
			if !ok || identity.Role != RoleTeacher || !identity.Role.IsStaff() {
				t.Fatalf("expected teacher identity, got %+v ok=%v", identity, ok)
			}
			if _, err := m.CreateAccount("someone", "secret12", Role("root")); !errors.Is(err, ErrInvalidRole) {
				t.Fatalf("expected ErrInvalidRole, got %v", err)
			}
		})
	}
}

func TestSessionExpires(t *testing.T) {
	m := NewManager()
	_, token, err := m.Register("alice_01", "secret12")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	base := m.now()
	m.now = func() time.Time { return base.Add(defaultSessionTTL + time.Second) }
	if _, ok := m.ResolveSession(token); ok {
		t.Fatalf("expected expired session to be rejected")
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole(" Teacher "); err != nil || r != RoleTeacher {
		t.Fatalf("expected teacher, got %q %v", r, err)
	}
	if r, _ := ParseRole(""); r != RoleStudent {
		t.Fatalf("expected empty role to default to student, got %q", r)
	}
	if _, err := ParseRole("janitor"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}
