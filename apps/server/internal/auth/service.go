package auth

import (
	"fmt"
	"strings"
)

// Role decides which API surfaces an account may use.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return r, nil
	case "":
		return RoleStudent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

// IsStaff reports whether the role may manage attribute rules.
func (r Role) IsStaff() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// Identity is the account behind a valid session.
type Identity struct {
	AccountID uint64 `json:"user_id"`
	Username  string `json:"username"`
	Role      Role   `json:"role"`
}

// Service is the account/session contract consumed by the HTTP layer and CLI.
type Service interface {
	// Register creates a student account and signs it in.
	Register(username, password string) (accountID uint64, sessionToken string, err error)
	// CreateAccount provisions an account with an explicit role, without a session.
	CreateAccount(username, password string, role Role) (accountID uint64, err error)
	Login(username, password string) (accountID uint64, sessionToken string, err error)
	ResolveSession(token string) (Identity, bool)
	Logout(token string)
	Close() error
}
