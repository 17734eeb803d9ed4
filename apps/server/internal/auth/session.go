package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultSessionTTL = 30 * 24 * time.Hour
	tokenBytes        = 32
)

var (
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrInvalidRole        = errors.New("invalid role")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.@-]{2,63}$`)

// Manager keeps accounts and sessions in memory for single-process runs.
type Manager struct {
	mu sync.Mutex

	nextAccountID uint64
	sessionTTL    time.Duration
	now           func() time.Time
	sessions      map[string]sessionRecord // token -> account
	accountsByID  map[uint64]accountRecord
	accountsByKey map[string]uint64 // normalized username -> account
}

type sessionRecord struct {
	AccountID uint64
	ExpiresAt time.Time
}

type accountRecord struct {
	AccountID     uint64
	Username      string
	Role          Role
	PasswordHash  []byte
	LastLoginTime time.Time
}

func NewManager() *Manager {
	return NewManagerWithTTL(defaultSessionTTL)
}

func NewManagerWithTTL(sessionTTL time.Duration) *Manager {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &Manager{
		nextAccountID: 100000,
		sessionTTL:    sessionTTL,
		now:           time.Now,
		sessions:      make(map[string]sessionRecord),
		accountsByID:  make(map[uint64]accountRecord),
		accountsByKey: make(map[string]uint64),
	}
}

func (m *Manager) Close() error {
	return nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validateUsername(username string) error {
	trimmed := strings.TrimSpace(username)
	if !usernamePattern.MatchString(trimmed) {
		return ErrInvalidUsername
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 || len(password) > 72 {
		return ErrInvalidPassword
	}
	return nil
}

func validateRole(role Role) error {
	switch role {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return nil
	default:
		return ErrInvalidRole
	}
}

// prepareAccount validates input and hashes the password.
func prepareAccount(username, password string, role Role) (normalized string, hash []byte, err error) {
	if err = validateUsername(username); err != nil {
		return "", nil, err
	}
	if err = validatePassword(password); err != nil {
		return "", nil, err
	}
	if err = validateRole(role); err != nil {
		return "", nil, err
	}
	hash, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, err
	}
	return normalizeUsername(username), hash, nil
}

func (m *Manager) issueSessionLocked(accountID uint64, now time.Time) string {
	sessionToken := mustToken()
	m.sessions[sessionToken] = sessionRecord{
		AccountID: accountID,
		ExpiresAt: now.Add(m.sessionTTL),
	}
	return sessionToken
}

func (m *Manager) createLocked(normalized string, hash []byte, role Role, now time.Time) (uint64, error) {
	if _, exists := m.accountsByKey[normalized]; exists {
		return 0, ErrUsernameTaken
	}
	m.nextAccountID++
	accountID := m.nextAccountID
	m.accountsByID[accountID] = accountRecord{
		AccountID:     accountID,
		Username:      normalized,
		Role:          role,
		PasswordHash:  hash,
		LastLoginTime: now,
	}
	m.accountsByKey[normalized] = accountID
	return accountID, nil
}

func (m *Manager) Register(username, password string) (accountID uint64, sessionToken string, err error) {
	normalized, hash, err := prepareAccount(username, password, RoleStudent)
	if err != nil {
		return 0, "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	accountID, err = m.createLocked(normalized, hash, RoleStudent, now)
	if err != nil {
		return 0, "", err
	}
	return accountID, m.issueSessionLocked(accountID, now), nil
}

func (m *Manager) CreateAccount(username, password string, role Role) (uint64, error) {
	normalized, hash, err := prepareAccount(username, password, role)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(normalized, hash, role, m.now())
}

// Login validates credentials and returns a fresh session.
func (m *Manager) Login(username, password string) (accountID uint64, sessionToken string, err error) {
	normalized := normalizeUsername(username)
	if normalized == "" || password == "" {
		return 0, "", ErrInvalidCredentials
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	accountID, exists := m.accountsByKey[normalized]
	if !exists {
		return 0, "", ErrInvalidCredentials
	}
	profile := m.accountsByID[accountID]
	if bcrypt.CompareHashAndPassword(profile.PasswordHash, []byte(password)) != nil {
		return 0, "", ErrInvalidCredentials
	}

	now := m.now()
	profile.LastLoginTime = now
	m.accountsByID[accountID] = profile
	return accountID, m.issueSessionLocked(accountID, now), nil
}

// ResolveSession validates token and slides its expiry forward.
func (m *Manager) ResolveSession(token string) (Identity, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.sessions[token]
	if !exists {
		return Identity{}, false
	}
	now := m.now()
	if !now.Before(rec.ExpiresAt) {
		delete(m.sessions, token)
		return Identity{}, false
	}
	rec.ExpiresAt = now.Add(m.sessionTTL)
	m.sessions[token] = rec

	profile := m.accountsByID[rec.AccountID]
	return Identity{AccountID: rec.AccountID, Username: profile.Username, Role: profile.Role}, true
}

func (m *Manager) Logout(token string) {
	if token == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

func mustToken() string {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
