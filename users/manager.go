package users

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cross/infra/store"
)

var (
	ErrUsernameTaken     = errors.New("username not available")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrWrongCredentials  = errors.New("username/password mismatch")
	ErrAlreadyLoggedIn   = errors.New("user already logged in")
	ErrNotLoggedIn       = errors.New("user not logged in")
	ErrUnknownUser       = errors.New("non-existent username")
	ErrSamePassword      = errors.New("new password equals the current one")
	ErrLoggedInUpdate    = errors.New("cannot update credentials while logged in")
)

// Session is one logged-in connection. The UDP address is where trade
// notifications for this user are sent.
type Session struct {
	ID        string
	Username  string
	UDPAddr   *net.UDPAddr
	LoginTime time.Time

	lastActivity time.Time
	timer        *time.Timer
}

// Manager owns registration, credentials and the live session table.
// Credentials persist in the store; sessions are in-memory only and die
// with the process or with inactivity.
type Manager struct {
	mu       sync.Mutex
	store    *store.Store
	sessions map[string]*Session // by username; one session per user

	inactivityTimeout time.Duration
	log               *zap.Logger
}

func NewManager(st *store.Store, inactivityTimeout time.Duration, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store:             st,
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
		log:               log,
	}
}

// Register creates a new user with a hashed password.
func (m *Manager) Register(username, password string) error {
	if username == "" || len(password) < 4 {
		return ErrInvalidPassword
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists, err := m.store.GetUser(username)
	if err != nil {
		return err
	}
	if exists {
		return ErrUsernameTaken
	}
	rec := store.UserRecord{
		Username:     username,
		PasswordHash: hashPassword(password),
		RegisteredAt: time.Now(),
	}
	if err := m.store.SaveUser(rec); err != nil {
		return err
	}
	m.log.Info("user registered", zap.String("user", username))
	return nil
}

// Login validates credentials and opens a session bound to the client's
// UDP notification address. One live session per user.
func (m *Manager) Login(username, password string, udpAddr *net.UDPAddr) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists, err := m.store.GetUser(username)
	if err != nil {
		return nil, err
	}
	if !exists || !verifyPassword(rec.PasswordHash, password) {
		return nil, ErrWrongCredentials
	}
	if _, live := m.sessions[username]; live {
		return nil, ErrAlreadyLoggedIn
	}

	s := &Session{
		ID:           uuid.NewString(),
		Username:     username,
		UDPAddr:      udpAddr,
		LoginTime:    time.Now(),
		lastActivity: time.Now(),
	}
	s.timer = time.AfterFunc(m.inactivityTimeout, func() {
		m.expire(username, s.ID)
	})
	m.sessions[username] = s
	m.log.Info("user logged in", zap.String("user", username), zap.String("session", s.ID))
	return s, nil
}

// Logout closes the user's session.
func (m *Manager) Logout(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[username]
	if !ok {
		return ErrNotLoggedIn
	}
	s.timer.Stop()
	delete(m.sessions, username)
	m.log.Info("user logged out", zap.String("user", username))
	return nil
}

// UpdateCredentials changes a password. Refused while the user is logged
// in, mirroring the venue's session rules.
func (m *Manager) UpdateCredentials(username, currentPassword, newPassword string) error {
	if len(newPassword) < 4 {
		return ErrInvalidPassword
	}
	if newPassword == currentPassword {
		return ErrSamePassword
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, live := m.sessions[username]; live {
		return ErrLoggedInUpdate
	}
	rec, exists, err := m.store.GetUser(username)
	if err != nil {
		return err
	}
	if !exists {
		return ErrUnknownUser
	}
	if !verifyPassword(rec.PasswordHash, currentPassword) {
		return ErrWrongCredentials
	}
	rec.PasswordHash = hashPassword(newPassword)
	return m.store.SaveUser(rec)
}

// Touch refreshes the inactivity timer for a live session.
func (m *Manager) Touch(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[username]; ok {
		s.lastActivity = time.Now()
		s.timer.Reset(m.inactivityTimeout)
	}
}

// SessionAddr returns the UDP notification address of a logged-in user.
func (m *Manager) SessionAddr(username string) (*net.UDPAddr, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[username]
	if !ok || s.UDPAddr == nil {
		return nil, false
	}
	return s.UDPAddr, true
}

// LoggedIn reports whether the user has a live session.
func (m *Manager) LoggedIn(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[username]
	return ok
}

// expire force-logs-out a session that went quiet. The session id guards
// against expiring a newer session after a quick logout/login.
func (m *Manager) expire(username, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[username]; ok && s.ID == sessionID {
		delete(m.sessions, username)
		m.log.Info("session expired for inactivity", zap.String("user", username))
	}
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func verifyPassword(hash, password string) bool {
	sum := sha256.Sum256([]byte(password))
	return subtle.ConstantTimeCompare([]byte(hash), []byte(hex.EncodeToString(sum[:]))) == 1
}
