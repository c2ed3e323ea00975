package session

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmony/internal/models"
	"github.com/desertthunder/harmony/internal/shared"
)

// Event names a session change.
type Event int

const (
	SignedIn Event = iota
	SignedOut
	TokenRefreshed
)

func (e Event) String() string {
	switch e {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case TokenRefreshed:
		return "token_refreshed"
	default:
		return "unknown"
	}
}

// Listener receives the session after each change.
type Listener func(models.UserSession, Event)

// Manager tracks the current [models.UserSession] and notifies subscribers.
type Manager struct {
	mu        sync.Mutex
	current   models.UserSession
	listeners map[int]Listener
	next      int
	logger    *log.Logger
}

func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Manager{current: models.UserSession{Loading: true}, listeners: make(map[int]Listener), logger: logger}
}

// Subscribe registers fn and returns a function that removes it.
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.next
	m.next++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Current returns the session as last set.
func (m *Manager) Current() models.UserSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SignIn records a signed-in user.
func (m *Manager) SignIn(userID, providerUserID string) {
	m.set(models.UserSession{UserID: userID, ProviderUserID: providerUserID}, SignedIn)
}

// SignOut clears the user.
func (m *Manager) SignOut() {
	m.set(models.UserSession{}, SignedOut)
}

// Fail records a session error, such as a revoked token with no replacement.
func (m *Manager) Fail(err error) {
	m.set(models.UserSession{Err: err}, SignedOut)
}

// TokenRefreshed notifies subscribers that the access token rotated.
func (m *Manager) TokenRefreshed() {
	m.set(m.Current(), TokenRefreshed)
}

func (m *Manager) set(s models.UserSession, ev Event) {
	m.mu.Lock()
	m.current = s
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	m.logger.Debug("session changed", "event", ev, "user", s.UserID)
	for _, l := range listeners {
		l(s, ev)
	}
}
