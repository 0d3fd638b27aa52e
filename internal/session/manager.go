package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultIdleTimeout is how long an untouched session is kept.
const DefaultIdleTimeout = 12 * time.Hour

// Manager owns the sessions of all connected browsers. Sessions share
// nothing but the manager's index.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*State
	idle     time.Duration
	opts     []Option
	logger   *slog.Logger
	journal  Journal
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	IdleTimeout time.Duration
	Logger      *slog.Logger
	Journal     Journal
	Options     []Option
}

// NewManager returns an empty manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Journal == nil {
		cfg.Journal = Discard
	}
	return &Manager{
		sessions: map[string]*State{},
		idle:     cfg.IdleTimeout,
		opts:     cfg.Options,
		logger:   cfg.Logger,
		journal:  cfg.Journal,
	}
}

// Get returns the session with id, creating a fresh one when id is unknown
// or empty. The second result reports whether a new session was created.
func (m *Manager) Get(id string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && id != "" {
		s.touch()
		return s, false
	}
	s := New(uuid.NewString(), m.opts...)
	m.sessions[s.ID] = s
	m.logger.Debug("session created", "session", s.ID)
	return s, true
}

// Lookup returns the session with id without creating one.
func (m *Manager) Lookup(id string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove forgets the session with id.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle since before now minus the idle timeout and
// returns how many were dropped.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) > m.idle {
			delete(m.sessions, id)
			n++
		}
	}
	if n > 0 {
		m.logger.Debug("idle sessions dropped", "count", n)
	}
	return n
}

// Record appends ev to the activity journal. Journal failures are logged and
// otherwise ignored.
func (m *Manager) Record(ev Event) {
	if err := m.journal.Record(ev); err != nil {
		m.logger.Warn("writing activity journal", "type", ev.Type, "error", err)
	}
}
