package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mechpower.ai/internal/sim/power/geom"
	"mechpower.ai/internal/sim/power/node"
)

type Config struct {
	WorldWSURL  string
	StateFile   string
	MaxSessions int
	ReadTimeout time.Duration
}

type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	state    map[string]persistedSession

	closed bool
}

func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if cfg.WorldWSURL == "" {
		return nil, fmt.Errorf("empty world ws url")
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	st, err := loadStateFile(cfg.StateFile)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		sessions: map[string]*Session{},
		state:    st,
	}, nil
}

func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	return nil
}

func (m *Manager) GetStatus(ctx context.Context, sessionKey string) (Status, error) {
	s, err := m.getOrCreateSession(sessionKey)
	if err != nil {
		return Status{}, err
	}
	return s.Status(), nil
}

// GetKinds needs no connection: the vocabulary is compiled in.
func (m *Manager) GetKinds(ctx context.Context, sessionKey string) (Kinds, error) {
	faces := make([]string, 0, len(geom.All))
	for _, d := range geom.All {
		faces = append(faces, d.String())
	}
	return Kinds{
		Kinds: node.KindNames(),
		Axes:  []string{geom.AxisX.String(), geom.AxisY.String(), geom.AxisZ.String()},
		Faces: faces,
		Ops:   []string{"PLACE", "BREAK", "RECONFIGURE", "SET_POWER", "SET_DEMAND"},
	}, nil
}

func (m *Manager) Command(ctx context.Context, sessionKey string, args CommandArgs) (CommandResult, error) {
	s, err := m.getOrCreateSession(sessionKey)
	if err != nil {
		return CommandResult{}, err
	}
	res, err := s.Command(ctx, args)
	if err != nil {
		m.logger.Warn("bridge command", zap.String("session", sessionKey), zap.Error(err))
	}
	return res, err
}

func (m *Manager) Disconnect(ctx context.Context, sessionKey string) error {
	s, err := m.getOrCreateSession(sessionKey)
	if err != nil {
		return err
	}
	s.Close()
	return nil
}

func (m *Manager) getOrCreateSession(key string) (*Session, error) {
	if key == "" {
		key = "default"
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("bridge manager closed")
	}
	if s := m.sessions[key]; s != nil {
		return s, nil
	}

	// Evict the least recently used session.
	if len(m.sessions) >= m.cfg.MaxSessions {
		var oldestKey string
		var oldest time.Time
		for k, s := range m.sessions {
			t := s.LastUsedAt()
			if oldestKey == "" || t.Before(oldest) {
				oldestKey = k
				oldest = t
			}
		}
		if oldestKey != "" {
			// Close takes the session's command lock; do it off ours.
			go m.sessions[oldestKey].Close()
			delete(m.sessions, oldestKey)
		}
	}

	s := NewSession(SessionConfig{
		Key:         key,
		WorldWSURL:  m.cfg.WorldWSURL,
		ReadTimeout: m.cfg.ReadTimeout,
	}, m.onSessionUpdate)
	s.commands = m.state[key].Commands
	m.sessions[key] = s
	return s, nil
}

func (m *Manager) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) onSessionUpdate(key string, upd sessionUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	ps := m.state[key]
	if upd.SessionID != "" {
		ps.SessionID = upd.SessionID
	}
	if upd.WorldID != "" {
		ps.WorldID = upd.WorldID
	}
	if !upd.LastConnectedAt.IsZero() {
		ps.LastConnectedAt = upd.LastConnectedAt.UTC().Format(time.RFC3339Nano)
	}
	if upd.Commands != 0 {
		ps.Commands = upd.Commands
	}
	m.state[key] = ps

	// json.Marshal sorts map keys.
	b, _ := json.MarshalIndent(m.state, "", "  ")
	if err := writeFileAtomic(m.cfg.StateFile, append(b, '\n')); err != nil {
		m.logger.Warn("bridge state file", zap.String("path", m.cfg.StateFile), zap.Error(err))
	}
}
