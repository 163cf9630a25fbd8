package guardian

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"codeguardian/inference_engine"
	"codeguardian/types"
)

// Session is one user's conversation context. It owns the transcript and
// the processing guard that keeps dispatches for the session sequential.
type Session struct {
	ID        string
	CreatedAt time.Time

	history    *inference_engine.ConversationStore
	processing sync.Mutex
}

// tryBegin acquires the processing guard without waiting.
func (s *Session) tryBegin() bool {
	return s.processing.TryLock()
}

func (s *Session) end() {
	s.processing.Unlock()
}

// Transcript returns a copy of the full conversation.
func (s *Session) Transcript() []types.ConversationTurn {
	return s.history.History()
}

// SessionManager creates sessions on first use.
type SessionManager struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	tokenLimit int
	tokenModel string
	counter    inference_engine.TokenCounter
}

func NewSessionManager(tokenLimit int, tokenModel string) *SessionManager {
	return &SessionManager{
		sessions:   make(map[string]*Session),
		tokenLimit: tokenLimit,
		tokenModel: tokenModel,
	}
}

// SetTokenCounter replaces the token estimator for sessions created later.
func (m *SessionManager) SetTokenCounter(counter inference_engine.TokenCounter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter = counter
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// Get returns the session for id, creating it when missing. An empty id
// gets a generated one.
func (m *SessionManager) Get(id string) *Session {
	if id == "" {
		id = NewSessionID()
	}

	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	store := inference_engine.NewConversationStore(m.tokenLimit, m.tokenModel)
	if m.counter != nil {
		store.SetTokenCounter(m.counter)
	}
	s = &Session{ID: id, CreatedAt: time.Now(), history: store}
	m.sessions[id] = s
	return s
}

// Lookup returns an existing session without creating one.
func (m *SessionManager) Lookup(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
