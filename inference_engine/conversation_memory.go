package inference_engine

import (
	"sync"

	"codeguardian/internal/logging"
	"codeguardian/types"
)

// TokenCounter estimates the token cost of one message for a model.
type TokenCounter func(content, model string) int

// ConversationStore is the append-only transcript of one session. It never
// evicts; windowing only applies to the context handed to providers.
type ConversationStore struct {
	turns      []types.ConversationTurn
	tokenLimit int
	tokenModel string
	count      TokenCounter
	mu         sync.RWMutex
}

// NewConversationStore creates an empty store. A tokenLimit of 0 disables
// context windowing.
func NewConversationStore(tokenLimit int, tokenModel string) *ConversationStore {
	return &ConversationStore{
		turns:      make([]types.ConversationTurn, 0),
		tokenLimit: tokenLimit,
		tokenModel: tokenModel,
		count:      EstimateTokens,
	}
}

// SetTokenCounter replaces the token estimator.
func (s *ConversationStore) SetTokenCounter(counter TokenCounter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if counter != nil {
		s.count = counter
	}
}

// Append adds a turn at the end of the transcript.
func (s *ConversationStore) Append(role types.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, types.ConversationTurn{Role: role, Content: content})
	logging.L_debug("ConversationStore: added turn", "role", role, "total", len(s.turns))
}

// History returns a copy of every turn in insertion order.
func (s *ConversationStore) History() []types.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	historyCopy := make([]types.ConversationTurn, len(s.turns))
	copy(historyCopy, s.turns)
	return historyCopy
}

// GetMessagesForContext returns the most recent turns that fit within the
// token budget, in chronological order. With no budget it returns History().
func (s *ConversationStore) GetMessagesForContext() []types.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.tokenLimit <= 0 {
		historyCopy := make([]types.ConversationTurn, len(s.turns))
		copy(historyCopy, s.turns)
		return historyCopy
	}

	var currentTokens int
	start := len(s.turns)
	for i := len(s.turns) - 1; i >= 0; i-- {
		msgTokens := s.count(s.turns[i].Content, s.tokenModel)
		if currentTokens+msgTokens > s.tokenLimit {
			logging.L_debug("ConversationStore: token limit reached", "limit", s.tokenLimit, "kept", len(s.turns)-start, "tokens", currentTokens)
			break
		}
		currentTokens += msgTokens
		start = i
	}

	window := make([]types.ConversationTurn, len(s.turns)-start)
	copy(window, s.turns[start:])
	return window
}

// Len returns the number of stored turns.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Clear empties the transcript. Only an explicit user action calls this.
func (s *ConversationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = make([]types.ConversationTurn, 0)
	logging.L_info("🧹 Conversation history cleared")
}
