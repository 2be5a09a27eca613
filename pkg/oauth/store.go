package oauth

import "sync"

// Store is the credential storage capability consumed by the client and
// the refresher. Implementations must be safe for concurrent use by
// multiple goroutines; every individual save/get/delete must be atomic
// from the store's perspective.
//
// Sessions are keyed by the OAuth state parameter. Tokens are keyed by an
// application-chosen string, by convention "<domain>:<principal>".
// Get methods return (nil, nil) when nothing is stored under the key.
type Store interface {
	SaveSession(state string, session *Session) error
	GetSession(state string) (*Session, error)
	DeleteSession(state string) error

	SaveToken(key string, token *Token) error
	GetToken(key string) (*Token, error)
	DeleteToken(key string) error
}

// MemoryStore is a thread-safe in-memory Store. Suitable for tests and
// single-process tools that do not need credentials to outlive the
// process. Stored values are copied on the way in and out so callers
// cannot mutate the store's view.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	tokens   map[string]Token
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		tokens:   make(map[string]Token),
	}
}

// SaveSession stores a session keyed by state.
func (s *MemoryStore) SaveSession(state string, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state] = *session
	return nil
}

// GetSession returns the session for state, or nil if absent.
func (s *MemoryStore) GetSession(state string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[state]; ok {
		return &sess, nil
	}
	return nil, nil
}

// DeleteSession removes the session for state. Deleting an absent
// session is not an error.
func (s *MemoryStore) DeleteSession(state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, state)
	return nil
}

// SaveToken stores a token under key.
func (s *MemoryStore) SaveToken(key string, token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = *token
	return nil
}

// GetToken returns the token for key, or nil if absent.
func (s *MemoryStore) GetToken(key string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tok, ok := s.tokens[key]; ok {
		return &tok, nil
	}
	return nil, nil
}

// DeleteToken removes the token for key. Deleting an absent token is not
// an error.
func (s *MemoryStore) DeleteToken(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}
