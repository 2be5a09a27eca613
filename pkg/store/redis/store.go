// Package redis implements credential storage on Redis, for tools whose
// invocations run on different hosts but share an authenticated
// identity, such as CI workers.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"latchkey/pkg/oauth"
)

const (
	sessionKeyPrefix = "latchkey:session:"
	tokenKeyPrefix   = "latchkey:token:"

	// DefaultSessionTTL bounds how long an abandoned authorization
	// attempt lingers in Redis. Tokens have no TTL; their lifecycle is
	// driven by the refresh coordinator.
	DefaultSessionTTL = 10 * time.Minute

	opTimeout = 5 * time.Second
)

// Store persists sessions and tokens in Redis under namespaced keys.
// Sessions expire automatically after the configured TTL.
type Store struct {
	client     *redis.Client
	sessionTTL time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithSessionTTL overrides the session expiry. Zero disables expiry.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.sessionTTL = ttl
	}
}

// New creates a Redis-backed store on an existing client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client:     client,
		sessionTTL: DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SaveSession stores a session keyed by state, with the session TTL.
func (s *Store) SaveSession(state string, session *oauth.Session) error {
	ctx, cancel := s.opCtx()
	defer cancel()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+state, data, s.sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession returns the session for state, or nil if absent or expired.
func (s *Store) GetSession(state string) (*oauth.Session, error) {
	ctx, cancel := s.opCtx()
	defer cancel()

	data, err := s.client.Get(ctx, sessionKeyPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session oauth.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// DeleteSession removes the session for state.
func (s *Store) DeleteSession(state string) error {
	ctx, cancel := s.opCtx()
	defer cancel()

	if err := s.client.Del(ctx, sessionKeyPrefix+state).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// SaveToken stores a token under key, without expiry.
func (s *Store) SaveToken(key string, token *oauth.Token) error {
	ctx, cancel := s.opCtx()
	defer cancel()

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := s.client.Set(ctx, tokenKeyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// GetToken returns the token for key, or nil if absent.
func (s *Store) GetToken(key string) (*oauth.Token, error) {
	ctx, cancel := s.opCtx()
	defer cancel()

	data, err := s.client.Get(ctx, tokenKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token oauth.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

// DeleteToken removes the token for key.
func (s *Store) DeleteToken(key string) error {
	ctx, cancel := s.opCtx()
	defer cancel()

	if err := s.client.Del(ctx, tokenKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (s *Store) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}
