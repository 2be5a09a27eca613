// Package file implements credential storage as JSON files in a
// per-user data directory. Sessions and tokens are partitioned into one
// file per domain so revoking or inspecting a provider's credentials
// touches only that provider's file.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"latchkey/pkg/oauth"
)

const defaultDomain = "default"

// Store persists sessions and tokens under a base directory, by default
// $XDG_DATA_HOME/<app> (falling back to ~/.local/share/<app>). Files
// are created with mode 0600 and directories with 0700 since they hold
// credentials.
//
// Concurrency: a process-wide mutex serializes file access within this
// process. Cross-process coordination is the refresh coordinator's job,
// not the store's.
type Store struct {
	mu  sync.Mutex
	dir string
}

// New creates a file store for the named application in the user data
// directory.
func New(app string) (*Store, error) {
	dir, err := dataDir(app)
	if err != nil {
		return nil, err
	}
	return NewInDir(dir)
}

// NewInDir creates a file store rooted at an explicit directory.
func NewInDir(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the base directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

func dataDir(app string) (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, app), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", app), nil
}

// SaveSession stores a session in the file for its domain.
func (s *Store) SaveSession(state string, session *oauth.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	domain := session.Domain
	if domain == "" {
		domain = defaultDomain
	}

	sessions, err := s.loadSessions(domain)
	if err != nil {
		return err
	}
	sessions[state] = *session
	return s.writeJSON(s.sessionsPath(domain), sessions)
}

// GetSession looks up a session by state. The state does not encode a
// domain, so the default domain is checked first and then every other
// sessions file. Sessions are short-lived and few, so the scan is cheap.
func (s *Store) GetSession(state string) (*oauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.loadSessions(defaultDomain)
	if err != nil {
		return nil, err
	}
	if sess, ok := sessions[state]; ok {
		return &sess, nil
	}

	domains, err := s.sessionDomains()
	if err != nil {
		return nil, err
	}
	for _, domain := range domains {
		if domain == defaultDomain {
			continue
		}
		sessions, err := s.loadSessions(domain)
		if err != nil {
			return nil, err
		}
		if sess, ok := sessions[state]; ok {
			return &sess, nil
		}
	}

	return nil, nil
}

// DeleteSession removes a session from whichever domain file holds it.
func (s *Store) DeleteSession(state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	domains, err := s.sessionDomains()
	if err != nil {
		return err
	}
	for _, domain := range domains {
		sessions, err := s.loadSessions(domain)
		if err != nil {
			return err
		}
		if _, ok := sessions[state]; ok {
			delete(sessions, state)
			return s.writeJSON(s.sessionsPath(domain), sessions)
		}
	}
	return nil
}

// SaveToken stores a token in the file for the domain encoded in key.
func (s *Store) SaveToken(key string, token *oauth.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	domain := domainFromKey(key)
	tokens, err := s.loadTokens(domain)
	if err != nil {
		return err
	}
	tokens[key] = *token
	return s.writeJSON(s.tokensPath(domain), tokens)
}

// GetToken returns the token for key, or nil if absent.
func (s *Store) GetToken(key string) (*oauth.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.loadTokens(domainFromKey(key))
	if err != nil {
		return nil, err
	}
	if tok, ok := tokens[key]; ok {
		return &tok, nil
	}
	return nil, nil
}

// DeleteToken removes the token for key.
func (s *Store) DeleteToken(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	domain := domainFromKey(key)
	tokens, err := s.loadTokens(domain)
	if err != nil {
		return err
	}
	if _, ok := tokens[key]; !ok {
		return nil
	}
	delete(tokens, key)
	return s.writeJSON(s.tokensPath(domain), tokens)
}

// domainFromKey extracts the domain from a "<domain>:<principal>" key.
func domainFromKey(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return defaultDomain
}

// sanitizeDomain makes a domain safe for use in a file name.
func sanitizeDomain(domain string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_")
	return r.Replace(domain)
}

func (s *Store) sessionsPath(domain string) string {
	return filepath.Join(s.dir, "sessions_"+sanitizeDomain(domain)+".json")
}

func (s *Store) tokensPath(domain string) string {
	return filepath.Join(s.dir, "tokens_"+sanitizeDomain(domain)+".json")
}

// sessionDomains lists the domains that have a sessions file on disk.
func (s *Store) sessionDomains() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}
	var domains []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "sessions_") && strings.HasSuffix(name, ".json") {
			domains = append(domains, strings.TrimSuffix(strings.TrimPrefix(name, "sessions_"), ".json"))
		}
	}
	return domains, nil
}

func (s *Store) loadSessions(domain string) (map[string]oauth.Session, error) {
	sessions := make(map[string]oauth.Session)
	if err := s.readJSON(s.sessionsPath(domain), &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) loadTokens(domain string) (map[string]oauth.Token, error) {
	tokens := make(map[string]oauth.Token)
	if err := s.readJSON(s.tokensPath(domain), &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// readJSON loads path into v. A missing file leaves v untouched.
func (s *Store) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// writeJSON writes v to path atomically: marshal to a uniquely named
// temp file in the same directory, then rename over the target. A
// crashed writer never leaves a half-written credentials file behind.
func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
