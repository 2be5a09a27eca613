package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"latchkey/pkg/lockfile"
)

// Refresher serializes token refreshes per storage key. Within one
// process, concurrent callers for the same key are collapsed into a
// single network refresh via singleflight; with a lock manager
// configured, concurrent processes are serialized through a file lock
// so at most one of them performs the refresh while the rest pick up
// the stored result.
//
// Every refresh is check-then-refresh: after winning the singleflight
// slot (and again after acquiring the file lock), the token is re-read
// from the store and the staleness check repeated. A caller that lost
// the race therefore returns the token someone else just refreshed
// instead of refreshing again.
type Refresher struct {
	client *Client
	store  Store
	locks  *lockfile.Manager
	logger *slog.Logger

	group singleflight.Group
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithLockManager enables cross-process refresh coordination through
// file locks. Without it, coordination is per-process only.
func WithLockManager(m *lockfile.Manager) RefresherOption {
	return func(r *Refresher) {
		r.locks = m
	}
}

// NewRefresher creates a refresh coordinator on top of client. Tokens
// are read from and written back to the client's store.
func NewRefresher(client *Client, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		client: client,
		store:  client.store,
		logger: client.logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetValidToken returns the token for key, refreshing it first if it
// has expired. A token without expiry metadata is returned as is.
func (r *Refresher) GetValidToken(ctx context.Context, key string) (*Token, error) {
	return r.getValid(ctx, key, func(t *Token) bool {
		return t.IsExpired()
	})
}

// GetValidTokenWithThreshold returns the token for key, refreshing
// proactively once the given fraction of its lifetime has elapsed.
// threshold is clamped to [0, 1]; 0.8 refreshes when 80% of the
// lifetime is gone. Tokens without expiry metadata are never refreshed.
func (r *Refresher) GetValidTokenWithThreshold(ctx context.Context, key string, threshold float64) (*Token, error) {
	if threshold < 0 {
		threshold = 0
	} else if threshold > 1 {
		threshold = 1
	}
	return r.getValid(ctx, key, func(t *Token) bool {
		return shouldRefresh(t, threshold)
	})
}

// Refresh refreshes the token for key if it has expired; a still-valid
// token is returned without a network call. Unlike GetValidToken, the
// staleness check happens inside the singleflight slot, so callers that
// already observed an expired token go straight to coordination.
func (r *Refresher) Refresh(ctx context.Context, key string) (*Token, error) {
	return r.doRefresh(ctx, key, func(t *Token) bool {
		return t.IsExpired()
	})
}

// ForceRefresh refreshes the token for key unconditionally. Concurrent
// callers still collapse into one refresh.
func (r *Refresher) ForceRefresh(ctx context.Context, key string) (*Token, error) {
	return r.doRefresh(ctx, key, func(*Token) bool { return true })
}

// getValid reads the token and refreshes it when stale reports so.
func (r *Refresher) getValid(ctx context.Context, key string, stale func(*Token) bool) (*Token, error) {
	token, err := r.store.GetToken(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	if token == nil {
		return nil, ErrTokenNotFound
	}
	if !stale(token) {
		return token, nil
	}
	return r.doRefresh(ctx, key, stale)
}

// doRefresh funnels all refresh work for a key through singleflight.
// Waiters that join an in-flight refresh receive the same token or the
// same error as the caller that initiated it.
func (r *Refresher) doRefresh(ctx context.Context, key string, stale func(*Token) bool) (*Token, error) {
	v, err, shared := r.group.Do(key, func() (interface{}, error) {
		return r.refreshChecked(ctx, key, stale)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("refresh result shared with concurrent callers", "key", key)
	}
	return v.(*Token), nil
}

// refreshChecked is the body of a singleflight refresh: re-read, re-check,
// optionally serialize across processes, refresh, persist.
func (r *Refresher) refreshChecked(ctx context.Context, key string, stale func(*Token) bool) (*Token, error) {
	token, err := r.store.GetToken(key)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	if token == nil {
		return nil, ErrTokenNotFound
	}
	if !stale(token) {
		return token, nil
	}

	if r.locks != nil {
		lock, err := r.locks.Acquire(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire refresh lock: %w", err)
		}
		defer lock.Release()

		// Another process may have refreshed while we waited for the
		// lock. Re-read and repeat the same staleness check that
		// triggered this refresh.
		token, err = r.store.GetToken(key)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read token under lock: %w", err)
		}
		if token == nil {
			return nil, ErrTokenNotFound
		}
		if !stale(token) {
			r.logger.Debug("token already refreshed by another process", "key", key)
			return token, nil
		}
	}

	if token.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	newToken, err := r.client.RefreshToken(ctx, token.RefreshToken)
	if err != nil {
		return nil, err
	}

	if err := r.store.SaveToken(key, newToken); err != nil {
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}

	r.logger.Info("token refreshed", "key", key)

	return newToken, nil
}

// shouldRefresh reports whether the given fraction of the token's
// lifetime has elapsed, or the token has expired outright. Tokens
// without expiry metadata never need a refresh, and without a reported
// lifetime the elapsed fraction cannot be computed, so only outright
// expiry counts.
func shouldRefresh(t *Token, threshold float64) bool {
	if t.ExpiresAt == 0 {
		return false
	}
	if t.IsExpired() {
		return true
	}
	if t.ExpiresIn <= 0 {
		return false
	}
	elapsed := t.ExpiresIn - (t.ExpiresAt - time.Now().Unix())
	return float64(elapsed)/float64(t.ExpiresIn) >= threshold
}
