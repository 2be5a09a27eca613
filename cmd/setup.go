package cmd

import (
	"fmt"
	"log/slog"
	"os"

	goredis "github.com/redis/go-redis/v9"

	"latchkey/internal/browser"
	"latchkey/internal/config"
	"latchkey/pkg/lockfile"
	"latchkey/pkg/oauth"
	filestore "latchkey/pkg/store/file"
	redisstore "latchkey/pkg/store/redis"
)

// env wires together the pieces a command needs: config, store, client
// and refresher for one provider.
type env struct {
	cfg       *config.Config
	store     oauth.Store
	client    *oauth.Client
	refresher *oauth.Refresher
	provider  string
}

// setup loads config and builds the OAuth stack for the named provider.
func setup(provider string) (*env, error) {
	path := flagConfig
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	p, err := cfg.Provider(provider)
	if err != nil {
		return nil, err
	}
	oauthCfg, err := p.OAuthConfig()
	if err != nil {
		return nil, err
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	client := oauth.NewClient(oauthCfg, store,
		oauth.WithLogger(slog.Default()),
		oauth.WithBrowserOpener(func(url string) error {
			// Always show the URL so the user can open it by hand
			fmt.Fprintf(os.Stderr, "Opening %s\n", url)
			return browser.Open(url)
		}))

	refresherOpts := []oauth.RefresherOption{}
	if !cfg.Refresh.DisableFileLock {
		locks, err := lockfile.NewManager(config.AppName)
		if err != nil {
			return nil, fmt.Errorf("failed to set up lock manager: %w", err)
		}
		refresherOpts = append(refresherOpts, oauth.WithLockManager(locks))
	}

	return &env{
		cfg:       cfg,
		store:     store,
		client:    client,
		refresher: oauth.NewRefresher(client, refresherOpts...),
		provider:  provider,
	}, nil
}

// newStore builds the configured storage backend, defaulting to file.
func newStore(cfg *config.Config) (oauth.Store, error) {
	switch cfg.Storage.Backend {
	case "", "file":
		return filestore.New(config.AppName)
	case "memory":
		return oauth.NewMemoryStore(), nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		return redisstore.New(client), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// tokenKey builds the storage key for the provider and principal.
func (e *env) tokenKey() string {
	return fmt.Sprintf("%s:%s", e.provider, flagPrincipal)
}
