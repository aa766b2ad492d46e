package commands

import (
	"context"
	"fmt"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/internal/config"
	"github.com/MrEthical07/lmsauth/internal/userstore"
	"github.com/MrEthical07/lmsauth/session"
	"github.com/rs/zerolog"
)

// backend is everything a command needs to drive the authority.
type backend struct {
	auth  *lmsauth.Authority
	users *userstore.Store
	close func()
}

func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backend, error) {
	pool, err := openPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	closers := []func(){pool.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var store session.Store
	switch cfg.SessionStore {
	case config.StoreRedis:
		client, err := openRedis(ctx, cfg, log)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, func() { _ = client.Close() })
		store = session.NewRedisStore(client, session.WithLogger(log))
	default:
		store = session.NewPostgresStore(pool, session.WithLogger(log))
	}
	log.Info().Str("session_store", cfg.SessionStore).Msg("session store ready")

	hasher, err := cfg.Hasher()
	if err != nil {
		closeAll()
		return nil, err
	}

	users := userstore.New(pool)
	auth, err := lmsauth.New().
		WithConfig(cfg.Authority()).
		WithSessionStore(store).
		WithUserProvider(users).
		WithHasher(hasher).
		WithLogger(log).
		WithAuditSink(lmsauth.NewZerologSink(log.With().Str("component", "audit").Logger())).
		Build()
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("authority: %w", err)
	}
	closers = append(closers, auth.Close)

	return &backend{auth: auth, users: users, close: closeAll}, nil
}
