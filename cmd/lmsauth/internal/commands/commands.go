package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/lmsauth/internal/config"
	"github.com/MrEthical07/lmsauth/internal/db"
	"github.com/MrEthical07/lmsauth/internal/logger"
	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// connectWait bounds how long startup retries an unreachable backend.
const connectWait = 30 * time.Second

type Globals struct {
	Debug   bool
	EnvFile string
	Version string
}

// setup loads configuration and the logger shared by every command.
func (g *Globals) setup() (*config.Config, zerolog.Logger, func() error, error) {
	cfg, err := config.Load(g.EnvFile)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	log, closeLog, err := logger.Setup(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Debug:  g.Debug,
	})
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, log, closeLog, nil
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// openPool connects to Postgres, retrying while the database starts up.
func openPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg := cfg.Pool()
	if err := poolCfg.Validate(); err != nil {
		return nil, fmt.Errorf("DATABASE_URL: %w", err)
	}

	return backoff.Retry(ctx, func() (*pgxpool.Pool, error) {
		pool, err := db.NewPool(ctx, poolCfg)
		if err != nil {
			log.Warn().Err(err).Msg("database not reachable, retrying")
			return nil, err
		}
		return pool, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(connectWait))
}

// openRedis connects to Redis, retrying while the server starts up.
func openRedis(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis not reachable, retrying")
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxElapsedTime(connectWait))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}
