package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/lmsauth/internal/db"
	"github.com/MrEthical07/lmsauth/internal/httpapi"
	"github.com/MrEthical07/lmsauth/internal/sweeper"
	"github.com/MrEthical07/lmsauth/metrics/export/prometheus"
	"github.com/sourcegraph/conc"
)

type ServeCmd struct {
	Listen          string        `help:"HTTP listen address, overrides HTTP_ADDR" default:""`
	AutoMigrate     bool          `help:"apply pending migrations before serving" default:"false" env:"AUTO_MIGRATE"`
	ShutdownTimeout time.Duration `help:"grace period for in-flight requests" default:"15s"`
}

func (c *ServeCmd) Run(globals *Globals) error {
	cfg, log, closeLog, err := globals.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	if c.Listen != "" {
		cfg.HTTPAddr = c.Listen
	}

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.AutoMigrate {
		if err := db.Migrate(cfg.DatabaseURL, db.Up); err != nil {
			return err
		}
		log.Info().Msg("migrations applied")
	}

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	opts := httpapi.Options{
		Authority: be.auth,
		Users:     be.users,
		Logger:    log,
	}
	if cfg.MetricsEnabled {
		opts.Metrics = prometheus.New(be.auth).Handler()
	}
	srv := configureHTTPServer(cfg.HTTPAddr, httpapi.NewRouter(opts))

	serveErr := make(chan error, 1)
	var wg conc.WaitGroup
	wg.Go(func() {
		sweeper.New(be.auth, cfg.Sweep(), log).Run(ctx)
	})
	wg.Go(func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	})

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown")
	}
	wg.Wait()

	select {
	case err := <-serveErr:
		return err
	default:
		log.Info().Msg("server stopped")
		return nil
	}
}
