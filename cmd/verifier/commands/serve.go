package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Madhoneybees/discord-nft-verifier/service"
	transport "github.com/Madhoneybees/discord-nft-verifier/transport/http"
)

const shutdownTimeout = 10 * time.Second

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled batch verification",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBase(ctx)
	if err != nil {
		return err
	}
	e, err := openEngine(ctx, b)
	if err != nil {
		b.Close()
		return err
	}
	defer e.Close()

	tok, err := signingKey(true)
	if err != nil {
		return err
	}

	s := b.settings.Settings()
	limiter := service.NewRateLimiter(b.clock, s.RateLimit.Window, s.RateLimit.MaxAttempts)
	go limiter.Run(ctx)

	verifier := service.NewVerificationService(
		b.challenges, b.store,
		limiter,
		e.events,
		service.WithClock(b.clock),
		service.WithLogger(logger),
		service.WithMetrics(e.metrics),
		service.WithChallengeTTL(s.Verification.ChallengeTTL),
	)

	scheduler, err := service.NewScheduler(e.runner, s.Verification.Schedule, b.clock, logger)
	if err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	handlers := transport.NewHandlers(
		verifier,
		service.NewOnboarding(verifier, e.runner, tok, logger),
		service.NewStatsReporter(b.settings, b.store, b.clock),
		scheduler,
	)
	server := &http.Server{
		Addr:    env.HTTPAddr,
		Handler: transport.SetupRouter(handlers, tok, prometheus.DefaultGatherer, logger),
	}

	go reloadOnHangup(ctx, b)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", env.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// reloadOnHangup re-reads the settings file on SIGHUP. The schedule is only
// read at startup.
func reloadOnHangup(ctx context.Context, b *base) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := b.settings.Reload(); err != nil {
				logger.Error("settings reload failed", "err", err)
				continue
			}
			logger.Info("settings reloaded", "tiers", len(b.settings.Settings().Tiers))
		}
	}
}
