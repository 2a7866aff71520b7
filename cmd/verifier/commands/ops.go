package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Madhoneybees/discord-nft-verifier/service"
)

var VerifyAllCmd = &cobra.Command{
	Use:   "verify-all",
	Short: "Run one batch verification over every stored wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		result, err := e.runner.RunAll(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	},
}

var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print verification counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBase(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		stats, err := service.NewStatsReporter(b.settings, b.store, b.clock).Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, stats)
	},
}

var CleanExpiredCmd = &cobra.Command{
	Use:   "clean-expired",
	Short: "Delete challenges past their expiry",
	Long: `Delete challenges past their expiry from the store. A running server
already refuses expired challenges and drops its in-process copy on use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBase(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		n, err := b.challenges.PurgeExpired(cmd.Context(), b.clock.Now())
		if err != nil {
			return err
		}
		logger.Info("expired challenges removed", "count", n)
		return nil
	},
}

var ResetUserCmd = &cobra.Command{
	Use:   "reset-user <subject-id>",
	Short: "Forget a member's wallet and pending challenge",
	Long: `Forget a member's wallet and pending challenge in the store.

A running server keeps its own in-process copy of pending challenges and
rate-limit windows, which this command cannot reach. To reset a member
while the server is up, call POST /admin/users/<subject-id>/reset instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBase(cmd.Context())
		if err != nil {
			return err
		}
		defer b.Close()

		s := b.settings.Settings()
		verifier := service.NewVerificationService(
			b.challenges, b.store,
			service.NewRateLimiter(b.clock, s.RateLimit.Window, s.RateLimit.MaxAttempts),
			nil,
			service.WithClock(b.clock),
			service.WithLogger(logger),
		)
		return verifier.ResetSubject(cmd.Context(), args[0])
	},
}

var adminTokenTTL time.Duration

var AdminTokenCmd = &cobra.Command{
	Use:   "admin-token <name>",
	Short: "Issue a bearer token for the /admin routes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := signingKey(false)
		if err != nil {
			return err
		}
		token, err := tok.AdminToken(args[0], adminTokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	AdminTokenCmd.Flags().DurationVar(&adminTokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
