package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/khatabook/creditbook/internal/domain/escalation"
	"github.com/khatabook/creditbook/internal/middleware"
	"github.com/khatabook/creditbook/internal/pkg/response"
)

// wakeChannel is the Redis channel a running daemon listens on for an immediate run.
const wakeChannel = "creditbook:remind"

func init() {
	rootCmd.AddCommand(remindCmd)

	remindCmd.Flags().Bool("daemon", false, "Keep running and repeat every --interval")
	remindCmd.Flags().Duration("interval", 0, "Time between runs in daemon mode (default REMINDER_EVERY)")
	remindCmd.Flags().String("metrics-addr", "", "Listen address for /metrics and /healthz in daemon mode (default METRICS_ADDR)")
	remindCmd.Flags().Bool("wake", false, "Ask a running daemon to run now, via Redis, and exit")
}

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Run the daily escalation: reminders, overdue marking and bad debt",
	Long: `remind checks every unpaid credit against the reminder offsets, marks credit overdue,
flags bad debt and emails the customer at each step.

Run it once per day from cron, or pass --daemon to keep it running with its own ticker.`,
	Args: cobra.NoArgs,
	RunE: runRemind,
}

func runRemind(cmd *cobra.Command, args []string) error {
	if wake, _ := cmd.Flags().GetBool("wake"); wake {
		return publishWake(cmd)
	}
	if daemon, _ := cmd.Flags().GetBool("daemon"); daemon {
		return runRemindDaemon(cmd)
	}

	summary, err := ledger.scheduler().Run(cmd.Context())
	ledger.pushMetrics(cmd.Context(), "creditbook_remind")
	if summary != nil {
		printSummary(cmd, summary)
	}
	return err
}

func printSummary(cmd *cobra.Command, s *escalation.RunSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s for %s\n", s.RunID, s.Today)
	fmt.Fprintf(out, "  Accounts:          %d\n", s.Accounts)
	fmt.Fprintf(out, "  Credits checked:   %d\n", s.CreditsChecked)
	fmt.Fprintf(out, "  Marked overdue:    %d\n", s.MarkedOverdue)
	fmt.Fprintf(out, "  Bad debt accounts: %d\n", s.BadDebtAccounts)
	fmt.Fprintf(out, "  Emails delivered:  %d\n", s.Delivered)
	fmt.Fprintf(out, "  Emails failed:     %d\n", s.Failed)
	fmt.Fprintf(out, "  Emails skipped:    %d\n", s.Skipped)
}

func publishWake(cmd *cobra.Command) error {
	if ledger.rdb == nil {
		return fmt.Errorf("%w: --wake needs REDIS_URL", errUsage)
	}
	receivers, err := ledger.rdb.Publish(cmd.Context(), wakeChannel, time.Now().UTC().Format(time.RFC3339)).Result()
	if err != nil {
		return fmt.Errorf("publish wake-up: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wake-up sent to %d daemon(s)\n", receivers)
	return nil
}

func runRemindDaemon(cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		interval = ledger.cfg.ReminderEvery
	}
	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" {
		addr = ledger.cfg.MetricsAddr
	}

	scheduler := ledger.scheduler()
	server := &http.Server{
		Addr:         addr,
		Handler:      daemonRouter(scheduler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server error")
			serverErr <- err
			cancel()
		}
	}()

	wake := make(chan struct{}, 1)
	if ledger.rdb != nil {
		go subscribeWakeups(ctx, ledger.rdb, wake)
	}

	log.Info().Dur("interval", interval).Msg("Escalation daemon started")
	scheduler.Loop(ctx, interval, wake)

	select {
	case err := <-serverErr:
		return fmt.Errorf("metrics server: %w", err)
	default:
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	log.Info().Msg("Escalation daemon exited properly")
	return nil
}

func daemonRouter(scheduler *escalation.Scheduler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)

	r.Method(http.MethodGet, "/metrics", ledger.metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := ledger.db.PingContext(r.Context()); err != nil {
			response.ServiceUnavailable(w, "database unavailable")
			return
		}
		response.OK(w, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		last := scheduler.LastRun()
		if last == nil {
			response.NotFound(w, "no escalation run has finished yet")
			return
		}
		response.OK(w, last)
	})
	return r
}

func subscribeWakeups(ctx context.Context, rdb *redis.Client, wake chan<- struct{}) {
	sub := rdb.Subscribe(ctx, wakeChannel)
	defer func() { _ = sub.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Channel():
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}
