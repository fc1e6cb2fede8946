package cli

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khatabook/creditbook/internal/config"
	"github.com/khatabook/creditbook/internal/domain/account"
	"github.com/khatabook/creditbook/internal/pkg/errorhandler"
	"github.com/khatabook/creditbook/internal/pkg/storage"
)

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV", "test")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DATABASE_URL", filepath.Join(dir, "creditbook.db"))
	t.Setenv("MAIL_DRIVER", "log")
	t.Setenv("NOTIFY_DEDUP", "log")
	t.Setenv("REDIS_URL", "")
	t.Setenv("PUSHGATEWAY_URL", "")
	t.Setenv("BACKUP_DRIVER", "local")
	t.Setenv("BACKUP_DIR", filepath.Join(dir, "backups"))
}

// resetFlags puts every flag back to its default; rootCmd is shared between runs.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := Execute(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, out)
	return out
}

func TestAccountAndCreditCommands(t *testing.T) {
	setupEnv(t)

	out := mustRun(t, "account", "register", "--name", "Asha Rao", "--email", "Asha@Example.com", "--limit", "1000")
	assert.Contains(t, out, "Registered account 1 (asha@example.com)")

	out = mustRun(t, "credit", "request", "1", "400")
	assert.Contains(t, out, "Issued credit 1 for 400.00; balance 400.00 of 1000.00")

	_, err := run(t, "credit", "request", "1", "700")
	assert.ErrorIs(t, err, account.ErrLimitExceeded)

	_, err = run(t, "credit", "request", "1", "0")
	assert.ErrorIs(t, err, account.ErrValidation)

	out = mustRun(t, "account", "show", "asha@example.com")
	assert.Contains(t, out, "Available: 600.00")
	assert.Contains(t, out, "Bad debt:  no")

	out = mustRun(t, "credit", "pay", "1", "1")
	assert.Contains(t, out, "Paid credit 1; balance 0.00")

	_, err = run(t, "credit", "pay", "1", "1")
	assert.Error(t, err)

	out = mustRun(t, "report", "notifications", "1")
	assert.Contains(t, out, "credit_request_confirmation")
	assert.Contains(t, out, "delivered")
}

func TestAccountUpdateOnlyTouchesGivenFlags(t *testing.T) {
	setupEnv(t)

	mustRun(t, "account", "register", "--name", "Ravi", "--email", "ravi@example.com", "--limit", "500")
	mustRun(t, "credit", "request", "1", "300")

	out := mustRun(t, "account", "update", "1", "--name", "Ravi K")
	assert.Contains(t, out, "Ravi K <ravi@example.com>, limit 500.00")

	_, err := run(t, "account", "update", "1", "--limit", "200")
	assert.ErrorIs(t, err, account.ErrInvalidLimit)

	_, err = run(t, "account", "update", "1")
	assert.Error(t, err)

	out = mustRun(t, "account", "list")
	assert.Contains(t, out, "Ravi K")
	assert.Contains(t, out, "300.00")
}

func TestAccountDeleteCascades(t *testing.T) {
	setupEnv(t)

	mustRun(t, "account", "register", "--name", "Meera", "--email", "meera@example.com", "--limit", "100")
	mustRun(t, "credit", "request", "1", "50")

	out := mustRun(t, "account", "delete", "1")
	assert.Contains(t, out, "Deleted account 1")

	out = mustRun(t, "report", "notifications")
	assert.Contains(t, out, "No notifications")

	_, err := run(t, "account", "show", "1")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestRemindReportAndBackupCommands(t *testing.T) {
	setupEnv(t)

	out := mustRun(t, "migrate")
	assert.Contains(t, out, "Schema at version")

	mustRun(t, "account", "register", "--name", "Kiran", "--email", "kiran@example.com", "--limit", "900")
	mustRun(t, "credit", "request", "1", "90")

	out = mustRun(t, "remind")
	assert.Contains(t, out, "Accounts:          1")
	assert.Contains(t, out, "Credits checked:   1")
	assert.Contains(t, out, "Marked overdue:    0")

	out = mustRun(t, "report", "overdue")
	assert.Contains(t, out, "No overdue credit")
	out = mustRun(t, "report", "bad-debt")
	assert.Contains(t, out, "No bad debt")

	out = mustRun(t, "backup")
	assert.Contains(t, out, "Backup written to backups/creditbook-")

	key := strings.TrimSpace(strings.TrimPrefix(out, "Backup written to "))

	out = mustRun(t, "backup", "--list")
	assert.Contains(t, out, key)

	out = mustRun(t, "backup", "show", key)
	assert.Contains(t, out, "Accounts:      1")
	assert.Contains(t, out, "Credits:       1")
	assert.Contains(t, out, "kiran@example.com")

	_, err := run(t, "backup", "show", "backups/creditbook-missing.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, errorhandler.ExitNotFound, ExitCode(context.Background(), err))

	mustRun(t, "backup")
	out = mustRun(t, "backup", "prune", "--keep", "1")
	assert.Contains(t, out, "Deleted "+key)
	assert.Contains(t, out, "Pruned 1 backup(s)")

	_, err = run(t, "backup", "rm", key)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWakeNeedsRedis(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "remind", "--wake")
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, err.Error(), "--wake needs REDIS_URL")
}

func TestWakeReachesSubscriber(t *testing.T) {
	setupEnv(t)
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_URL", "redis://"+mr.Addr())

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wake := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		subscribeWakeups(ctx, rdb, wake)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(wakeChannel)[wakeChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	out := mustRun(t, "remind", "--wake")
	assert.Contains(t, out, "Wake-up sent to 1 daemon(s)")

	select {
	case <-wake:
	case <-time.After(2 * time.Second):
		t.Fatal("wake-up was not delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestDaemonFailsWhenMetricsAddrBusy(t *testing.T) {
	setupEnv(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, err = run(t, "remind", "--daemon", "--interval", "1h", "--metrics-addr", ln.Addr().String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics server")
	assert.Equal(t, errorhandler.ExitInternal, ExitCode(context.Background(), err))
}

func TestExitCodes(t *testing.T) {
	setupEnv(t)
	ctx := context.Background()

	mustRun(t, "account", "register", "--name", "Dev", "--email", "dev@example.com", "--limit", "100")

	_, err := run(t, "account", "register", "--name", "Dev", "--email", "DEV@example.com", "--limit", "100")
	assert.Equal(t, errorhandler.ExitConflict, ExitCode(ctx, err))

	_, err = run(t, "account", "register", "--name", "Dev", "--email", "not-an-email", "--limit", "100")
	assert.Equal(t, errorhandler.ExitInvalid, ExitCode(ctx, err))

	_, err = run(t, "credit", "request", "1", "500")
	assert.Equal(t, errorhandler.ExitConflict, ExitCode(ctx, err))

	_, err = run(t, "credit", "pay", "1", "99")
	assert.Equal(t, errorhandler.ExitNotFound, ExitCode(ctx, err))

	_, err = run(t, "account", "show", "nope")
	assert.Equal(t, errorhandler.ExitInvalid, ExitCode(ctx, err))

	assert.Equal(t, errorhandler.ExitOK, ExitCode(ctx, nil))
}

func TestParseID(t *testing.T) {
	id, err := parseID("42", "account id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"0", "-1", "abc", ""} {
		_, err := parseID(bad, "account id")
		assert.Error(t, err, bad)
	}
}

func TestDaemonRouter(t *testing.T) {
	setupEnv(t)

	a, err := newApp(context.Background(), config.Load())
	require.NoError(t, err)
	ledger = a
	t.Cleanup(func() {
		a.Close()
		ledger = nil
	})

	scheduler := a.scheduler()
	srv := httptest.NewServer(daemonRouter(scheduler))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	status, body := get("/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"ok"`)

	status, _ = get("/status")
	assert.Equal(t, http.StatusNotFound, status)

	_, err = scheduler.Run(context.Background())
	require.NoError(t, err)

	status, body = get("/status")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"run_id"`)

	status, body = get("/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "creditbook_scheduler_runs_total")
}
