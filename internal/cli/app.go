package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/khatabook/creditbook/internal/config"
	"github.com/khatabook/creditbook/internal/domain/account"
	"github.com/khatabook/creditbook/internal/domain/backup"
	"github.com/khatabook/creditbook/internal/domain/escalation"
	"github.com/khatabook/creditbook/internal/domain/notification"
	"github.com/khatabook/creditbook/internal/domain/report"
	"github.com/khatabook/creditbook/internal/pkg/database"
	"github.com/khatabook/creditbook/internal/pkg/email"
	"github.com/khatabook/creditbook/internal/pkg/metrics"
	"github.com/khatabook/creditbook/internal/pkg/storage"
)

// app holds every wired dependency for one command invocation
type app struct {
	cfg        *config.Config
	db         *sqlx.DB
	rdb        *redis.Client
	metrics    *metrics.Metrics
	dispatcher *notification.Dispatcher
	accounts   *account.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		database.Close(db)
		return nil, err
	}

	a := &app{cfg: cfg, db: db, metrics: metrics.New()}

	if cfg.RedisURL != "" {
		rdb, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, continuing without it")
		} else {
			a.rdb = rdb
		}
	}

	transport, err := newTransport(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	dedup, err := newDeduper(cfg, db, a.rdb)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.dispatcher, err = notification.NewDispatcher(notification.NewRepository(db), transport, dedup, a.metrics)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.accounts = account.NewService(db, account.Policy{DueDays: cfg.CreditDueDays}, a.dispatcher, a.metrics)
	return a, nil
}

func newTransport(cfg *config.Config) (email.Transport, error) {
	switch cfg.MailDriver {
	case "", "log":
		return email.LogTransport{}, nil
	case "smtp":
		return email.NewSMTPTransport(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			FromName: cfg.MailFromName,
		}), nil
	case "sendgrid":
		if cfg.SendGridKey == "" {
			return nil, fmt.Errorf("MAIL_DRIVER=sendgrid requires SENDGRID_API_KEY")
		}
		return email.NewSendGridClient(email.SendGridConfig{
			APIKey:    cfg.SendGridKey,
			FromEmail: cfg.MailFrom,
			FromName:  cfg.MailFromName,
		}), nil
	default:
		return nil, fmt.Errorf("unknown MAIL_DRIVER %q", cfg.MailDriver)
	}
}

// newDeduper returns nil for "off". A redis mode without a reachable Redis falls back to no dedup,
// the same fail-open rule the Redis deduper applies per send.
func newDeduper(cfg *config.Config, db *sqlx.DB, rdb *redis.Client) (notification.Deduper, error) {
	switch cfg.NotifyDedup {
	case "", "off":
		return nil, nil
	case "log":
		return notification.NewLogDeduper(notification.NewRepository(db)), nil
	case "redis":
		if rdb == nil {
			log.Warn().Msg("NOTIFY_DEDUP=redis but Redis is not available, sending without dedup")
			return nil, nil
		}
		return notification.NewRedisDeduper(rdb, 48*time.Hour), nil
	default:
		return nil, fmt.Errorf("unknown NOTIFY_DEDUP %q", cfg.NotifyDedup)
	}
}

func (a *app) scheduler() *escalation.Scheduler {
	return escalation.NewScheduler(a.accounts, a.dispatcher, escalation.Policy{
		ReminderDaysBefore:   a.cfg.ReminderDaysBefore,
		ReminderDaysAfter:    a.cfg.ReminderDaysAfter,
		BadDebtThresholdDays: a.cfg.BadDebtThresholdDays,
	}, a.metrics)
}

func (a *app) reports() *report.Service {
	return report.NewService(a.db)
}

func (a *app) backups(ctx context.Context) (*backup.Service, error) {
	store, err := storage.New(ctx, storage.Config{
		Driver:      a.cfg.BackupDriver,
		LocalDir:    a.cfg.BackupDir,
		S3Endpoint:  a.cfg.S3Endpoint,
		S3Region:    a.cfg.S3Region,
		S3Bucket:    a.cfg.S3Bucket,
		S3AccessKey: a.cfg.S3AccessKey,
		S3SecretKey: a.cfg.S3SecretKey,
	})
	if err != nil {
		return nil, err
	}
	return backup.NewService(a.db, store), nil
}

// pushMetrics sends this run's metrics to the Pushgateway when one is configured.
func (a *app) pushMetrics(ctx context.Context, job string) {
	if a.cfg.PushgatewayURL == "" {
		return
	}
	if err := a.metrics.Push(ctx, a.cfg.PushgatewayURL, job); err != nil {
		log.Warn().Err(err).Str("job", job).Msg("Failed to push metrics")
	}
}

func (a *app) Close() {
	database.CloseRedis(a.rdb)
	database.Close(a.db)
}
