package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/khatabook/creditbook/internal/pkg/civil"
	"github.com/khatabook/creditbook/internal/pkg/email"
	"github.com/khatabook/creditbook/internal/pkg/metrics"
)

var subjects = map[Kind]string{
	KindConfirmation:   "Credit Request Confirmation",
	KindOverdueAlert:   "Credit Overdue Alert",
	KindBadDebtWarning: "Bad Debt Warning",
}

// Dispatcher renders notices, hands them to the mail transport and records every attempt.
// Delivery failures end up in the log, never in the returned error.
type Dispatcher struct {
	repo      *Repository
	transport email.Transport
	renderer  *email.Renderer
	dedup     Deduper
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewDispatcher creates a dispatcher. dedup and m may be nil.
func NewDispatcher(repo *Repository, transport email.Transport, dedup Deduper, m *metrics.Metrics) (*Dispatcher, error) {
	renderer, err := email.NewRenderer(map[string]string{
		string(KindConfirmation):   email.ConfirmationTemplate,
		string(KindOverdueAlert):   email.OverdueAlertTemplate,
		string(KindBadDebtWarning): email.BadDebtWarningTemplate,
	})
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		repo:      repo,
		transport: transport,
		renderer:  renderer,
		dedup:     dedup,
		metrics:   m,
		now:       time.Now,
	}, nil
}

// SetClock replaces the time source used for sent_at and the dedup day.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Dispatch attempts one notice. It returns the appended log entry, or nil when the deduper
// suppressed the send. The error is non-nil only when the log itself could not be written.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notice) (*Entry, error) {
	subject, ok := subjects[n.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, n.Kind)
	}

	now := d.now()
	key := n.key(civil.Of(now))

	logger := log.With().
		Int64("account_id", n.Recipient.AccountID).
		Str("kind", string(n.Kind)).
		Logger()
	if n.CreditID != nil {
		logger = logger.With().Int64("credit_id", *n.CreditID).Logger()
	}

	if d.dedup != nil {
		first, err := d.dedup.Acquire(ctx, key)
		if err != nil {
			logger.Warn().Err(err).Msg("Dedup check failed, sending anyway")
		} else if !first {
			logger.Info().Str("dedup_key", key.String()).Msg("Skipped duplicate notification")
			d.count(n.Kind, "skipped")
			return nil, nil
		}
	}

	delivered, reason := d.deliver(ctx, n, subject)

	entry := &Entry{
		AccountID: n.Recipient.AccountID,
		CreditID:  n.creditID(),
		Kind:      n.Kind,
		Status:    StatusDelivered,
		SentAt:    now,
		SentOn:    key.Day,
	}
	if !delivered {
		entry.Status = StatusFailed
		entry.FailureReason.String = reason
		entry.FailureReason.Valid = true
		if d.dedup != nil {
			d.dedup.Release(ctx, key)
		}
	}

	if err := d.repo.Append(ctx, entry); err != nil {
		return nil, err
	}
	d.count(n.Kind, string(entry.Status))

	if delivered {
		logger.Info().Msg("Notification delivered")
	} else {
		logger.Warn().Str("reason", reason).Msg("Notification delivery failed")
	}
	return entry, nil
}

func (d *Dispatcher) deliver(ctx context.Context, n Notice, subject string) (bool, string) {
	body, err := d.renderer.Render(string(n.Kind), n.templateData())
	if err != nil {
		return false, "render: " + err.Error()
	}
	return email.Deliver(ctx, d.transport, &email.Message{
		To:      n.Recipient.Email,
		ToName:  n.Recipient.Name,
		Subject: subject,
		Body:    body,
	})
}

func (d *Dispatcher) count(kind Kind, status string) {
	if d.metrics != nil {
		d.metrics.NotificationsTotal.WithLabelValues(string(kind), status).Inc()
	}
}
