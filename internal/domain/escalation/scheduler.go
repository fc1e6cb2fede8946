// Package escalation walks every account once per day and moves unpaid credit through
// reminder, overdue and bad debt, notifying the customer at each step.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/khatabook/creditbook/internal/domain/account"
	"github.com/khatabook/creditbook/internal/domain/credit"
	"github.com/khatabook/creditbook/internal/domain/notification"
	"github.com/khatabook/creditbook/internal/pkg/civil"
	"github.com/khatabook/creditbook/internal/pkg/logger"
	"github.com/khatabook/creditbook/internal/pkg/metrics"
)

// Policy holds the day offsets the scheduler matches against.
type Policy struct {
	ReminderDaysBefore   int
	ReminderDaysAfter    int
	BadDebtThresholdDays int
}

// Ledger is the part of the account service the scheduler drives.
type Ledger interface {
	List(ctx context.Context) ([]account.Account, error)
	UnpaidCredits(ctx context.Context, accountID int64) ([]credit.Credit, error)
	MarkOverdueCredits(ctx context.Context, accountID int64, today civil.Date) (int64, error)
	EvaluateBadDebt(ctx context.Context, accountID int64, thresholdDays int, today civil.Date) (bool, error)
}

// RunSummary describes one scheduler run.
type RunSummary struct {
	RunID           string     `json:"run_id"`
	Today           civil.Date `json:"today"`
	Accounts        int        `json:"accounts"`
	CreditsChecked  int        `json:"credits_checked"`
	MarkedOverdue   int64      `json:"marked_overdue"`
	BadDebtAccounts int        `json:"bad_debt_accounts"`
	Delivered       int        `json:"delivered"`
	Failed          int        `json:"failed"`
	Skipped         int        `json:"skipped"`
}

// Scheduler is the escalation routine. It is meant to run once per calendar day.
type Scheduler struct {
	ledger   Ledger
	notifier account.Notifier
	policy   Policy
	metrics  *metrics.Metrics
	now      func() time.Time

	mu   sync.Mutex
	last *RunSummary
}

// NewScheduler creates a scheduler. m may be nil.
func NewScheduler(ledger Ledger, notifier account.Notifier, policy Policy, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		ledger:   ledger,
		notifier: notifier,
		policy:   policy,
		metrics:  m,
		now:      time.Now,
	}
}

// SetClock replaces the time source; "today" is the calendar day of now().
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Run processes every account, credit by credit, then evaluates the account for bad debt.
// A store failure on one account is logged and the run moves on; the failures are returned
// together once every account has been visited.
func (s *Scheduler) Run(ctx context.Context) (*RunSummary, error) {
	started := time.Now()
	summary := &RunSummary{
		RunID: uuid.New().String(),
		Today: civil.Of(s.now()),
	}

	ctx = logger.WithFields(ctx, map[string]interface{}{
		"run_id": summary.RunID,
		"today":  summary.Today.String(),
	})
	l := logger.FromContext(ctx)
	l.Info().Msg("Escalation run started")

	accounts, err := s.ledger.List(ctx)
	if err != nil {
		s.observe(started, summary, err)
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	var errs []error
	for i := range accounts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		summary.Accounts++
		if err := s.processAccount(ctx, &accounts[i], summary); err != nil {
			l.Error().Err(err).Int64("account_id", accounts[i].ID).Msg("Escalation failed for account")
			errs = append(errs, fmt.Errorf("account %d: %w", accounts[i].ID, err))
		}
	}

	err = errors.Join(errs...)
	s.observe(started, summary, err)
	s.remember(summary)

	l.Info().
		Int("accounts", summary.Accounts).
		Int("credits_checked", summary.CreditsChecked).
		Int64("marked_overdue", summary.MarkedOverdue).
		Int("bad_debt_accounts", summary.BadDebtAccounts).
		Int("delivered", summary.Delivered).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("took", time.Since(started)).
		Msg("Escalation run finished")
	return summary, err
}

func (s *Scheduler) processAccount(ctx context.Context, a *account.Account, summary *RunSummary) error {
	l := logger.FromContext(ctx).With().Int64("account_id", a.ID).Logger()
	recipient := notification.Recipient{AccountID: a.ID, Name: a.Name, Email: a.Email}

	credits, err := s.ledger.UnpaidCredits(ctx, a.ID)
	if err != nil {
		return err
	}

	for i := range credits {
		c := &credits[i]
		summary.CreditsChecked++

		stage, days, ok := s.stageFor(c, summary.Today)
		if !ok {
			continue
		}

		if stage == notification.StageOverdue && !c.Overdue {
			// state is committed before the customer is told about it
			marked, err := s.ledger.MarkOverdueCredits(ctx, a.ID, summary.Today)
			if err != nil {
				return err
			}
			summary.MarkedOverdue += marked
		}

		l.Debug().
			Int64("credit_id", c.ID).
			Int("days_diff", c.DaysUntilDue(summary.Today)).
			Str("stage", string(stage)).
			Msg("Credit matched reminder offset")

		creditID := c.ID
		if err := s.dispatch(ctx, notification.Notice{
			Kind:      notification.KindOverdueAlert,
			Recipient: recipient,
			CreditID:  &creditID,
			Amount:    c.Amount,
			DueDate:   c.DueDate,
			Stage:     stage,
			Days:      days,
		}, summary); err != nil {
			return err
		}
	}

	flagged, err := s.ledger.EvaluateBadDebt(ctx, a.ID, s.policy.BadDebtThresholdDays, summary.Today)
	if err != nil {
		return err
	}
	if !flagged {
		return nil
	}

	summary.BadDebtAccounts++
	return s.dispatch(ctx, notification.Notice{
		Kind:      notification.KindBadDebtWarning,
		Recipient: recipient,
		Days:      s.policy.BadDebtThresholdDays,
	}, summary)
}

// stageFor matches days_diff = due_date - today exactly against the configured offsets.
// The checks are mutually exclusive and evaluated in order.
func (s *Scheduler) stageFor(c *credit.Credit, today civil.Date) (notification.Stage, int, bool) {
	diff := c.DaysUntilDue(today)
	switch {
	case diff == s.policy.ReminderDaysBefore:
		return notification.StageBeforeDue, diff, true
	case diff == 0:
		return notification.StageDueToday, 0, true
	case diff == -s.policy.ReminderDaysAfter:
		return notification.StageOverdue, -diff, true
	default:
		return "", 0, false
	}
}

func (s *Scheduler) dispatch(ctx context.Context, n notification.Notice, summary *RunSummary) error {
	entry, err := s.notifier.Dispatch(ctx, n)
	if err != nil {
		return err
	}
	switch {
	case entry == nil:
		summary.Skipped++
	case entry.Delivered():
		summary.Delivered++
	default:
		summary.Failed++
	}
	return nil
}

func (s *Scheduler) remember(summary *RunSummary) {
	snapshot := *summary
	s.mu.Lock()
	s.last = &snapshot
	s.mu.Unlock()
}

// LastRun returns a copy of the most recent finished run, or nil before the first one.
func (s *Scheduler) LastRun() *RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	snapshot := *s.last
	return &snapshot
}

func (s *Scheduler) observe(started time.Time, summary *RunSummary, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRun(started, err)
	s.metrics.BadDebtAccounts.Set(float64(summary.BadDebtAccounts))
}

// Loop runs the scheduler every interval until ctx is cancelled. A value on wake triggers
// an immediate run. The first run happens at once.
func (s *Scheduler) Loop(ctx context.Context, interval time.Duration, wake <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Escalation loop stopped")
			return
		case <-wake:
			log.Info().Msg("Escalation run requested")
		case <-ticker.C:
		}
		s.runLogged(ctx)
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	if _, err := s.Run(ctx); err != nil {
		level := zerolog.ErrorLevel
		if errors.Is(err, context.Canceled) {
			level = zerolog.InfoLevel
		}
		log.WithLevel(level).Err(err).Msg("Escalation run completed with errors")
	}
}
