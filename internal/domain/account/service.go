package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/khatabook/creditbook/internal/domain/credit"
	"github.com/khatabook/creditbook/internal/domain/notification"
	"github.com/khatabook/creditbook/internal/pkg/civil"
	"github.com/khatabook/creditbook/internal/pkg/database"
	"github.com/khatabook/creditbook/internal/pkg/metrics"
	"github.com/khatabook/creditbook/internal/pkg/validator"
)

// Notifier sends a notice and records the attempt.
type Notifier interface {
	Dispatch(ctx context.Context, n notification.Notice) (*notification.Entry, error)
}

// Service owns balance arithmetic and the credit limit invariant.
// Every mutation runs in one transaction; callers reload state with Get afterwards.
type Service struct {
	db       *sqlx.DB
	policy   Policy
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService creates an account service. notifier and m may be nil.
func NewService(db *sqlx.DB, policy Policy, notifier Notifier, m *metrics.Metrics) *Service {
	return &Service{
		db:       db,
		policy:   policy,
		notifier: notifier,
		metrics:  m,
		now:      time.Now,
	}
}

// SetClock replaces the time source; "today" is the calendar day of now().
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Register creates an account with a zero balance.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)

	if errs := validator.Validate(in); errs != nil {
		return nil, &ValidationError{Fields: errs}
	}

	repo := NewRepository(s.db)
	if _, err := repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now()
	a := &Account{
		Name:        in.Name,
		Email:       in.Email,
		CreditLimit: in.CreditLimit,
		Balance:     decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Create(ctx, a); err != nil {
		return nil, err
	}

	log.Info().Int64("account_id", a.ID).Str("email", a.Email).Msg("Account registered")
	return a, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Account, error) {
	return NewRepository(s.db).GetByID(ctx, id)
}

// GetByEmail looks an account up case-insensitively.
func (s *Service) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return NewRepository(s.db).GetByEmail(ctx, NormalizeEmail(email))
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return NewRepository(s.db).List(ctx)
}

// Credits returns every credit of the account.
func (s *Service) Credits(ctx context.Context, id int64) ([]credit.Credit, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return credit.NewRepository(s.db).ListByAccount(ctx, id)
}

// UnpaidCredits returns the account's unpaid credits in insertion order.
func (s *Service) UnpaidCredits(ctx context.Context, id int64) ([]credit.Credit, error) {
	return credit.NewRepository(s.db).ListUnpaidByAccount(ctx, id)
}

// Update applies a partial update. A present but blank name or email is rejected,
// as is a credit limit below the current balance.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*Account, error) {
	if errs := validateUpdate(&in); errs != nil {
		return nil, &ValidationError{Fields: errs}
	}

	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.Queryer) error {
		repo := NewRepository(tx)

		a, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if in.IsEmpty() {
			return nil
		}

		if in.Name != nil {
			a.Name = *in.Name
		}
		if in.Email != nil && *in.Email != a.Email {
			other, err := repo.GetByEmail(ctx, *in.Email)
			if err == nil && other.ID != a.ID {
				return ErrEmailTaken
			}
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			a.Email = *in.Email
		}
		if in.CreditLimit != nil {
			if in.CreditLimit.LessThan(a.Balance) {
				return fmt.Errorf("%w: %s is below the current balance %s",
					ErrInvalidLimit, in.CreditLimit.String(), a.Balance.String())
			}
			a.CreditLimit = *in.CreditLimit
		}

		a.UpdatedAt = s.now()
		return repo.UpdateProfile(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("account_id", id).Msg("Account updated")
	return s.Get(ctx, id)
}

func validateUpdate(in *UpdateInput) map[string]string {
	errs := make(map[string]string)

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
		if name == "" {
			errs["name"] = "This field is required"
		} else if validator.ValidateVar(name, "max=255") != nil {
			errs["name"] = "Value is too long (max: 255)"
		}
	}
	if in.Email != nil {
		email := NormalizeEmail(*in.Email)
		in.Email = &email
		if email == "" {
			errs["email"] = "This field is required"
		} else if validator.ValidateVar(email, "email,max=255") != nil {
			errs["email"] = "Invalid email format"
		}
	}
	if in.CreditLimit != nil && !validator.IsMoney(*in.CreditLimit) {
		errs["credit_limit"] = validator.MoneyMessage
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Delete removes the account together with its credits and notification log.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var credits, notices int64
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.Queryer) error {
		if _, err := NewRepository(tx).GetForUpdate(ctx, id); err != nil {
			return err
		}

		var err error
		if notices, err = notification.NewRepository(tx).DeleteByAccount(ctx, id); err != nil {
			return err
		}
		if credits, err = credit.NewRepository(tx).DeleteByAccount(ctx, id); err != nil {
			return err
		}
		return NewRepository(tx).Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	log.Info().
		Int64("account_id", id).
		Int64("credits_deleted", credits).
		Int64("notifications_deleted", notices).
		Msg("Account deleted")
	return nil
}

// RequestCredit issues a credit dated today and raises the balance in one transaction,
// then sends a confirmation. A failed confirmation never undoes the credit.
func (s *Service) RequestCredit(ctx context.Context, id int64, amount decimal.Decimal) (int64, error) {
	if !validator.IsMoney(amount) {
		return 0, fmt.Errorf("%w: %w", ErrValidation, credit.ErrInvalidAmount)
	}

	var (
		a *Account
		c *credit.Credit
	)
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.Queryer) error {
		accounts := NewRepository(tx)

		var err error
		if a, err = accounts.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if !a.CanRequest(amount) {
			return fmt.Errorf("%w: balance %s + %s exceeds limit %s",
				ErrLimitExceeded, a.Balance.String(), amount.String(), a.CreditLimit.String())
		}

		now := s.now()
		if c, err = credit.New(a.ID, amount, civil.Of(now), s.policy.DueDays, now); err != nil {
			return err
		}
		if err := credit.NewRepository(tx).Create(ctx, c); err != nil {
			return err
		}
		return accounts.SetBalance(ctx, a.ID, a.Balance.Add(amount), now)
	})
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.CreditsIssuedTotal.Inc()
	}
	log.Info().
		Int64("account_id", id).
		Int64("credit_id", c.ID).
		Str("amount", amount.String()).
		Str("due_date", c.DueDate.String()).
		Msg("Credit issued")

	s.notify(ctx, notification.Notice{
		Kind:      notification.KindConfirmation,
		Recipient: notification.Recipient{AccountID: a.ID, Name: a.Name, Email: a.Email},
		CreditID:  &c.ID,
		Amount:    c.Amount,
		DueDate:   c.DueDate,
	})
	return c.ID, nil
}

// PayCredit settles one of the account's credits and lowers the balance, never below zero.
func (s *Service) PayCredit(ctx context.Context, id, creditID int64) error {
	var c *credit.Credit
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.Queryer) error {
		accounts := NewRepository(tx)
		credits := credit.NewRepository(tx)

		a, err := accounts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if c, err = credits.GetForAccount(ctx, id, creditID); err != nil {
			return err
		}

		now := s.now()
		if err := c.MarkPaid(now); err != nil {
			return err
		}
		if err := credits.MarkPaid(ctx, c); err != nil {
			return err
		}

		balance := a.Balance.Sub(c.Amount)
		if balance.IsNegative() {
			balance = decimal.Zero
		}
		return accounts.SetBalance(ctx, id, balance, now)
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.CreditsPaidTotal.Inc()
	}
	log.Info().
		Int64("account_id", id).
		Int64("credit_id", creditID).
		Str("amount", c.Amount.String()).
		Msg("Credit paid")
	return nil
}

// MarkOverdueCredits flags every unpaid credit of the account whose due date is before today.
// Calling it again the same day changes nothing. A batch passes the day it started on so a run
// that crosses midnight judges every account against the same date.
func (s *Service) MarkOverdueCredits(ctx context.Context, id int64, today civil.Date) (int64, error) {
	var marked int64
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.Queryer) error {
		if _, err := NewRepository(tx).GetForUpdate(ctx, id); err != nil {
			return err
		}
		var err error
		marked, err = credit.NewRepository(tx).MarkOverdue(ctx, id, today)
		return err
	})
	if err != nil {
		return 0, err
	}

	if marked > 0 {
		if s.metrics != nil {
			s.metrics.CreditsMarkedOverdue.Add(float64(marked))
		}
		log.Info().Int64("account_id", id).Int64("marked", marked).Msg("Credits marked overdue")
	}
	return marked, nil
}

// EvaluateBadDebt sets the bad debt flag to whether any unpaid, overdue credit fell due more than
// thresholdDays before today, and returns the new flag. The flag clears once those credits are paid.
func (s *Service) EvaluateBadDebt(ctx context.Context, id int64, thresholdDays int, today civil.Date) (bool, error) {
	var flag, changed bool
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.Queryer) error {
		accounts := NewRepository(tx)

		a, err := accounts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}

		count, err := credit.NewRepository(tx).CountBadDebt(ctx, id, today.AddDays(-thresholdDays))
		if err != nil {
			return err
		}

		flag = count > 0
		if flag == a.BadDebt {
			return nil
		}
		changed = true
		return accounts.SetBadDebt(ctx, id, flag, s.now())
	})
	if err != nil {
		return false, err
	}

	if changed {
		log.Info().Int64("account_id", id).Bool("bad_debt", flag).Msg("Bad debt flag changed")
	}
	return flag, nil
}

func (s *Service) notify(ctx context.Context, n notification.Notice) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Dispatch(ctx, n); err != nil {
		log.Error().Err(err).
			Int64("account_id", n.Recipient.AccountID).
			Str("kind", string(n.Kind)).
			Msg("Failed to record notification")
	}
}
