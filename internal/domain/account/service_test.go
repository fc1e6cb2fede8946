package account_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khatabook/creditbook/internal/domain/account"
	"github.com/khatabook/creditbook/internal/domain/credit"
	"github.com/khatabook/creditbook/internal/domain/notification"
	"github.com/khatabook/creditbook/internal/pkg/civil"
	"github.com/khatabook/creditbook/internal/pkg/database/dbtest"
	"github.com/khatabook/creditbook/internal/pkg/email"
	"github.com/khatabook/creditbook/internal/pkg/metrics"
)

type fakeTransport struct {
	sent []*email.Message
	err  error
}

func (f *fakeTransport) Send(ctx context.Context, msg *email.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time    { return c.t }
func (c *clock) today() civil.Date { return civil.Of(c.t) }
func (c *clock) advance(days int)  { c.t = c.t.AddDate(0, 0, days) }

type fixture struct {
	db        *sqlx.DB
	svc       *account.Service
	transport *fakeTransport
	clock     *clock
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.NewSQLite(t)
	f := &fixture{
		db:        db,
		transport: &fakeTransport{},
		clock:     &clock{t: time.Date(2026, time.January, 1, 10, 0, 0, 0, time.UTC)},
		metrics:   metrics.New(),
	}

	dispatcher, err := notification.NewDispatcher(notification.NewRepository(db), f.transport, nil, f.metrics)
	require.NoError(t, err)
	dispatcher.SetClock(f.clock.now)

	f.svc = account.NewService(db, account.Policy{DueDays: 30}, dispatcher, f.metrics)
	f.svc.SetClock(f.clock.now)
	return f
}

func (f *fixture) register(t *testing.T, email string, limit int64) *account.Account {
	t.Helper()
	a, err := f.svc.Register(context.Background(), account.RegisterInput{
		Name:        "Asha",
		Email:       email,
		CreditLimit: decimal.NewFromInt(limit),
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) balance(t *testing.T, id int64) decimal.Decimal {
	t.Helper()
	a, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.register(t, "  Asha@Example.COM ", 1000)
	assert.Equal(t, "asha@example.com", a.Email)
	assert.True(t, a.Balance.IsZero())
	assert.False(t, a.BadDebt)

	got, err := f.svc.GetByEmail(ctx, "ASHA@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = f.svc.Register(ctx, account.RegisterInput{Name: "Other", Email: "asha@EXAMPLE.com", CreditLimit: dec(10)})
	assert.ErrorIs(t, err, account.ErrEmailTaken)
	assert.ErrorIs(t, err, account.ErrValidation)

	_, err = f.svc.Register(ctx, account.RegisterInput{Name: "Zero", Email: "zero@example.com", CreditLimit: decimal.Zero})
	var verr *account.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "credit_limit")
	assert.ErrorIs(t, err, account.ErrValidation)

	_, err = f.svc.Register(ctx, account.RegisterInput{Name: "", Email: "not-an-email", CreditLimit: dec(5)})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")
	assert.Contains(t, verr.Fields, "email")

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRequestCreditLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com", 1000)

	creditID, err := f.svc.RequestCredit(ctx, a.ID, dec(500))
	require.NoError(t, err)
	assert.NotZero(t, creditID)
	assert.True(t, dec(500).Equal(f.balance(t, a.ID)))

	_, err = f.svc.RequestCredit(ctx, a.ID, dec(600))
	assert.ErrorIs(t, err, account.ErrLimitExceeded)
	assert.True(t, dec(500).Equal(f.balance(t, a.ID)))
	assert.Equal(t, 1, dbtest.Count(t, f.db, "credits", ""))

	_, err = f.svc.RequestCredit(ctx, a.ID, dec(500))
	require.NoError(t, err, "reaching the limit exactly is allowed")
	assert.True(t, dec(1000).Equal(f.balance(t, a.ID)))

	_, err = f.svc.RequestCredit(ctx, a.ID, decimal.RequireFromString("0.01"))
	assert.ErrorIs(t, err, account.ErrLimitExceeded)
}

func TestRequestCreditRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com", 1000)

	_, err := f.svc.RequestCredit(ctx, a.ID, decimal.Zero)
	assert.ErrorIs(t, err, credit.ErrInvalidAmount)
	assert.ErrorIs(t, err, account.ErrValidation)

	_, err = f.svc.RequestCredit(ctx, a.ID+99, dec(10))
	assert.ErrorIs(t, err, account.ErrNotFound)
	assert.Equal(t, 0, dbtest.Count(t, f.db, "credits", ""))
}

func TestMoneyPrecisionIsEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, account.RegisterInput{Name: "Tiny", Email: "tiny@example.com", CreditLimit: decimal.RequireFromString("0.001")})
	var verr *account.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "credit_limit")
	assert.Equal(t, 0, dbtest.Count(t, f.db, "accounts", ""))

	a := f.register(t, "a@example.com", 1000)

	_, err = f.svc.RequestCredit(ctx, a.ID, decimal.RequireFromString("0.004"))
	assert.ErrorIs(t, err, account.ErrValidation)
	assert.ErrorIs(t, err, credit.ErrInvalidAmount)
	assert.True(t, f.balance(t, a.ID).IsZero())
	assert.Empty(t, f.transport.sent)

	_, err = f.svc.RequestCredit(ctx, a.ID, decimal.RequireFromString("10.125"))
	assert.ErrorIs(t, err, account.ErrValidation)
	assert.Equal(t, 0, dbtest.Count(t, f.db, "credits", ""))

	limit := decimal.RequireFromString("1500.255")
	_, err = f.svc.Update(ctx, a.ID, account.UpdateInput{CreditLimit: &limit})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "credit_limit")

	_, err = f.svc.RequestCredit(ctx, a.ID, decimal.RequireFromString("10.25"))
	require.NoError(t, err)
	assert.Equal(t, "10.25", f.balance(t, a.ID).StringFixed(2))
	require.Len(t, f.transport.sent, 1)
	assert.Contains(t, f.transport.sent[0].Body, "10.25")
}

func TestRequestCreditConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com", 1000)

	creditID, err := f.svc.RequestCredit(ctx, a.ID, dec(200))
	require.NoError(t, err)

	require.Len(t, f.transport.sent, 1)
	assert.Equal(t, "Credit Request Confirmation", f.transport.sent[0].Subject)
	assert.Contains(t, f.transport.sent[0].Body, "200.00")
	assert.Contains(t, f.transport.sent[0].Body, "2026-01-31")
	assert.Equal(t, 1, dbtest.Count(t, f.db, "notifications", "credit_id = ? AND kind = ?", creditID, "credit_request_confirmation"))
}

func TestRequestCreditSurvivesMailFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com", 1000)
	f.transport.err = errors.New("smtp: 421 service not available")

	_, err := f.svc.RequestCredit(ctx, a.ID, dec(200))
	require.NoError(t, err)

	assert.True(t, dec(200).Equal(f.balance(t, a.ID)))
	assert.Equal(t, 1, dbtest.Count(t, f.db, "notifications", "status = ?", "failed"))
}

func TestPayCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com", 1000)
	other := f.register(t, "b@example.com", 1000)

	creditID, err := f.svc.RequestCredit(ctx, a.ID, dec(300))
	require.NoError(t, err)
	_, err = f.svc.RequestCredit(ctx, a.ID, dec(100))
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.PayCredit(ctx, other.ID, creditID), credit.ErrNotFound)
	assert.ErrorIs(t, f.svc.PayCredit(ctx, a.ID, creditID+50), credit.ErrNotFound)

	require.NoError(t, f.svc.PayCredit(ctx, a.ID, creditID))
	assert.True(t, dec(100).Equal(f.balance(t, a.ID)))

	err = f.svc.PayCredit(ctx, a.ID, creditID)
	assert.ErrorIs(t, err, credit.ErrAlreadyPaid)
	assert.True(t, dec(100).Equal(f.balance(t, a.ID)), "retry leaves balance unchanged")

	credits, err := f.svc.Credits(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, credits, 2)
	assert.True(t, credits[0].Paid)
	assert.False(t, credits[0].Overdue)
	assert.False(t, credits[1].Paid)
}

func TestPayCreditFloorsBalanceAtZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com", 1000)

	creditID, err := f.svc.RequestCredit(ctx, a.ID, dec(300))
	require.NoError(t, err)
	_, err = f.db.Exec(f.db.Rebind(`UPDATE accounts SET balance = ? WHERE id = ?`), "100", a.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.PayCredit(ctx, a.ID, creditID))
	assert.True(t, f.balance(t, a.ID).IsZero())
}

func TestPayCreditClearsOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com", 1000)

	creditID, err := f.svc.RequestCredit(ctx, a.ID, dec(300))
	require.NoError(t, err)

	f.clock.advance(31)
	marked, err := f.svc.MarkOverdueCredits(ctx, a.ID, f.clock.today())
	require.NoError(t, err)
	assert.EqualValues(t, 1, marked)

	require.NoError(t, f.svc.PayCredit(ctx, a.ID, creditID))
	assert.Equal(t, 0, dbtest.Count(t, f.db, "credits", "overdue = ?", true))
}

func TestMarkOverdueCreditsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com", 1000)

	_, err := f.svc.RequestCredit(ctx, a.ID, dec(100))
	require.NoError(t, err)
	f.clock.advance(10)
	_, err = f.svc.RequestCredit(ctx, a.ID, dec(100))
	require.NoError(t, err)

	f.clock.advance(20) // day 30: first credit due today, not yet overdue
	marked, err := f.svc.MarkOverdueCredits(ctx, a.ID, f.clock.today())
	require.NoError(t, err)
	assert.EqualValues(t, 0, marked)

	f.clock.advance(1)
	for i := 0; i < 3; i++ {
		_, err := f.svc.MarkOverdueCredits(ctx, a.ID, f.clock.today())
		require.NoError(t, err)
		assert.Equal(t, 1, dbtest.Count(t, f.db, "credits", "overdue = ?", true))
	}

	_, err = f.svc.MarkOverdueCredits(ctx, a.ID+10, f.clock.today())
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestEvaluateBadDebt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com", 1000)

	creditID, err := f.svc.RequestCredit(ctx, a.ID, dec(200))
	require.NoError(t, err)

	f.clock.advance(30 + 60) // exactly 60 days past due
	_, err = f.svc.MarkOverdueCredits(ctx, a.ID, f.clock.today())
	require.NoError(t, err)
	flag, err := f.svc.EvaluateBadDebt(ctx, a.ID, 60, f.clock.today())
	require.NoError(t, err)
	assert.False(t, flag)

	f.clock.advance(1) // 61 days past due
	flag, err = f.svc.EvaluateBadDebt(ctx, a.ID, 60, f.clock.today())
	require.NoError(t, err)
	assert.True(t, flag)

	got, err := f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.BadDebt)

	require.NoError(t, f.svc.PayCredit(ctx, a.ID, creditID))
	flag, err = f.svc.EvaluateBadDebt(ctx, a.ID, 60, f.clock.today())
	require.NoError(t, err)
	assert.False(t, flag)

	got, err = f.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.BadDebt)
}

func TestEvaluateBadDebtIgnoresUnflaggedCredits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com", 1000)

	_, err := f.svc.RequestCredit(ctx, a.ID, dec(200))
	require.NoError(t, err)

	f.clock.advance(120)
	flag, err := f.svc.EvaluateBadDebt(ctx, a.ID, 60, f.clock.today())
	require.NoError(t, err)
	assert.False(t, flag, "only credits already marked overdue count")
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com", 1000)
	f.register(t, "taken@example.com", 1000)

	name := "Asha Rao"
	got, err := f.svc.Update(ctx, a.ID, account.UpdateInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", got.Name)
	assert.Equal(t, "a@example.com", got.Email)
	assert.True(t, dec(1000).Equal(got.CreditLimit))

	newEmail := " New@Example.com"
	got, err = f.svc.Update(ctx, a.ID, account.UpdateInput{Email: &newEmail})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)

	taken := "TAKEN@example.com"
	_, err = f.svc.Update(ctx, a.ID, account.UpdateInput{Email: &taken})
	assert.ErrorIs(t, err, account.ErrEmailTaken)

	blank := "   "
	_, err = f.svc.Update(ctx, a.ID, account.UpdateInput{Name: &blank})
	var verr *account.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "name")

	_, err = f.svc.Update(ctx, a.ID, account.UpdateInput{Email: &blank})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")

	_, err = f.svc.RequestCredit(ctx, a.ID, dec(400))
	require.NoError(t, err)

	low := dec(300)
	_, err = f.svc.Update(ctx, a.ID, account.UpdateInput{CreditLimit: &low})
	assert.ErrorIs(t, err, account.ErrInvalidLimit)
	assert.ErrorIs(t, err, account.ErrValidation)

	negative := dec(-1)
	_, err = f.svc.Update(ctx, a.ID, account.UpdateInput{CreditLimit: &negative})
	require.ErrorAs(t, err, &verr)

	limit := dec(400)
	got, err = f.svc.Update(ctx, a.ID, account.UpdateInput{CreditLimit: &limit})
	require.NoError(t, err)
	assert.True(t, dec(400).Equal(got.CreditLimit))
	assert.Equal(t, "Asha Rao", got.Name)

	got, err = f.svc.Update(ctx, a.ID, account.UpdateInput{})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)

	_, err = f.svc.Update(ctx, a.ID+10, account.UpdateInput{Name: &name})
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com", 1000)
	keep := f.register(t, "keep@example.com", 1000)

	_, err := f.svc.RequestCredit(ctx, a.ID, dec(100))
	require.NoError(t, err)
	_, err = f.svc.RequestCredit(ctx, a.ID, dec(100))
	require.NoError(t, err)
	_, err = f.svc.RequestCredit(ctx, keep.ID, dec(100))
	require.NoError(t, err)

	// third notification for the account: an account-level notice
	dispatcher, err := notification.NewDispatcher(notification.NewRepository(f.db), f.transport, nil, nil)
	require.NoError(t, err)
	_, err = dispatcher.Dispatch(ctx, notification.Notice{
		Kind:      notification.KindBadDebtWarning,
		Recipient: notification.Recipient{AccountID: a.ID, Name: a.Name, Email: a.Email},
		Days:      60,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, dbtest.Count(t, f.db, "credits", "account_id = ?", a.ID))
	assert.Equal(t, 3, dbtest.Count(t, f.db, "notifications", "account_id = ?", a.ID))

	require.NoError(t, f.svc.Delete(ctx, a.ID))

	assert.Equal(t, 0, dbtest.Count(t, f.db, "accounts", "id = ?", a.ID))
	assert.Equal(t, 0, dbtest.Count(t, f.db, "credits", "account_id = ?", a.ID))
	assert.Equal(t, 0, dbtest.Count(t, f.db, "notifications", "account_id = ?", a.ID))
	assert.Equal(t, 1, dbtest.Count(t, f.db, "accounts", ""))
	assert.Equal(t, 1, dbtest.Count(t, f.db, "credits", ""))
	assert.Equal(t, 1, dbtest.Count(t, f.db, "notifications", ""))

	_, err = f.svc.Get(ctx, a.ID)
	assert.ErrorIs(t, err, account.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, a.ID), account.ErrNotFound)
}

func TestBalanceNeverExceedsLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "a@example.com", 1000)

	amounts := []int64{250, 400, 500, 300, 50, 1, 700, 200}
	var issued []int64
	for i, amount := range amounts {
		id, err := f.svc.RequestCredit(ctx, a.ID, dec(amount))
		if err == nil {
			issued = append(issued, id)
		} else {
			require.ErrorIs(t, err, account.ErrLimitExceeded)
		}
		if i%3 == 2 && len(issued) > 0 {
			require.NoError(t, f.svc.PayCredit(ctx, a.ID, issued[0]))
			issued = issued[1:]
		}

		got, err := f.svc.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, got.Balance.GreaterThan(got.CreditLimit), "step %d: balance %s > limit %s", i, got.Balance, got.CreditLimit)
		assert.False(t, got.Balance.IsNegative())
	}
}
