package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khatabook/creditbook/internal/domain/account"
	"github.com/khatabook/creditbook/internal/domain/report"
	"github.com/khatabook/creditbook/internal/pkg/civil"
	"github.com/khatabook/creditbook/internal/pkg/database/dbtest"
)

func TestReports(t *testing.T) {
	db := dbtest.NewSQLite(t)
	ctx := context.Background()

	now := time.Date(2026, time.January, 1, 9, 0, 0, 0, time.UTC)
	accounts := account.NewService(db, account.Policy{DueDays: 30}, nil, nil)
	accounts.SetClock(func() time.Time { return now })

	late, err := accounts.Register(ctx, account.RegisterInput{Name: "Late", Email: "late@example.com", CreditLimit: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	onTime, err := accounts.Register(ctx, account.RegisterInput{Name: "OnTime", Email: "ontime@example.com", CreditLimit: decimal.NewFromInt(1000)})
	require.NoError(t, err)

	lateCredit, err := accounts.RequestCredit(ctx, late.ID, decimal.RequireFromString("150.50"))
	require.NoError(t, err)
	paidCredit, err := accounts.RequestCredit(ctx, late.ID, decimal.NewFromInt(20))
	require.NoError(t, err)
	_, err = accounts.RequestCredit(ctx, onTime.ID, decimal.NewFromInt(75))
	require.NoError(t, err)
	require.NoError(t, accounts.PayCredit(ctx, late.ID, paidCredit))

	svc := report.NewService(db)

	rows, err := svc.Overdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	now = now.AddDate(0, 0, 100)
	_, err = accounts.MarkOverdueCredits(ctx, late.ID, civil.Of(now))
	require.NoError(t, err)
	_, err = accounts.EvaluateBadDebt(ctx, late.ID, 60, civil.Of(now))
	require.NoError(t, err)

	rows, err = svc.Overdue(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, late.ID, rows[0].AccountID)
	assert.Equal(t, lateCredit, rows[0].CreditID)
	assert.Equal(t, "late@example.com", rows[0].Email)
	assert.True(t, decimal.RequireFromString("150.50").Equal(rows[0].Amount))
	assert.Equal(t, "2026-01-31", rows[0].DueDate.String())

	bad, err := svc.BadDebt(ctx)
	require.NoError(t, err)
	require.Len(t, bad, 1)
	assert.Equal(t, "Late", bad[0].Name)
	assert.True(t, decimal.RequireFromString("150.50").Equal(bad[0].Balance))
}
