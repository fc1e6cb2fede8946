package credit

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/khatabook/creditbook/internal/pkg/civil"
	"github.com/khatabook/creditbook/internal/pkg/validator"
)

// Credit is one extension of credit against an account's limit.
// Paid moves false->true exactly once; a paid credit is never overdue.
type Credit struct {
	ID        int64           `db:"id" json:"id"`
	AccountID int64           `db:"account_id" json:"account_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	IssueDate civil.Date      `db:"issue_date" json:"issue_date"`
	DueDate   civil.Date      `db:"due_date" json:"due_date"`
	Paid      bool            `db:"paid" json:"paid"`
	Overdue   bool            `db:"overdue" json:"overdue"`
	PaidAt    sql.NullTime    `db:"paid_at" json:"paid_at"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// New builds an unpaid credit issued on issued and due duePeriodDays later.
func New(accountID int64, amount decimal.Decimal, issued civil.Date, duePeriodDays int, now time.Time) (*Credit, error) {
	if !validator.IsMoney(amount) {
		return nil, ErrInvalidAmount
	}
	return &Credit{
		AccountID: accountID,
		Amount:    amount,
		IssueDate: issued,
		DueDate:   issued.AddDays(duePeriodDays),
		CreatedAt: now,
	}, nil
}

// DaysUntilDue is due_date - today: positive before the due date, negative after it.
func (c *Credit) DaysUntilDue(today civil.Date) int {
	return c.DueDate.DaysSince(today)
}

// ShouldMarkOverdue reports whether the credit is unpaid, not yet flagged and past due.
func (c *Credit) ShouldMarkOverdue(today civil.Date) bool {
	return !c.Paid && !c.Overdue && c.DueDate.Before(today)
}

// CountsAsBadDebt reports whether an unpaid, overdue credit fell due before today - thresholdDays.
func (c *Credit) CountsAsBadDebt(today civil.Date, thresholdDays int) bool {
	return !c.Paid && c.Overdue && c.DueDate.Before(today.AddDays(-thresholdDays))
}

// MarkPaid settles the credit and clears its overdue flag.
func (c *Credit) MarkPaid(at time.Time) error {
	if c.Paid {
		return ErrAlreadyPaid
	}
	c.Paid = true
	c.Overdue = false
	c.PaidAt = sql.NullTime{Time: at, Valid: true}
	return nil
}
