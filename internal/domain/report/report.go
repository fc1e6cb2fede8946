// Package report serves the read-only ledger reports.
package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/khatabook/creditbook/internal/pkg/civil"
	"github.com/khatabook/creditbook/internal/pkg/database"
)

var ErrInternal = errors.New("internal error")

// OverdueRow is one unpaid, overdue credit with its account
type OverdueRow struct {
	AccountID int64           `db:"account_id" json:"account_id"`
	Name      string          `db:"name" json:"name"`
	Email     string          `db:"email" json:"email"`
	CreditID  int64           `db:"credit_id" json:"credit_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	DueDate   civil.Date      `db:"due_date" json:"due_date"`
}

// BadDebtRow is one account flagged as bad debt
type BadDebtRow struct {
	AccountID int64           `db:"account_id" json:"account_id"`
	Name      string          `db:"name" json:"name"`
	Email     string          `db:"email" json:"email"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
}

type Service struct {
	db database.Queryer
}

func NewService(db database.Queryer) *Service {
	return &Service{db: db}
}

// Overdue lists unpaid, overdue credits, oldest due date first.
func (s *Service) Overdue(ctx context.Context) ([]OverdueRow, error) {
	rows := make([]OverdueRow, 0)
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id AS account_id, a.name, a.email, c.id AS credit_id, c.amount, c.due_date
		FROM credits c
		JOIN accounts a ON a.id = c.account_id
		WHERE c.overdue = TRUE AND c.paid = FALSE
		ORDER BY c.due_date, c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: overdue report: %v", ErrInternal, err)
	}
	return rows, nil
}

// BadDebt lists accounts carrying the bad debt flag.
func (s *Service) BadDebt(ctx context.Context) ([]BadDebtRow, error) {
	rows := make([]BadDebtRow, 0)
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id AS account_id, name, email, balance
		FROM accounts
		WHERE bad_debt = TRUE
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: bad debt report: %v", ErrInternal, err)
	}
	return rows, nil
}
