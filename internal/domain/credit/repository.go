package credit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/khatabook/creditbook/internal/pkg/civil"
	"github.com/khatabook/creditbook/internal/pkg/database"
)

const selectColumns = `id, account_id, amount, issue_date, due_date, paid, overdue, paid_at, created_at`

// Repository provides credit record storage. Bind it to a *sqlx.DB for single statements
// or to a *sqlx.Tx to take part in a larger transaction.
type Repository struct {
	db database.Queryer
}

func NewRepository(db database.Queryer) *Repository {
	return &Repository{db: db}
}

// Create inserts c and fills in its ID.
func (r *Repository) Create(ctx context.Context, c *Credit) error {
	err := r.db.GetContext(ctx, &c.ID, r.db.Rebind(`
		INSERT INTO credits (account_id, amount, issue_date, due_date, paid, overdue, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), c.AccountID, c.Amount, c.IssueDate, c.DueDate, c.Paid, c.Overdue, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert credit: %v", ErrInternal, err)
	}
	return nil
}

// GetForAccount loads a credit only if it belongs to accountID.
func (r *Repository) GetForAccount(ctx context.Context, accountID, creditID int64) (*Credit, error) {
	var c Credit
	err := r.db.GetContext(ctx, &c, r.db.Rebind(`
		SELECT `+selectColumns+`
		FROM credits
		WHERE id = ? AND account_id = ?
	`), creditID, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get credit: %v", ErrInternal, err)
	}
	return &c, nil
}

// ListByAccount returns every credit of an account, oldest first.
func (r *Repository) ListByAccount(ctx context.Context, accountID int64) ([]Credit, error) {
	credits := make([]Credit, 0)
	err := r.db.SelectContext(ctx, &credits, r.db.Rebind(`
		SELECT `+selectColumns+`
		FROM credits
		WHERE account_id = ?
		ORDER BY id
	`), accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list credits: %v", ErrInternal, err)
	}
	return credits, nil
}

// ListUnpaidByAccount returns the unpaid credits of an account in insertion order.
func (r *Repository) ListUnpaidByAccount(ctx context.Context, accountID int64) ([]Credit, error) {
	credits := make([]Credit, 0)
	err := r.db.SelectContext(ctx, &credits, r.db.Rebind(`
		SELECT `+selectColumns+`
		FROM credits
		WHERE account_id = ? AND paid = FALSE
		ORDER BY id
	`), accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list unpaid credits: %v", ErrInternal, err)
	}
	return credits, nil
}

// ListAll returns every credit; used for backups.
func (r *Repository) ListAll(ctx context.Context) ([]Credit, error) {
	credits := make([]Credit, 0)
	if err := r.db.SelectContext(ctx, &credits, `SELECT `+selectColumns+` FROM credits ORDER BY id`); err != nil {
		return nil, fmt.Errorf("%w: list credits: %v", ErrInternal, err)
	}
	return credits, nil
}

// MarkPaid persists a paid credit. The paid = FALSE guard makes a concurrent second payment fail.
func (r *Repository) MarkPaid(ctx context.Context, c *Credit) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE credits
		SET paid = TRUE, overdue = FALSE, paid_at = ?
		WHERE id = ? AND paid = FALSE
	`), c.PaidAt, c.ID)
	if err != nil {
		return fmt.Errorf("%w: mark credit paid: %v", ErrInternal, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrInternal, err)
	}
	if rows == 0 {
		return ErrAlreadyPaid
	}
	return nil
}

// MarkOverdue flags every unpaid, not yet overdue credit of the account whose due date is before today.
func (r *Repository) MarkOverdue(ctx context.Context, accountID int64, today civil.Date) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE credits
		SET overdue = TRUE
		WHERE account_id = ? AND overdue = FALSE AND paid = FALSE AND due_date < ?
	`), accountID, today)
	if err != nil {
		return 0, fmt.Errorf("%w: mark overdue: %v", ErrInternal, err)
	}
	return result.RowsAffected()
}

// CountBadDebt counts unpaid, overdue credits of the account that fell due before cutoff.
func (r *Repository) CountBadDebt(ctx context.Context, accountID int64, cutoff civil.Date) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`
		SELECT COUNT(*)
		FROM credits
		WHERE account_id = ? AND overdue = TRUE AND paid = FALSE AND due_date < ?
	`), accountID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: count bad debt: %v", ErrInternal, err)
	}
	return count, nil
}

// DeleteByAccount removes every credit of an account. Only called from the account delete cascade.
func (r *Repository) DeleteByAccount(ctx context.Context, accountID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM credits WHERE account_id = ?`), accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete credits: %v", ErrInternal, err)
	}
	return result.RowsAffected()
}
