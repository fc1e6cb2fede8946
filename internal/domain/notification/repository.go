package notification

import (
	"context"
	"fmt"

	"github.com/khatabook/creditbook/internal/pkg/database"
)

const selectColumns = `id, account_id, credit_id, kind, status, failure_reason, sent_at, sent_on`

// Repository provides access to the notification log. Entries are only ever appended,
// and removed by the account delete cascade.
type Repository struct {
	db database.Queryer
}

func NewRepository(db database.Queryer) *Repository {
	return &Repository{db: db}
}

// Append inserts e and fills in its ID.
func (r *Repository) Append(ctx context.Context, e *Entry) error {
	err := r.db.GetContext(ctx, &e.ID, r.db.Rebind(`
		INSERT INTO notifications (account_id, credit_id, kind, status, failure_reason, sent_at, sent_on)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), e.AccountID, e.CreditID, e.Kind, e.Status, e.FailureReason, e.SentAt, e.SentOn)
	if err != nil {
		return fmt.Errorf("%w: append notification: %v", ErrInternal, err)
	}
	return nil
}

// ListByAccount returns the account's log, oldest first.
func (r *Repository) ListByAccount(ctx context.Context, accountID int64) ([]Entry, error) {
	entries := make([]Entry, 0)
	err := r.db.SelectContext(ctx, &entries, r.db.Rebind(`
		SELECT `+selectColumns+`
		FROM notifications
		WHERE account_id = ?
		ORDER BY id
	`), accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: list notifications: %v", ErrInternal, err)
	}
	return entries, nil
}

// ListAll returns the whole log, oldest first.
func (r *Repository) ListAll(ctx context.Context) ([]Entry, error) {
	entries := make([]Entry, 0)
	if err := r.db.SelectContext(ctx, &entries, `SELECT `+selectColumns+` FROM notifications ORDER BY id`); err != nil {
		return nil, fmt.Errorf("%w: list notifications: %v", ErrInternal, err)
	}
	return entries, nil
}

// HasDelivered reports whether a delivered entry exists for the key.
func (r *Repository) HasDelivered(ctx context.Context, key Key) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE account_id = ? AND kind = ? AND sent_on = ? AND status = ?`
	args := []interface{}{key.AccountID, key.Kind, key.Day, StatusDelivered}
	if key.CreditID != nil {
		query += ` AND credit_id = ?`
		args = append(args, *key.CreditID)
	} else {
		query += ` AND credit_id IS NULL`
	}

	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind(query), args...); err != nil {
		return false, fmt.Errorf("%w: check notification log: %v", ErrInternal, err)
	}
	return count > 0, nil
}

// DeleteByAccount removes the account's log. Only called from the account delete cascade.
func (r *Repository) DeleteByAccount(ctx context.Context, accountID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM notifications WHERE account_id = ?`), accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete notifications: %v", ErrInternal, err)
	}
	return result.RowsAffected()
}
