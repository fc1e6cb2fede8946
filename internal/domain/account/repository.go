package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/khatabook/creditbook/internal/pkg/database"
)

const selectColumns = `id, name, email, credit_limit, balance, bad_debt, created_at, updated_at`

// Repository provides account storage over a *sqlx.DB or a *sqlx.Tx.
type Repository struct {
	db database.Queryer
}

func NewRepository(db database.Queryer) *Repository {
	return &Repository{db: db}
}

// Create inserts a and fills in its ID.
func (r *Repository) Create(ctx context.Context, a *Account) error {
	err := r.db.GetContext(ctx, &a.ID, r.db.Rebind(`
		INSERT INTO accounts (name, email, credit_limit, balance, bad_debt, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`), a.Name, a.Email, a.CreditLimit, a.Balance, a.BadDebt, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("%w: insert account: %v", ErrInternal, err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Account, error) {
	return r.get(ctx, `SELECT `+selectColumns+` FROM accounts WHERE id = ?`, id)
}

// GetForUpdate loads the account row and, on PostgreSQL, locks it until the transaction ends.
// SQLite serialises writers on its own.
func (r *Repository) GetForUpdate(ctx context.Context, id int64) (*Account, error) {
	query := `SELECT ` + selectColumns + ` FROM accounts WHERE id = ?`
	if r.db.DriverName() == database.DriverPostgres {
		query += ` FOR UPDATE`
	}
	return r.get(ctx, query, id)
}

// GetByEmail expects an already normalised email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.get(ctx, `SELECT `+selectColumns+` FROM accounts WHERE email = ?`, email)
}

func (r *Repository) get(ctx context.Context, query string, arg interface{}) (*Account, error) {
	var a Account
	if err := r.db.GetContext(ctx, &a, r.db.Rebind(query), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get account: %v", ErrInternal, err)
	}
	return &a, nil
}

// List returns every account in id order.
func (r *Repository) List(ctx context.Context) ([]Account, error) {
	accounts := make([]Account, 0)
	if err := r.db.SelectContext(ctx, &accounts, `SELECT `+selectColumns+` FROM accounts ORDER BY id`); err != nil {
		return nil, fmt.Errorf("%w: list accounts: %v", ErrInternal, err)
	}
	return accounts, nil
}

// UpdateProfile writes name, email and credit limit.
func (r *Repository) UpdateProfile(ctx context.Context, a *Account) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE accounts
		SET name = ?, email = ?, credit_limit = ?, updated_at = ?
		WHERE id = ?
	`), a.Name, a.Email, a.CreditLimit, a.UpdatedAt, a.ID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("%w: update account: %v", ErrInternal, err)
	}
	return nil
}

func (r *Repository) SetBalance(ctx context.Context, id int64, balance decimal.Decimal, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE accounts SET balance = ?, updated_at = ? WHERE id = ?
	`), balance, now, id)
	if err != nil {
		return fmt.Errorf("%w: update balance: %v", ErrInternal, err)
	}
	return nil
}

func (r *Repository) SetBadDebt(ctx context.Context, id int64, flag bool, now time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE accounts SET bad_debt = ?, updated_at = ? WHERE id = ?
	`), flag, now, id)
	if err != nil {
		return fmt.Errorf("%w: update bad debt flag: %v", ErrInternal, err)
	}
	return nil
}

// Delete removes the account row. Credits and notifications must be gone first.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM accounts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("%w: delete account: %v", ErrInternal, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", ErrInternal, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
