package account

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account is a customer's credit-ledger identity.
// Balance is the running sum of unpaid credit and never exceeds CreditLimit.
type Account struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Email       string          `db:"email" json:"email"`
	CreditLimit decimal.Decimal `db:"credit_limit" json:"credit_limit"`
	Balance     decimal.Decimal `db:"balance" json:"balance"`
	BadDebt     bool            `db:"bad_debt" json:"bad_debt"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Available returns the credit still available under the limit
func (a *Account) Available() decimal.Decimal {
	return a.CreditLimit.Sub(a.Balance)
}

// CanRequest reports whether issuing amount keeps balance within the limit
func (a *Account) CanRequest(amount decimal.Decimal) bool {
	return !a.Balance.Add(amount).GreaterThan(a.CreditLimit)
}

// RegisterInput is the payload for registering an account
type RegisterInput struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Email       string          `json:"email" validate:"required,email,max=255"`
	CreditLimit decimal.Decimal `json:"credit_limit" validate:"money"`
}

// UpdateInput is a partial update: nil fields are left unchanged
type UpdateInput struct {
	Name        *string
	Email       *string
	CreditLimit *decimal.Decimal
}

// IsEmpty reports whether the update changes nothing
func (in UpdateInput) IsEmpty() bool {
	return in.Name == nil && in.Email == nil && in.CreditLimit == nil
}

// Policy holds the ledger constants the account needs
type Policy struct {
	DueDays int // credit due period
}

// NormalizeEmail lower-cases and trims an email so lookups are case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
