package notification

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/khatabook/creditbook/internal/pkg/civil"
)

// Kind represents notification kind
type Kind string

const (
	KindConfirmation   Kind = "credit_request_confirmation" // Credit issued
	KindOverdueAlert   Kind = "overdue_alert"               // Before due, due today, overdue
	KindBadDebtWarning Kind = "bad_debt_warning"            // Account-level, no credit
)

// Status is the delivery outcome recorded in the log
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Stage selects the overdue alert wording
type Stage string

const (
	StageBeforeDue Stage = "before_due"
	StageDueToday  Stage = "due_today"
	StageOverdue   Stage = "overdue"
)

// Entry is one row of the append-only notification log
type Entry struct {
	ID            int64          `db:"id" json:"id"`
	AccountID     int64          `db:"account_id" json:"account_id"`
	CreditID      sql.NullInt64  `db:"credit_id" json:"credit_id"`
	Kind          Kind           `db:"kind" json:"kind"`
	Status        Status         `db:"status" json:"status"`
	FailureReason sql.NullString `db:"failure_reason" json:"failure_reason"`
	SentAt        time.Time      `db:"sent_at" json:"sent_at"`
	SentOn        civil.Date     `db:"sent_on" json:"sent_on"`
}

// Delivered reports whether the mail transport accepted the message
func (e *Entry) Delivered() bool {
	return e.Status == StatusDelivered
}

// Recipient is the account a notice is addressed to
type Recipient struct {
	AccountID int64
	Name      string
	Email     string
}

// Notice is a request to notify an account. CreditID is nil for account-level notices.
type Notice struct {
	Kind      Kind
	Recipient Recipient
	CreditID  *int64
	Amount    decimal.Decimal
	DueDate   civil.Date
	Stage     Stage
	Days      int
}

// Key identifies a notice for deduplication: one per account, credit, kind and day
type Key struct {
	AccountID int64
	CreditID  *int64
	Kind      Kind
	Day       civil.Date
}

func (k Key) String() string {
	credit := "-"
	if k.CreditID != nil {
		credit = fmt.Sprintf("%d", *k.CreditID)
	}
	return fmt.Sprintf("notify:%d:%s:%s:%s", k.AccountID, credit, k.Kind, k.Day)
}

// TemplateData is what every mail template is executed with
type TemplateData struct {
	Name    string
	Amount  string
	DueDate string
	Stage   string
	Days    int
}

func (n *Notice) key(day civil.Date) Key {
	return Key{AccountID: n.Recipient.AccountID, CreditID: n.CreditID, Kind: n.Kind, Day: day}
}

func (n *Notice) templateData() TemplateData {
	data := TemplateData{
		Name:  n.Recipient.Name,
		Stage: string(n.Stage),
		Days:  n.Days,
	}
	if !n.Amount.IsZero() {
		data.Amount = n.Amount.StringFixed(2)
	}
	if !n.DueDate.IsZero() {
		data.DueDate = n.DueDate.String()
	}
	return data
}

func (n *Notice) creditID() sql.NullInt64 {
	if n.CreditID == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n.CreditID, Valid: true}
}
