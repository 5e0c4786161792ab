package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusPaid       = "paid"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"
)

var validStatuses = map[string]bool{
	StatusPending: true, StatusProcessing: true, StatusPaid: true,
	StatusFailed: true, StatusRefunded: true,
}

const (
	MethodDirectDeposit = "direct_deposit"
	MethodACH           = "ach"
	MethodCheck         = "check"
	MethodCard          = "card"
)

var validMethods = map[string]bool{
	MethodDirectDeposit: true, MethodACH: true, MethodCheck: true, MethodCard: true,
}

const DefaultCurrency = "USD"

// Payment is what a requester owes a nurse for one completed visit.
type Payment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	VisitID     uuid.UUID  `db:"visit_id" json:"visit_id"`
	NurseID     uuid.UUID  `db:"nurse_id" json:"nurse_id"`
	PayerID     uuid.UUID  `db:"payer_id" json:"payer_id"`
	AmountCents int64      `db:"amount_cents" json:"amount_cents"`
	Currency    string     `db:"currency" json:"currency"`
	Status      string     `db:"status" json:"status"`
	Method      string     `db:"method" json:"method"`
	Reference   *string    `db:"reference" json:"reference,omitempty"`
	Note        *string    `db:"note" json:"note,omitempty"`
	PaidAt      *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Open reports whether the payment still counts against its visit.
func (p *Payment) Open() bool {
	return p.Status != StatusFailed && p.Status != StatusRefunded
}

// FormatAmount renders cents as a human amount, e.g. "$180.00".
func FormatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	if currency == "" || currency == DefaultCurrency {
		return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency)
}

type Filter struct {
	NurseID *uuid.UUID
	PayerID *uuid.UUID
	VisitID *uuid.UUID
	Status  string
}

type CreateRequest struct {
	VisitID     uuid.UUID `json:"visit_id"`
	AmountCents *int64    `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Method      string    `json:"method"`
	Note        string    `json:"note"`
}

type SettleRequest struct {
	Reference string `json:"reference"`
	Note      string `json:"note"`
}

// Earnings sums a nurse's payments by state.
type Earnings struct {
	NurseID      uuid.UUID  `json:"nurse_id"`
	PaidCents    int64      `json:"paid_cents"`
	PaidCount    int        `json:"paid_count"`
	PendingCents int64      `json:"pending_cents"`
	PendingCount int        `json:"pending_count"`
	LastPaidAt   *time.Time `json:"last_paid_at,omitempty"`
}
