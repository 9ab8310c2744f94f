package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
)

type Status string

const (
	StatusRequested  Status = "requested"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Outcome is the bank rail's verdict on a processing payout.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

const ReferencePrefix = "PO-"

// NewReference returns a sortable, unique payout reference.
func NewReference() string {
	return ReferencePrefix + ulid.Make().String()
}

type BankAccount struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrganizerID snowflake.ID `gorm:"not null;index" json:"organizer_id"`
	HolderName  string       `gorm:"not null" json:"holder_name"`
	IBAN        string       `gorm:"column:iban;not null" json:"-"`
	BankName    string       `gorm:"not null" json:"bank_name"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (BankAccount) TableName() string { return "bank_accounts" }

// MaskedIBAN keeps the country code and the last four characters.
func (a BankAccount) MaskedIBAN() string {
	if len(a.IBAN) <= 6 {
		return strings.Repeat("*", len(a.IBAN))
	}
	return a.IBAN[:2] + strings.Repeat("*", len(a.IBAN)-6) + a.IBAN[len(a.IBAN)-4:]
}

// NormalizeIBAN strips spaces and upper-cases the account number.
func NormalizeIBAN(iban string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(iban), " ", ""))
}

// PayoutRequest moves money from an event ledger to an organizer bank account.
type PayoutRequest struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	EventID          snowflake.ID `gorm:"not null;index" json:"event_id"`
	OrganizerID      snowflake.ID `gorm:"not null" json:"organizer_id"`
	Reference        string       `gorm:"not null;uniqueIndex" json:"reference"`
	Amount           int64        `gorm:"not null" json:"amount"`
	Currency         string       `gorm:"type:text;not null" json:"currency"`
	BankAccountID    snowflake.ID `gorm:"not null" json:"bank_account_id"`
	Status           Status       `gorm:"type:text;not null" json:"status"`
	FailureReason    string       `json:"failure_reason,omitempty"`
	PaymentReference string       `json:"payment_reference,omitempty"`
	RequestedAt      time.Time    `gorm:"not null" json:"requested_at"`
	ProcessingAt     *time.Time   `json:"processing_at,omitempty"`
	ResolvedAt       *time.Time   `json:"resolved_at,omitempty"`
	Version          int64        `gorm:"not null" json:"version"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (PayoutRequest) TableName() string { return "payout_requests" }

// Advance moves the request one step along requested -> processing -> completed|failed.
// A terminal request is returned unchanged; the boolean reports whether anything moved.
func (p *PayoutRequest) Advance(outcome Outcome, paymentReference, failureReason string, now time.Time) (bool, error) {
	if p.Status.IsTerminal() {
		return false, nil
	}
	switch outcome {
	case OutcomeNone, OutcomeSucceeded, OutcomeFailed:
	default:
		return false, ErrInvalidOutcome
	}

	switch p.Status {
	case StatusRequested:
		p.Status = StatusProcessing
		p.ProcessingAt = &now
	case StatusProcessing:
		switch outcome {
		case OutcomeSucceeded:
			p.Status = StatusCompleted
			p.PaymentReference = strings.TrimSpace(paymentReference)
		case OutcomeFailed:
			p.Status = StatusFailed
			p.FailureReason = strings.TrimSpace(failureReason)
		default:
			return false, ErrOutcomeRequired
		}
		p.ResolvedAt = &now
	}
	p.UpdatedAt = now
	return true, nil
}

// StatusTotal is a count of requests and the amount they carry.
type StatusTotal struct {
	Count  int64 `json:"count"`
	Amount int64 `json:"amount"`
}

// StatusSum is one row of a per-status aggregate.
type StatusSum struct {
	Status Status
	Count  int64
	Amount int64
}

type PayoutSummary struct {
	EventID            snowflake.ID `json:"event_id"`
	Requested          StatusTotal  `json:"requested"`
	Processing         StatusTotal  `json:"processing"`
	Completed          StatusTotal  `json:"completed"`
	Failed             StatusTotal  `json:"failed"`
	CompletedThisMonth StatusTotal  `json:"completed_this_month"`
}

func NewPayoutSummary(eventID snowflake.ID, sums []StatusSum, completedThisMonth StatusTotal) PayoutSummary {
	summary := PayoutSummary{EventID: eventID, CompletedThisMonth: completedThisMonth}
	for _, sum := range sums {
		total := StatusTotal{Count: sum.Count, Amount: sum.Amount}
		switch sum.Status {
		case StatusRequested:
			summary.Requested = total
		case StatusProcessing:
			summary.Processing = total
		case StatusCompleted:
			summary.Completed = total
		case StatusFailed:
			summary.Failed = total
		}
	}
	return summary
}

// MonthStart is midnight UTC on the first day of now's month.
func MonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
