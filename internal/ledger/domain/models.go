package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/pkg/money"
)

type TransactionKind string

const (
	KindSale          TransactionKind = "sale"
	KindRefund        TransactionKind = "refund"
	KindPayoutReserve TransactionKind = "payout_reserve"
	KindPayoutRelease TransactionKind = "payout_release"
	KindPayoutCommit  TransactionKind = "payout_commit"
)

// Ledger is the per-event revenue position. Every figure is in minor units of Currency.
type Ledger struct {
	EventID          snowflake.ID `gorm:"primaryKey" json:"event_id"`
	Currency         string       `gorm:"type:text;not null" json:"currency"`
	CommissionBps    int64        `gorm:"not null" json:"commission_bps"`
	GrossRevenue     int64        `gorm:"not null" json:"gross_revenue"`
	RefundsTotal     int64        `gorm:"not null" json:"refunds_total"`
	CommissionAmount int64        `gorm:"not null" json:"commission_amount"`
	NetRevenue       int64        `gorm:"not null" json:"net_revenue"`
	PaidOut          int64        `gorm:"not null" json:"paid_out"`
	PendingPayout    int64        `gorm:"not null" json:"pending_payout"`
	AvailableBalance int64        `gorm:"not null" json:"available_balance"`
	RetiredAt        *time.Time   `json:"retired_at,omitempty"`
	Version          int64        `gorm:"not null" json:"version"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (Ledger) TableName() string { return "event_ledgers" }

// Transaction is one append-only entry of a ledger's log.
type Transaction struct {
	ID         snowflake.ID    `gorm:"primaryKey" json:"id"`
	EventID    snowflake.ID    `gorm:"not null;index" json:"event_id"`
	Kind       TransactionKind `gorm:"type:text;not null" json:"kind"`
	Amount     int64           `gorm:"not null" json:"amount"`
	Reference  string          `gorm:"not null" json:"reference"`
	OccurredAt time.Time       `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time       `gorm:"not null" json:"created_at"`
}

func (Transaction) TableName() string { return "ledger_transactions" }

// NewLedger opens an empty ledger with a frozen commission rate.
func NewLedger(eventID snowflake.ID, currency string, commissionBps int64, now time.Time) (Ledger, error) {
	currency = money.NormalizeCurrency(currency)
	if currency == "" {
		return Ledger{}, money.ErrInvalidCurrency
	}
	if commissionBps < 0 || commissionBps > money.BasisPointsScale {
		return Ledger{}, money.ErrInvalidRate
	}
	return Ledger{
		EventID:       eventID,
		Currency:      currency,
		CommissionBps: commissionBps,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (l Ledger) IsRetired() bool {
	return l.RetiredAt != nil
}

func (l Ledger) Money(amount int64) money.Money {
	return money.Money{Amount: amount, Currency: l.Currency}
}

// ApplySale adds a sale to gross revenue.
func (l *Ledger) ApplySale(amount int64) error {
	if err := l.writable(amount); err != nil {
		return err
	}
	l.GrossRevenue += amount
	l.recompute()
	return nil
}

// ApplyRefund adds a refund. It fails without mutation if refunds would exceed
// gross revenue or push the available balance below zero.
func (l *Ledger) ApplyRefund(amount int64) error {
	if err := l.writable(amount); err != nil {
		return err
	}
	if l.RefundsTotal+amount > l.GrossRevenue {
		return ErrRefundExceedsGross
	}
	next := *l
	next.RefundsTotal += amount
	next.recompute()
	if next.AvailableBalance < 0 {
		return ErrRefundExceedsBalance
	}
	*l = next
	return nil
}

// ReservePayout moves amount from the available balance into pending payouts.
func (l *Ledger) ReservePayout(amount int64) error {
	if err := l.writable(amount); err != nil {
		return err
	}
	if amount > l.AvailableBalance {
		return ErrPayoutExceedsBalance
	}
	l.PendingPayout += amount
	l.recompute()
	return nil
}

// ReleaseReservation returns a pending amount to the available balance.
func (l *Ledger) ReleaseReservation(amount int64) error {
	if err := l.writable(amount); err != nil {
		return err
	}
	if amount > l.PendingPayout {
		return ErrReservationMismatch
	}
	l.PendingPayout -= amount
	l.recompute()
	return nil
}

// CommitPayout moves a pending amount into paid out.
func (l *Ledger) CommitPayout(amount int64) error {
	if err := l.writable(amount); err != nil {
		return err
	}
	if amount > l.PendingPayout {
		return ErrReservationMismatch
	}
	l.PendingPayout -= amount
	l.PaidOut += amount
	l.recompute()
	return nil
}

// Apply dispatches a logged transaction to the matching mutation.
func (l *Ledger) Apply(kind TransactionKind, amount int64) error {
	switch kind {
	case KindSale:
		return l.ApplySale(amount)
	case KindRefund:
		return l.ApplyRefund(amount)
	case KindPayoutReserve:
		return l.ReservePayout(amount)
	case KindPayoutRelease:
		return l.ReleaseReservation(amount)
	case KindPayoutCommit:
		return l.CommitPayout(amount)
	default:
		return ErrUnknownKind
	}
}

// SameFigures reports whether both ledgers hold identical balances.
func (l Ledger) SameFigures(other Ledger) bool {
	return l.GrossRevenue == other.GrossRevenue &&
		l.RefundsTotal == other.RefundsTotal &&
		l.CommissionAmount == other.CommissionAmount &&
		l.NetRevenue == other.NetRevenue &&
		l.PaidOut == other.PaidOut &&
		l.PendingPayout == other.PendingPayout &&
		l.AvailableBalance == other.AvailableBalance
}

func (l Ledger) writable(amount int64) error {
	if l.IsRetired() {
		return ErrLedgerRetired
	}
	if amount <= 0 {
		return ErrNegativeAmount
	}
	return nil
}

// recompute derives commission, net revenue and available balance from the counters.
// Commission is charged on revenue net of refunds.
func (l *Ledger) recompute() {
	l.CommissionAmount = money.RoundHalfUp((l.GrossRevenue-l.RefundsTotal)*l.CommissionBps, money.BasisPointsScale)
	l.NetRevenue = l.GrossRevenue - l.RefundsTotal - l.CommissionAmount
	l.AvailableBalance = l.NetRevenue - l.PaidOut - l.PendingPayout
}

// Replay rebuilds a ledger from an empty state by applying txs in order.
func Replay(eventID snowflake.ID, currency string, commissionBps int64, txs []Transaction) (Ledger, error) {
	ledger := Ledger{EventID: eventID, Currency: currency, CommissionBps: commissionBps}
	for _, tx := range txs {
		if err := ledger.Apply(tx.Kind, tx.Amount); err != nil {
			return Ledger{}, err
		}
	}
	return ledger, nil
}
