package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RegisterBankAccountRequest struct {
	HolderName string `json:"holder_name"`
	IBAN       string `json:"iban"`
	BankName   string `json:"bank_name"`
}

// BankAccountView is the API shape of a bank account; the full IBAN never leaves the service.
type BankAccountView struct {
	ID          snowflake.ID `json:"id"`
	OrganizerID snowflake.ID `json:"organizer_id"`
	HolderName  string       `json:"holder_name"`
	IBAN        string       `json:"iban"`
	BankName    string       `json:"bank_name"`
	CreatedAt   time.Time    `json:"created_at"`
}

func NewBankAccountView(a BankAccount) BankAccountView {
	return BankAccountView{
		ID:          a.ID,
		OrganizerID: a.OrganizerID,
		HolderName:  a.HolderName,
		IBAN:        a.MaskedIBAN(),
		BankName:    a.BankName,
		CreatedAt:   a.CreatedAt,
	}
}

type RequestPayoutRequest struct {
	EventID       snowflake.ID `json:"-"`
	Amount        int64        `json:"amount"`
	BankAccountID snowflake.ID `json:"bank_account_id"`
}

type AdvanceRequest struct {
	ID               snowflake.ID `json:"-"`
	Outcome          Outcome      `json:"outcome"`
	PaymentReference string       `json:"payment_reference"`
	FailureReason    string       `json:"failure_reason"`
}

// PendingPayouts lists the requests not yet resolved and what they add up to.
type PendingPayouts struct {
	Payouts     []PayoutRequest `json:"payouts"`
	Count       int64           `json:"count"`
	TotalAmount int64           `json:"total_amount"`
}

type Service interface {
	RegisterBankAccount(ctx context.Context, req RegisterBankAccountRequest) (BankAccountView, error)
	ListBankAccounts(ctx context.Context) ([]BankAccountView, error)

	Request(ctx context.Context, req RequestPayoutRequest) (PayoutRequest, error)
	Advance(ctx context.Context, req AdvanceRequest) (PayoutRequest, error)
	Get(ctx context.Context, id snowflake.ID) (PayoutRequest, error)
	ListByEvent(ctx context.Context, eventID snowflake.ID) ([]PayoutRequest, error)
	ListPending(ctx context.Context, eventID snowflake.ID) (PendingPayouts, error)
	// Summary counts the event's requests per status; the month is the clock's
	// current calendar month in UTC.
	Summary(ctx context.Context, eventID snowflake.ID) (PayoutSummary, error)
}
