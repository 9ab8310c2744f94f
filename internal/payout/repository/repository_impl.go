package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/payout/domain"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"gorm.io/gorm"
)

const payoutColumns = `id, event_id, organizer_id, reference, amount, currency, bank_account_id, status,
	failure_reason, payment_reference, requested_at, processing_at, resolved_at, version, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBankAccount(ctx context.Context, conn *gorm.DB, account *domain.BankAccount) error {
	return db.Storage(conn.WithContext(ctx).Exec(
		`INSERT INTO bank_accounts (id, organizer_id, holder_name, iban, bank_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.OrganizerID,
		account.HolderName,
		account.IBAN,
		account.BankName,
		account.CreatedAt,
	).Error)
}

func (r *repo) FindBankAccount(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.BankAccount, error) {
	var account domain.BankAccount
	err := conn.WithContext(ctx).Raw(
		`SELECT id, organizer_id, holder_name, iban, bank_name, created_at
		 FROM bank_accounts WHERE id = ?`,
		id,
	).Scan(&account).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) ListBankAccounts(ctx context.Context, conn *gorm.DB, organizerID snowflake.ID) ([]domain.BankAccount, error) {
	var accounts []domain.BankAccount
	err := conn.WithContext(ctx).Raw(
		`SELECT id, organizer_id, holder_name, iban, bank_name, created_at
		 FROM bank_accounts WHERE organizer_id = ? ORDER BY id`,
		organizerID,
	).Scan(&accounts).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	return accounts, nil
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, request *domain.PayoutRequest) error {
	return db.Storage(conn.WithContext(ctx).Exec(
		`INSERT INTO payout_requests (`+payoutColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		request.ID,
		request.EventID,
		request.OrganizerID,
		request.Reference,
		request.Amount,
		request.Currency,
		request.BankAccountID,
		request.Status,
		request.FailureReason,
		request.PaymentReference,
		request.RequestedAt,
		request.ProcessingAt,
		request.ResolvedAt,
		request.Version,
		request.CreatedAt,
		request.UpdatedAt,
	).Error)
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.PayoutRequest, error) {
	var request domain.PayoutRequest
	err := conn.WithContext(ctx).Raw(
		`SELECT `+payoutColumns+` FROM payout_requests WHERE id = ?`,
		id,
	).Scan(&request).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	if request.ID == 0 {
		return nil, nil
	}
	return &request, nil
}

func (r *repo) ListByEvent(ctx context.Context, conn *gorm.DB, eventID snowflake.ID) ([]domain.PayoutRequest, error) {
	var requests []domain.PayoutRequest
	err := conn.WithContext(ctx).Raw(
		`SELECT `+payoutColumns+` FROM payout_requests WHERE event_id = ? ORDER BY id`,
		eventID,
	).Scan(&requests).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	return requests, nil
}

func (r *repo) ListByEventStatus(ctx context.Context, conn *gorm.DB, eventID snowflake.ID, statuses ...domain.Status) ([]domain.PayoutRequest, error) {
	var requests []domain.PayoutRequest
	if len(statuses) == 0 {
		return requests, nil
	}
	err := conn.WithContext(ctx).Raw(
		`SELECT `+payoutColumns+` FROM payout_requests WHERE event_id = ? AND status IN ? ORDER BY requested_at, id`,
		eventID,
		statuses,
	).Scan(&requests).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	return requests, nil
}

func (r *repo) SumByStatus(ctx context.Context, conn *gorm.DB, eventID snowflake.ID) ([]domain.StatusSum, error) {
	var sums []domain.StatusSum
	err := conn.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount
		 FROM payout_requests WHERE event_id = ? GROUP BY status`,
		eventID,
	).Scan(&sums).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	return sums, nil
}

func (r *repo) SumCompletedSince(ctx context.Context, conn *gorm.DB, eventID snowflake.ID, since time.Time) (domain.StatusTotal, error) {
	var total domain.StatusTotal
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount
		 FROM payout_requests WHERE event_id = ? AND status = ? AND resolved_at >= ?`,
		eventID,
		domain.StatusCompleted,
		since,
	).Scan(&total).Error
	if err != nil {
		return domain.StatusTotal{}, db.Storage(err)
	}
	return total, nil
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, request *domain.PayoutRequest) error {
	result := conn.WithContext(ctx).Exec(
		`UPDATE payout_requests SET
			status = ?, failure_reason = ?, payment_reference = ?, processing_at = ?, resolved_at = ?,
			version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		request.Status,
		request.FailureReason,
		request.PaymentReference,
		request.ProcessingAt,
		request.ResolvedAt,
		request.UpdatedAt,
		request.ID,
		request.Version,
	)
	if result.Error != nil {
		return db.Storage(result.Error)
	}
	if err := db.CheckAffected(result.RowsAffected); err != nil {
		return err
	}
	request.Version++
	return nil
}
