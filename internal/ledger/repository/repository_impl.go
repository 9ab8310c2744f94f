package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/ledger/domain"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"github.com/smallbiznis/boxoffice/pkg/db/pagination"
	"gorm.io/gorm"
)

const ledgerColumns = `event_id, currency, commission_bps, gross_revenue, refunds_total, commission_amount,
	net_revenue, paid_out, pending_payout, available_balance, retired_at, version, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, ledger *domain.Ledger) error {
	return db.Storage(conn.WithContext(ctx).Exec(
		`INSERT INTO event_ledgers (`+ledgerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (event_id) DO NOTHING`,
		ledger.EventID,
		ledger.Currency,
		ledger.CommissionBps,
		ledger.GrossRevenue,
		ledger.RefundsTotal,
		ledger.CommissionAmount,
		ledger.NetRevenue,
		ledger.PaidOut,
		ledger.PendingPayout,
		ledger.AvailableBalance,
		ledger.RetiredAt,
		ledger.Version,
		ledger.CreatedAt,
		ledger.UpdatedAt,
	).Error)
}

func (r *repo) FindByEventID(ctx context.Context, conn *gorm.DB, eventID snowflake.ID) (*domain.Ledger, error) {
	var ledger domain.Ledger
	err := conn.WithContext(ctx).Raw(
		`SELECT `+ledgerColumns+` FROM event_ledgers WHERE event_id = ?`,
		eventID,
	).Scan(&ledger).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	if ledger.EventID == 0 {
		return nil, nil
	}
	return &ledger, nil
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, ledger *domain.Ledger) error {
	result := conn.WithContext(ctx).Exec(
		`UPDATE event_ledgers SET
			gross_revenue = ?, refunds_total = ?, commission_amount = ?, net_revenue = ?,
			paid_out = ?, pending_payout = ?, available_balance = ?, retired_at = ?,
			version = version + 1, updated_at = ?
		 WHERE event_id = ? AND version = ?`,
		ledger.GrossRevenue,
		ledger.RefundsTotal,
		ledger.CommissionAmount,
		ledger.NetRevenue,
		ledger.PaidOut,
		ledger.PendingPayout,
		ledger.AvailableBalance,
		ledger.RetiredAt,
		ledger.UpdatedAt,
		ledger.EventID,
		ledger.Version,
	)
	if result.Error != nil {
		return db.Storage(result.Error)
	}
	if err := db.CheckAffected(result.RowsAffected); err != nil {
		return err
	}
	ledger.Version++
	return nil
}

func (r *repo) InsertTransaction(ctx context.Context, conn *gorm.DB, tx *domain.Transaction) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`INSERT INTO ledger_transactions (id, event_id, kind, amount, reference, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (event_id, kind, reference) DO NOTHING`,
		tx.ID,
		tx.EventID,
		tx.Kind,
		tx.Amount,
		tx.Reference,
		tx.OccurredAt,
		tx.CreatedAt,
	)
	if result.Error != nil {
		return false, db.Storage(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindTransaction(ctx context.Context, conn *gorm.DB, eventID snowflake.ID, kind domain.TransactionKind, reference string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := conn.WithContext(ctx).Raw(
		`SELECT id, event_id, kind, amount, reference, occurred_at, created_at
		 FROM ledger_transactions
		 WHERE event_id = ? AND kind = ? AND reference = ?`,
		eventID,
		kind,
		reference,
	).Scan(&tx).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	if tx.ID == 0 {
		return nil, nil
	}
	return &tx, nil
}

// ListTransactions returns the log in application order. A nil page returns every entry.
func (r *repo) ListTransactions(ctx context.Context, conn *gorm.DB, eventID snowflake.ID, page *pagination.Pagination) ([]domain.Transaction, error) {
	stmt := conn.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("event_id = ?", eventID)
	if page != nil {
		var err error
		stmt, err = pagination.Apply(stmt, *page)
		if err != nil {
			return nil, err
		}
	} else {
		stmt = stmt.Order("id asc")
	}

	var txs []domain.Transaction
	if err := stmt.Find(&txs).Error; err != nil {
		return nil, db.Storage(err)
	}
	return txs, nil
}
