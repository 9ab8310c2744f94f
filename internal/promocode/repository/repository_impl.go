package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/promocode/domain"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"gorm.io/gorm"
)

const codeColumns = `id, event_id, code, kind, value, usage_limit, uses_count, per_customer_limit,
	min_purchase_amount, max_discount_amount, valid_from, valid_until, status, version, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, code *domain.PromoCode) error {
	err := conn.WithContext(ctx).Exec(
		`INSERT INTO promo_codes (`+codeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.ID,
		code.EventID,
		code.Code,
		code.Kind,
		code.Value,
		code.UsageLimit,
		code.UsesCount,
		code.PerCustomerLimit,
		code.MinPurchaseAmount,
		code.MaxDiscountAmount,
		code.ValidFrom,
		code.ValidUntil,
		code.Status,
		code.Version,
		code.CreatedAt,
		code.UpdatedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrDuplicateCode
		}
		return db.Storage(err)
	}

	for _, categoryID := range code.CategoryIDs {
		err := conn.WithContext(ctx).Exec(
			`INSERT INTO promo_code_categories (promo_code_id, category_id) VALUES (?, ?)
			 ON CONFLICT DO NOTHING`,
			code.ID,
			categoryID,
		).Error
		if err != nil {
			return db.Storage(err)
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.PromoCode, error) {
	return r.findOne(ctx, conn, `SELECT `+codeColumns+` FROM promo_codes WHERE id = ?`, id)
}

func (r *repo) FindByCode(ctx context.Context, conn *gorm.DB, eventID snowflake.ID, code string) (*domain.PromoCode, error) {
	return r.findOne(ctx, conn, `SELECT `+codeColumns+` FROM promo_codes WHERE event_id = ? AND code = ?`, eventID, code)
}

func (r *repo) ListByEvent(ctx context.Context, conn *gorm.DB, eventID snowflake.ID) ([]domain.PromoCode, error) {
	var codes []domain.PromoCode
	err := conn.WithContext(ctx).Raw(
		`SELECT `+codeColumns+` FROM promo_codes WHERE event_id = ? ORDER BY id`,
		eventID,
	).Scan(&codes).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	for i := range codes {
		if codes[i].CategoryIDs, err = r.categories(ctx, conn, codes[i].ID); err != nil {
			return nil, err
		}
	}
	return codes, nil
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, code *domain.PromoCode) error {
	result := conn.WithContext(ctx).Exec(
		`UPDATE promo_codes SET usage_limit = ?, uses_count = ?, per_customer_limit = ?, min_purchase_amount = ?,
		 max_discount_amount = ?, valid_from = ?, valid_until = ?, status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		code.UsageLimit,
		code.UsesCount,
		code.PerCustomerLimit,
		code.MinPurchaseAmount,
		code.MaxDiscountAmount,
		code.ValidFrom,
		code.ValidUntil,
		code.Status,
		code.UpdatedAt,
		code.ID,
		code.Version,
	)
	if result.Error != nil {
		return db.Storage(result.Error)
	}
	if err := db.CheckAffected(result.RowsAffected); err != nil {
		return err
	}
	code.Version++
	return nil
}

func (r *repo) ListExpiring(ctx context.Context, conn *gorm.DB, now time.Time, limit int) ([]domain.PromoCode, error) {
	var codes []domain.PromoCode
	err := conn.WithContext(ctx).Raw(
		`SELECT `+codeColumns+` FROM promo_codes
		 WHERE status IN (?, ?) AND valid_until IS NOT NULL AND valid_until < ?
		 ORDER BY valid_until, id LIMIT ?`,
		domain.StatusActive,
		domain.StatusDepleted,
		now,
		limit,
	).Scan(&codes).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	return codes, nil
}

func (r *repo) CountCustomerRedemptions(ctx context.Context, conn *gorm.DB, codeID snowflake.ID, customerID string) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM promo_code_redemptions WHERE promo_code_id = ? AND customer_id = ?`,
		codeID,
		customerID,
	).Scan(&count).Error
	if err != nil {
		return 0, db.Storage(err)
	}
	return count, nil
}

func (r *repo) FindRedemption(ctx context.Context, conn *gorm.DB, codeID snowflake.ID, transactionID string) (*domain.Redemption, error) {
	var redemption domain.Redemption
	err := conn.WithContext(ctx).Raw(
		`SELECT id, promo_code_id, customer_id, transaction_id, discount_amount, subtotal, redeemed_at
		 FROM promo_code_redemptions WHERE promo_code_id = ? AND transaction_id = ?`,
		codeID,
		transactionID,
	).Scan(&redemption).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	if redemption.ID == 0 {
		return nil, nil
	}
	return &redemption, nil
}

func (r *repo) InsertRedemption(ctx context.Context, conn *gorm.DB, redemption *domain.Redemption) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`INSERT INTO promo_code_redemptions (id, promo_code_id, customer_id, transaction_id, discount_amount, subtotal, redeemed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (promo_code_id, transaction_id) DO NOTHING`,
		redemption.ID,
		redemption.PromoCodeID,
		redemption.CustomerID,
		redemption.TransactionID,
		redemption.DiscountAmount,
		redemption.Subtotal,
		redemption.RedeemedAt,
	)
	if result.Error != nil {
		return false, db.Storage(result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) DeleteRedemption(ctx context.Context, conn *gorm.DB, id snowflake.ID) error {
	return db.Storage(conn.WithContext(ctx).Exec(
		`DELETE FROM promo_code_redemptions WHERE id = ?`,
		id,
	).Error)
}

func (r *repo) RedemptionTotals(ctx context.Context, conn *gorm.DB, codeID snowflake.ID) (domain.RedemptionTotals, error) {
	var row struct {
		Redemptions     int64
		TotalDiscount   int64
		TotalSubtotal   int64
		UniqueCustomers int64
	}
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS redemptions,
		        COALESCE(SUM(discount_amount), 0) AS total_discount,
		        COALESCE(SUM(subtotal), 0) AS total_subtotal,
		        COUNT(DISTINCT NULLIF(customer_id, '')) AS unique_customers
		 FROM promo_code_redemptions WHERE promo_code_id = ?`,
		codeID,
	).Scan(&row).Error
	if err != nil {
		return domain.RedemptionTotals{}, db.Storage(err)
	}
	return domain.RedemptionTotals(row), nil
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, query string, args ...any) (*domain.PromoCode, error) {
	var code domain.PromoCode
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&code).Error; err != nil {
		return nil, db.Storage(err)
	}
	if code.ID == 0 {
		return nil, nil
	}
	categories, err := r.categories(ctx, conn, code.ID)
	if err != nil {
		return nil, err
	}
	code.CategoryIDs = categories
	return &code, nil
}

func (r *repo) categories(ctx context.Context, conn *gorm.DB, codeID snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := conn.WithContext(ctx).Raw(
		`SELECT category_id FROM promo_code_categories WHERE promo_code_id = ? ORDER BY category_id`,
		codeID,
	).Scan(&ids).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	return ids, nil
}
