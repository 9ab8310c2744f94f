package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/checkout/domain"
	"github.com/smallbiznis/boxoffice/internal/clock"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	inventorydomain "github.com/smallbiznis/boxoffice/internal/inventory/domain"
	ledgerdomain "github.com/smallbiznis/boxoffice/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	promodomain "github.com/smallbiznis/boxoffice/internal/promocode/domain"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	EventRepo  eventdomain.Repository
	Inventory  inventorydomain.Service
	Promo      promodomain.Service
	Ledger     ledgerdomain.Service
	Charger    domain.Charger      `optional:"true"`
	DBConfig   db.Config           `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	eventRepo  eventdomain.Repository
	inventory  inventorydomain.Service
	promo      promodomain.Service
	ledger     ledgerdomain.Service
	charger    domain.Charger
	attempts   int
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("checkout.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		eventRepo:  p.EventRepo,
		inventory:  p.Inventory,
		promo:      p.Promo,
		ledger:     p.Ledger,
		charger:    p.Charger,
		attempts:   p.DBConfig.OCCMaxAttempts,
		obsMetrics: p.ObsMetrics,
	}
}

// Sell claims the transaction id, then reserves inventory, redeems the promo
// code, charges and records the sale in that order. Any failure after the claim
// undoes the earlier steps and frees the transaction id for a retry.
func (s *Service) Sell(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	transactionID := strings.TrimSpace(req.TransactionID)
	if transactionID == "" {
		return domain.Sale{}, domain.ErrInvalidTransaction
	}
	if req.Quantity <= 0 {
		return domain.Sale{}, inventorydomain.ErrInvalidQuantity
	}

	event, err := s.eventRepo.FindByID(ctx, s.db, req.EventID)
	if err != nil {
		return domain.Sale{}, err
	}
	if event == nil {
		return domain.Sale{}, eventdomain.ErrNotFound
	}
	if event.Status != eventdomain.StatusPublished || event.HasStarted(s.clock.Now()) {
		return domain.Sale{}, domain.ErrEventNotOnSale
	}

	category, err := s.inventory.Get(ctx, req.CategoryID)
	if err != nil {
		return domain.Sale{}, err
	}
	if category.EventID != event.ID {
		return domain.Sale{}, domain.ErrCategoryNotInEvent
	}

	sale := domain.Sale{
		TransactionID: transactionID,
		EventID:       event.ID,
		CategoryID:    category.ID,
		Quantity:      req.Quantity,
		Currency:      category.Currency,
		Subtotal:      category.UnitPrice().Mul(req.Quantity).Amount,
		PromoCode:     promodomain.NormalizeCode(req.PromoCode),
	}

	promoReq := promodomain.ValidateRequest{
		EventID:    event.ID,
		Code:       sale.PromoCode,
		CategoryID: category.ID,
		CustomerID: req.CustomerID,
		Subtotal:   sale.Subtotal,
	}
	if sale.PromoCode != "" {
		discount, err := s.promo.Validate(ctx, promoReq)
		if err != nil {
			return domain.Sale{}, err
		}
		sale.Discount = discount.Amount
	}

	now := s.clock.Now()
	record := domain.SaleRecord{
		ID:            s.genID.Generate(),
		EventID:       event.ID,
		TransactionID: transactionID,
		CategoryID:    category.ID,
		Quantity:      req.Quantity,
		Subtotal:      sale.Subtotal,
		Discount:      sale.Discount,
		Total:         sale.Subtotal - sale.Discount,
		Currency:      sale.Currency,
		Status:        domain.SaleStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	claimed, err := s.repo.Claim(ctx, s.db, &record)
	if err != nil {
		return domain.Sale{}, err
	}
	if !claimed {
		return domain.Sale{}, domain.ErrDuplicateTransaction
	}

	reserved, redeemed := false, false
	rollback := func(cause error) error {
		cleanupCtx := context.WithoutCancel(ctx)
		if redeemed {
			if err := s.promo.Revoke(cleanupCtx, event.ID, sale.PromoCode, transactionID); err != nil {
				s.log.Error("revoke promo redemption failed",
					zap.String("transaction_id", transactionID),
					zap.Error(err),
				)
			}
		}
		if reserved {
			if _, err := s.inventory.Release(cleanupCtx, category.ID, req.Quantity); err != nil {
				s.log.Error("release inventory failed",
					zap.String("transaction_id", transactionID),
					zap.String("category_id", category.ID.String()),
					zap.Error(err),
				)
			}
		}
		if err := s.repo.Delete(cleanupCtx, s.db, record.ID); err != nil {
			s.log.Error("drop sale claim failed",
				zap.String("transaction_id", transactionID),
				zap.Error(err),
			)
		}
		return cause
	}

	if _, err := s.inventory.ReserveAndSell(ctx, category.ID, req.Quantity); err != nil {
		return domain.Sale{}, rollback(err)
	}
	reserved = true

	if sale.PromoCode != "" {
		redemption, err := s.promo.Redeem(ctx, promodomain.RedeemRequest{ValidateRequest: promoReq, TransactionID: transactionID})
		if err != nil {
			return domain.Sale{}, rollback(err)
		}
		redeemed = true
		sale.Discount = redemption.DiscountAmount
	}
	sale.Total = sale.Subtotal - sale.Discount

	if s.charger != nil && sale.Total > 0 {
		err := s.charger.Charge(ctx, domain.ChargeRequest{
			EventID:       event.ID,
			TransactionID: transactionID,
			CustomerID:    req.CustomerID,
			Amount:        sale.Total,
			Currency:      sale.Currency,
		})
		if err != nil {
			s.log.Warn("charge failed", zap.String("transaction_id", transactionID), zap.Error(err))
			return domain.Sale{}, rollback(errors.Join(domain.ErrChargeFailed, err))
		}
	}

	if sale.Total > 0 {
		if _, err := s.ledger.RecordSale(ctx, event.ID, sale.Total, transactionID); err != nil {
			return domain.Sale{}, rollback(err)
		}
	}

	record.Discount, record.Total, record.UpdatedAt = sale.Discount, sale.Total, s.clock.Now()
	if err := s.repo.Complete(ctx, s.db, &record); err != nil {
		// The sale is booked; a pending claim still blocks a second sale.
		s.log.Error("mark sale completed failed",
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
	}

	s.obsMetrics.RecordSale(ctx, sale.Currency, sale.Quantity, sale.Total)
	s.log.Info("sale completed",
		zap.String("event_id", event.ID.String()),
		zap.String("transaction_id", transactionID),
		zap.Int64("quantity", sale.Quantity),
		zap.Int64("total", sale.Total),
	)
	return sale, nil
}

// Refund books the refund and returns tickets to inventory in one transaction.
// A reference that was already refunded is acknowledged without side effects.
func (s *Service) Refund(ctx context.Context, req domain.RefundRequest) (domain.Refund, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return domain.Refund{}, ledgerdomain.ErrInvalidReference
	}
	if req.Amount <= 0 {
		return domain.Refund{}, ledgerdomain.ErrNegativeAmount
	}
	if req.Quantity < 0 {
		return domain.Refund{}, inventorydomain.ErrInvalidQuantity
	}

	if req.Quantity > 0 {
		category, err := s.inventory.Get(ctx, req.CategoryID)
		if err != nil {
			return domain.Refund{}, err
		}
		if category.EventID != req.EventID {
			return domain.Refund{}, domain.ErrCategoryNotInEvent
		}
	}

	var (
		booked  ledgerdomain.Ledger
		applied bool
	)
	err := db.RetryOnConflict(ctx, s.attempts, func() error {
		return db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
			ledger, ok, err := s.ledger.BookRefund(ctx, tx, req.EventID, req.Amount, reference)
			if err != nil {
				return err
			}
			booked, applied = ledger, ok
			if !ok || req.Quantity == 0 {
				return nil
			}
			_, err = s.inventory.ReleaseTx(ctx, tx, req.CategoryID, req.Quantity)
			return err
		})
	})
	if err != nil {
		return domain.Refund{}, err
	}

	out := domain.Refund{Reference: reference, EventID: req.EventID, Amount: req.Amount, Quantity: req.Quantity}
	if !applied {
		out.Replayed = true
		return out, nil
	}

	s.obsMetrics.RecordRefund(ctx, booked.Currency, req.Amount)
	s.log.Info("refund recorded",
		zap.String("event_id", req.EventID.String()),
		zap.String("reference", reference),
		zap.Int64("amount", req.Amount),
	)
	return out, nil
}
