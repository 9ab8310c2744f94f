package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/clock"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	inventorydomain "github.com/smallbiznis/boxoffice/internal/inventory/domain"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	"github.com/smallbiznis/boxoffice/internal/promocode/domain"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	EventRepo     eventdomain.Repository
	InventoryRepo inventorydomain.Repository
	DBConfig      db.Config           `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	eventRepo     eventdomain.Repository
	inventoryRepo inventorydomain.Repository
	attempts      int
	obsMetrics    *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("promocode.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		eventRepo:     p.EventRepo,
		inventoryRepo: p.InventoryRepo,
		attempts:      p.DBConfig.OCCMaxAttempts,
		obsMetrics:    p.ObsMetrics,
	}
}

// Create adds a code to any event that is not cancelled; locked events still accept codes.
func (s *Service) Create(ctx context.Context, req domain.CreatePromoCodeRequest) (domain.PromoCode, error) {
	now := s.clock.Now()
	code := domain.PromoCode{
		ID:                s.genID.Generate(),
		EventID:           req.EventID,
		Code:              domain.NormalizeCode(req.Code),
		Kind:              req.Kind,
		Value:             req.Value,
		UsageLimit:        req.UsageLimit,
		PerCustomerLimit:  req.PerCustomerLimit,
		MinPurchaseAmount: req.MinPurchaseAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		ValidFrom:         req.ValidFrom,
		ValidUntil:        req.ValidUntil,
		Status:            domain.StatusActive,
		CategoryIDs:       dedupe(req.CategoryIDs),
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := code.ValidateDefinition(); err != nil {
		return domain.PromoCode{}, err
	}

	err := db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		event, err := s.eventRepo.FindByID(ctx, tx, req.EventID)
		if err != nil {
			return err
		}
		if event == nil {
			return eventdomain.ErrNotFound
		}
		if event.Status == eventdomain.StatusCancelled {
			return eventdomain.ErrIllegalTransition
		}

		for _, categoryID := range code.CategoryIDs {
			category, err := s.inventoryRepo.FindByID(ctx, tx, categoryID)
			if err != nil {
				return err
			}
			if category == nil || category.EventID != event.ID {
				return domain.ErrCategoryNotInEvent
			}
		}
		return s.repo.Insert(ctx, tx, &code)
	})
	if err != nil {
		return domain.PromoCode{}, err
	}

	s.log.Info("promo code created",
		zap.String("event_id", code.EventID.String()),
		zap.String("promo_code_id", code.ID.String()),
		zap.String("kind", string(code.Kind)),
	)
	return code, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.PromoCode, error) {
	code, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.PromoCode{}, err
	}
	if code == nil {
		return domain.PromoCode{}, domain.ErrCodeNotFound
	}
	code.SyncStatus(s.clock.Now())
	return *code, nil
}

func (s *Service) ListByEvent(ctx context.Context, eventID snowflake.ID) ([]domain.PromoCode, error) {
	codes, err := s.repo.ListByEvent(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for i := range codes {
		codes[i].SyncStatus(now)
	}
	return codes, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdatePromoCodeRequest) (domain.PromoCode, error) {
	var out domain.PromoCode
	err := db.RetryOnConflict(ctx, s.attempts, func() error {
		return db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
			code, err := s.repo.FindByID(ctx, tx, req.ID)
			if err != nil {
				return err
			}
			if code == nil {
				return domain.ErrCodeNotFound
			}
			event, err := s.eventRepo.FindByID(ctx, tx, code.EventID)
			if err != nil {
				return err
			}
			if event == nil {
				return eventdomain.ErrNotFound
			}
			if event.Status == eventdomain.StatusCancelled {
				return eventdomain.ErrIllegalTransition
			}

			if err := code.ApplyUpdate(req, s.clock.Now()); err != nil {
				return err
			}
			if err := s.repo.Update(ctx, tx, code); err != nil {
				s.recordConflict(ctx, err)
				return err
			}
			out = *code
			return nil
		})
	})
	if err != nil {
		return domain.PromoCode{}, err
	}

	s.log.Info("promo code updated",
		zap.String("promo_code_id", out.ID.String()),
		zap.String("status", string(out.Status)),
	)
	return out, nil
}

func (s *Service) UsageStats(ctx context.Context, id snowflake.ID) (domain.UsageStats, error) {
	code, err := s.Get(ctx, id)
	if err != nil {
		return domain.UsageStats{}, err
	}
	totals, err := s.repo.RedemptionTotals(ctx, s.db, id)
	if err != nil {
		return domain.UsageStats{}, err
	}
	return domain.NewUsageStats(code, totals), nil
}

const expireBatchSize = 100

func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	codes, err := s.repo.ListExpiring(ctx, s.db, now, expireBatchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for i := range codes {
		code := codes[i]
		if !code.SyncStatus(now) {
			continue
		}
		code.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, &code); err != nil {
			if errors.Is(err, db.ErrVersionConflict) {
				// picked up on the next run
				s.recordConflict(ctx, err)
				continue
			}
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		s.log.Info("promo codes expired", zap.Int("count", expired))
	}
	return expired, nil
}

func (s *Service) Validate(ctx context.Context, req domain.ValidateRequest) (domain.Discount, error) {
	code, err := s.lookup(ctx, s.db, req.EventID, req.Code)
	if err != nil {
		return domain.Discount{}, err
	}
	uses, err := s.customerUses(ctx, s.db, code, req.CustomerID)
	if err != nil {
		return domain.Discount{}, err
	}
	return code.Check(req.CategoryID, req.CustomerID, uses, req.Subtotal, s.clock.Now())
}

func (s *Service) Redeem(ctx context.Context, req domain.RedeemRequest) (domain.Redemption, error) {
	transactionID := strings.TrimSpace(req.TransactionID)
	if transactionID == "" {
		return domain.Redemption{}, domain.ErrInvalidTransaction
	}

	var (
		out    domain.Redemption
		kind   domain.Kind
		replay bool
	)
	err := db.RetryOnConflict(ctx, s.attempts, func() error {
		return db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
			code, err := s.repo.FindByCode(ctx, tx, req.EventID, domain.NormalizeCode(req.Code))
			if err != nil {
				return err
			}
			if code == nil {
				return domain.ErrCodeNotFound
			}

			existing, err := s.repo.FindRedemption(ctx, tx, code.ID, transactionID)
			if err != nil {
				return err
			}
			if existing != nil {
				out, replay = *existing, true
				return nil
			}

			uses, err := s.customerUses(ctx, tx, code, req.CustomerID)
			if err != nil {
				return err
			}
			now := s.clock.Now()
			discount, err := code.Check(req.CategoryID, req.CustomerID, uses, req.Subtotal, now)
			if err != nil {
				return err
			}

			code.UsesCount++
			code.SyncStatus(now)
			code.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, code); err != nil {
				s.recordConflict(ctx, err)
				return err
			}

			redemption := domain.Redemption{
				ID:             s.genID.Generate(),
				PromoCodeID:    code.ID,
				CustomerID:     strings.TrimSpace(req.CustomerID),
				TransactionID:  transactionID,
				DiscountAmount: discount.Amount,
				Subtotal:       req.Subtotal,
				RedeemedAt:     now,
			}
			inserted, err := s.repo.InsertRedemption(ctx, tx, &redemption)
			if err != nil {
				return err
			}
			if !inserted {
				return db.ErrVersionConflict
			}
			out, kind, replay = redemption, code.Kind, false
			return nil
		})
	})
	if err != nil {
		return domain.Redemption{}, err
	}

	if !replay {
		s.obsMetrics.RecordPromoRedemption(ctx, string(kind))
		s.log.Info("promo code redeemed",
			zap.String("promo_code_id", out.PromoCodeID.String()),
			zap.String("transaction_id", out.TransactionID),
			zap.Int64("discount_amount", out.DiscountAmount),
		)
	}
	return out, nil
}

// Revoke is the compensation for a sale that failed after its redemption.
func (s *Service) Revoke(ctx context.Context, eventID snowflake.ID, code, transactionID string) error {
	transactionID = strings.TrimSpace(transactionID)
	return db.RetryOnConflict(ctx, s.attempts, func() error {
		return db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
			promo, err := s.repo.FindByCode(ctx, tx, eventID, domain.NormalizeCode(code))
			if err != nil {
				return err
			}
			if promo == nil {
				return nil
			}
			redemption, err := s.repo.FindRedemption(ctx, tx, promo.ID, transactionID)
			if err != nil {
				return err
			}
			if redemption == nil {
				return nil
			}

			if promo.UsesCount > 0 {
				promo.UsesCount--
			}
			now := s.clock.Now()
			promo.SyncStatus(now)
			promo.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, promo); err != nil {
				s.recordConflict(ctx, err)
				return err
			}
			return s.repo.DeleteRedemption(ctx, tx, redemption.ID)
		})
	})
}

func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) (domain.PromoCode, error) {
	var out domain.PromoCode
	err := db.RetryOnConflict(ctx, s.attempts, func() error {
		code, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return err
		}
		if code == nil {
			return domain.ErrCodeNotFound
		}
		if code.Status == domain.StatusInactive {
			out = *code
			return nil
		}
		code.Status = domain.StatusInactive
		code.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, s.db, code); err != nil {
			s.recordConflict(ctx, err)
			return err
		}
		out = *code
		return nil
	})
	if err != nil {
		return domain.PromoCode{}, err
	}
	return out, nil
}

func (s *Service) lookup(ctx context.Context, conn *gorm.DB, eventID snowflake.ID, raw string) (*domain.PromoCode, error) {
	normalized := domain.NormalizeCode(raw)
	if normalized == "" {
		return nil, domain.ErrCodeNotFound
	}
	code, err := s.repo.FindByCode(ctx, conn, eventID, normalized)
	if err != nil {
		return nil, err
	}
	if code == nil || code.Status == domain.StatusInactive {
		return nil, domain.ErrCodeNotFound
	}
	return code, nil
}

func (s *Service) customerUses(ctx context.Context, conn *gorm.DB, code *domain.PromoCode, customerID string) (int64, error) {
	customerID = strings.TrimSpace(customerID)
	if code.PerCustomerLimit == nil || customerID == "" {
		return 0, nil
	}
	return s.repo.CountCustomerRedemptions(ctx, conn, code.ID, customerID)
}

func (s *Service) recordConflict(ctx context.Context, err error) {
	if errors.Is(err, db.ErrVersionConflict) {
		s.obsMetrics.RecordVersionConflict(ctx, "promo_code")
	}
}

func dedupe(ids []snowflake.ID) []snowflake.ID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
