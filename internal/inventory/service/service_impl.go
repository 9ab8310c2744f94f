package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/clock"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	"github.com/smallbiznis/boxoffice/internal/inventory/domain"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"github.com/smallbiznis/boxoffice/pkg/money"
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
	attempts   int
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("inventory.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		eventRepo:  p.EventRepo,
		attempts:   p.DBConfig.OCCMaxAttempts,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCategoryRequest) (domain.TicketCategory, error) {
	event, err := s.loadEvent(ctx, req.EventID)
	if err != nil {
		return domain.TicketCategory{}, err
	}
	now := s.clock.Now()
	if event.IsLocked() || event.IsTerminal(now) {
		return domain.TicketCategory{}, eventdomain.ErrFieldLocked
	}

	category, err := domain.NewTicketCategory(
		s.genID.Generate(),
		event.ID,
		req.Name,
		money.New(req.Price, event.Currency),
		req.Quantity,
		now,
	)
	if err != nil {
		return domain.TicketCategory{}, err
	}
	if err := s.repo.Insert(ctx, s.db, &category); err != nil {
		return domain.TicketCategory{}, err
	}

	s.log.Info("ticket category created",
		zap.String("event_id", event.ID.String()),
		zap.String("category_id", category.ID.String()),
		zap.Int64("quantity", category.Quantity),
	)
	return category, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.TicketCategory, error) {
	category, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.TicketCategory{}, err
	}
	if category == nil {
		return domain.TicketCategory{}, domain.ErrNotFound
	}
	return *category, nil
}

func (s *Service) ListByEvent(ctx context.Context, eventID snowflake.ID) ([]domain.TicketCategory, error) {
	return s.repo.ListByEvent(ctx, s.db, eventID)
}

func (s *Service) ReserveAndSell(ctx context.Context, id snowflake.ID, count int64) (domain.TicketCategory, error) {
	if count <= 0 {
		return domain.TicketCategory{}, domain.ErrInvalidQuantity
	}
	return s.mutate(ctx, id, func(c *domain.TicketCategory, now time.Time) error {
		return c.Sell(count, now)
	})
}

func (s *Service) Release(ctx context.Context, id snowflake.ID, count int64) (domain.TicketCategory, error) {
	if count <= 0 {
		return domain.TicketCategory{}, domain.ErrInvalidQuantity
	}
	return s.mutate(ctx, id, func(c *domain.TicketCategory, now time.Time) error {
		return c.Release(count, now)
	})
}

func (s *Service) ReleaseTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, count int64) (domain.TicketCategory, error) {
	if count <= 0 {
		return domain.TicketCategory{}, domain.ErrInvalidQuantity
	}
	return s.apply(ctx, tx, id, func(c *domain.TicketCategory, now time.Time) error {
		return c.Release(count, now)
	})
}

func (s *Service) AdjustQuantity(ctx context.Context, id snowflake.ID, quantity int64) (domain.TicketCategory, error) {
	if quantity < 0 {
		return domain.TicketCategory{}, domain.ErrInvalidQuantity
	}
	return s.mutate(ctx, id, func(c *domain.TicketCategory, now time.Time) error {
		event, err := s.loadEvent(ctx, c.EventID)
		if err != nil {
			return err
		}
		if event.IsTerminal(now) {
			return eventdomain.ErrFieldLocked
		}
		return c.AdjustQuantity(quantity, now)
	})
}

func (s *Service) ForceSoldOut(ctx context.Context, id snowflake.ID, flag bool) (domain.TicketCategory, error) {
	return s.mutate(ctx, id, func(c *domain.TicketCategory, now time.Time) error {
		return c.SetForcedSoldOut(flag, now)
	})
}

func (s *Service) DisableAll(ctx context.Context, tx *gorm.DB, eventID snowflake.ID) error {
	return s.repo.DisableByEvent(ctx, tx, eventID, s.clock.Now())
}

func (s *Service) CountActive(ctx context.Context, tx *gorm.DB, eventID snowflake.ID) (int64, error) {
	return s.repo.CountActive(ctx, tx, eventID)
}

// mutate runs a versioned read-modify-write of one category, retrying on conflicts.
func (s *Service) mutate(ctx context.Context, id snowflake.ID, fn func(*domain.TicketCategory, time.Time) error) (domain.TicketCategory, error) {
	var out domain.TicketCategory
	err := db.RetryOnConflict(ctx, s.attempts, func() error {
		category, err := s.apply(ctx, s.db, id, fn)
		if err != nil {
			return err
		}
		out = category
		return nil
	})
	return out, err
}

func (s *Service) apply(ctx context.Context, conn *gorm.DB, id snowflake.ID, fn func(*domain.TicketCategory, time.Time) error) (domain.TicketCategory, error) {
	category, err := s.repo.FindByID(ctx, conn, id)
	if err != nil {
		return domain.TicketCategory{}, err
	}
	if category == nil {
		return domain.TicketCategory{}, domain.ErrNotFound
	}
	if err := fn(category, s.clock.Now()); err != nil {
		return domain.TicketCategory{}, err
	}
	if err := s.repo.Update(ctx, conn, category); err != nil {
		if errors.Is(err, db.ErrVersionConflict) {
			s.obsMetrics.RecordVersionConflict(ctx, "ticket_category")
		}
		return domain.TicketCategory{}, err
	}
	return *category, nil
}

func (s *Service) loadEvent(ctx context.Context, id snowflake.ID) (*eventdomain.Event, error) {
	event, err := s.eventRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, eventdomain.ErrNotFound
	}
	return event, nil
}
