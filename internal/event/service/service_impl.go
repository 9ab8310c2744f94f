package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/boxoffice/internal/clock"
	"github.com/smallbiznis/boxoffice/internal/config"
	"github.com/smallbiznis/boxoffice/internal/event/domain"
	inventorydomain "github.com/smallbiznis/boxoffice/internal/inventory/domain"
	ledgerdomain "github.com/smallbiznis/boxoffice/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	"github.com/smallbiznis/boxoffice/internal/orgcontext"
	"github.com/smallbiznis/boxoffice/internal/outbox"
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
	Inventory  inventorydomain.Service
	Ledger     ledgerdomain.Service
	Contracts  config.CommissionSource
	Outbox     *outbox.Outbox      `optional:"true"`
	DBConfig   db.Config           `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	inventory  inventorydomain.Service
	ledger     ledgerdomain.Service
	contracts  config.CommissionSource
	outbox     *outbox.Outbox
	attempts   int
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("event.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		inventory:  p.Inventory,
		ledger:     p.Ledger,
		contracts:  p.Contracts,
		outbox:     p.Outbox,
		attempts:   p.DBConfig.OCCMaxAttempts,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateEventRequest) (domain.Event, error) {
	organizerID, ok := orgcontext.OrganizerIDFromContext(ctx)
	if !ok {
		return domain.Event{}, domain.ErrInvalidOrganizer
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Event{}, domain.ErrInvalidName
	}
	currency := money.NormalizeCurrency(req.Currency)
	if len(currency) != 3 {
		return domain.Event{}, domain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	event := domain.Event{
		ID:          s.genID.Generate(),
		OrganizerID: organizerID,
		Name:        name,
		Slug:        slug.Make(name),
		Status:      domain.StatusDraft,
		Venue:       strings.TrimSpace(req.Venue),
		Currency:    currency,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.StartsAt != nil {
		if !req.StartsAt.After(now) {
			return domain.Event{}, domain.ErrInvalidDate
		}
		at := req.StartsAt.UTC()
		event.StartsAt = &at
	}

	if err := s.repo.Insert(ctx, s.db, &event); err != nil {
		return domain.Event{}, err
	}
	s.log.Info("event created",
		zap.String("event_id", event.ID.String()),
		zap.String("organizer_id", organizerID.String()),
	)
	return event, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Event, error) {
	event, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Event{}, err
	}
	if event == nil {
		return domain.Event{}, domain.ErrNotFound
	}
	return *event, nil
}

func (s *Service) UpdateDetails(ctx context.Context, req domain.UpdateEventRequest) (domain.Event, error) {
	return s.mutate(ctx, req.ID, func(_ *gorm.DB, e *domain.Event, now time.Time) error {
		return e.UpdateDetails(req.Name, req.Venue, req.StartsAt, now)
	})
}

func (s *Service) Schedule(ctx context.Context, id snowflake.ID, publishAt time.Time) (domain.Event, error) {
	return s.mutate(ctx, id, func(_ *gorm.DB, e *domain.Event, now time.Time) error {
		return e.Schedule(publishAt, now)
	})
}

// Publish makes the event public and opens its ledger in the same transaction.
// The commission rate is read from the organizer's contract and frozen on the ledger.
func (s *Service) Publish(ctx context.Context, id snowflake.ID) (domain.Event, error) {
	return s.mutate(ctx, id, func(tx *gorm.DB, e *domain.Event, now time.Time) error {
		if !e.CanTransition(domain.StatusPublished, now) {
			return domain.ErrIllegalTransition
		}
		active, err := s.inventory.CountActive(ctx, tx, e.ID)
		if err != nil {
			return err
		}
		if err := e.Publish(active, now); err != nil {
			return err
		}
		bps := s.contracts.CommissionBps(e.OrganizerID.String())
		if _, err := s.ledger.Open(ctx, tx, e.ID, e.Currency, bps); err != nil {
			return err
		}
		return nil
	})
}

func (s *Service) PublishDue(ctx context.Context, now time.Time) ([]snowflake.ID, error) {
	ids, err := s.repo.ListDueScheduled(ctx, s.db, now)
	if err != nil {
		return nil, err
	}

	published := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if _, err := s.Publish(ctx, id); err != nil {
			s.log.Warn("scheduled publish failed", zap.String("event_id", id.String()), zap.Error(err))
			continue
		}
		published = append(published, id)
	}
	return published, nil
}

func (s *Service) Postpone(ctx context.Context, id snowflake.ID, newDate time.Time) (domain.Event, error) {
	return s.mutate(ctx, id, func(tx *gorm.DB, e *domain.Event, now time.Time) error {
		if err := e.Postpone(newDate, now); err != nil {
			return err
		}
		payload := map[string]any{
			"event_id":     e.ID.String(),
			"organizer_id": e.OrganizerID.String(),
			"starts_at":    e.StartsAt,
		}
		if e.PostponedFrom != nil {
			payload["postponed_from"] = e.PostponedFrom
		}
		return s.outbox.PublishTx(ctx, tx, outbox.Event{
			AggregateType: outbox.AggregateEvent,
			AggregateID:   e.ID,
			Type:          outbox.EventPostponed,
			Payload:       payload,
			DedupeKey:     outbox.EventPostponed + ":" + e.ID.String() + ":" + e.StartsAt.Format(time.RFC3339),
		})
	})
}

// Cancel terminates the event, disables every category and records the
// cancellation and refund obligations.
func (s *Service) Cancel(ctx context.Context, id snowflake.ID, reason string) (domain.Event, error) {
	return s.mutate(ctx, id, func(tx *gorm.DB, e *domain.Event, now time.Time) error {
		if err := e.Cancel(reason, now); err != nil {
			return err
		}
		if err := s.inventory.DisableAll(ctx, tx, e.ID); err != nil {
			return err
		}

		payload := map[string]any{
			"event_id":     e.ID.String(),
			"organizer_id": e.OrganizerID.String(),
			"reason":       e.CancelReason,
			"currency":     e.Currency,
		}
		if err := s.outbox.PublishTx(ctx, tx, outbox.Event{
			AggregateType: outbox.AggregateEvent,
			AggregateID:   e.ID,
			Type:          outbox.EventCancelled,
			Payload:       payload,
			DedupeKey:     outbox.EventCancelled + ":" + e.ID.String(),
		}); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, outbox.Event{
			AggregateType: outbox.AggregateEvent,
			AggregateID:   e.ID,
			Type:          outbox.EventRefundObligation,
			Payload:       payload,
			DedupeKey:     outbox.EventRefundObligation + ":" + e.ID.String(),
		})
	})
}

// mutate loads the event, applies fn and persists it under the event version in
// one transaction. Version conflicts retry the whole transaction.
func (s *Service) mutate(ctx context.Context, id snowflake.ID, fn func(*gorm.DB, *domain.Event, time.Time) error) (domain.Event, error) {
	if id == 0 {
		return domain.Event{}, domain.ErrInvalidID
	}

	var (
		out  domain.Event
		from domain.Status
	)
	err := db.RetryOnConflict(ctx, s.attempts, func() error {
		return db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
			event, err := s.repo.FindByID(ctx, tx, id)
			if err != nil {
				return err
			}
			if event == nil {
				return domain.ErrNotFound
			}
			from = event.Status

			if err := fn(tx, event, s.clock.Now()); err != nil {
				return err
			}
			if err := s.repo.Update(ctx, tx, event); err != nil {
				if errors.Is(err, db.ErrVersionConflict) {
					s.obsMetrics.RecordVersionConflict(ctx, "event")
				}
				return err
			}
			out = *event
			return nil
		})
	})
	if err != nil {
		return domain.Event{}, err
	}

	if from != out.Status {
		s.obsMetrics.RecordTransition(ctx, string(from), string(out.Status))
		s.log.Info("event transitioned",
			zap.String("event_id", out.ID.String()),
			zap.String("from", string(from)),
			zap.String("to", string(out.Status)),
		)
	}
	return out, nil
}
