package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/clock"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	ledgerdomain "github.com/smallbiznis/boxoffice/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"github.com/smallbiznis/boxoffice/pkg/db/pagination"
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
	Repo       ledgerdomain.Repository
	EventRepo  eventdomain.Repository
	DBConfig   db.Config           `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       ledgerdomain.Repository
	eventRepo  eventdomain.Repository
	attempts   int
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		eventRepo:  p.EventRepo,
		attempts:   p.DBConfig.OCCMaxAttempts,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Open(ctx context.Context, tx *gorm.DB, eventID snowflake.ID, currency string, commissionBps int64) (ledgerdomain.Ledger, error) {
	ledger, err := ledgerdomain.NewLedger(eventID, currency, commissionBps, s.clock.Now())
	if err != nil {
		return ledgerdomain.Ledger{}, err
	}
	if err := s.repo.Insert(ctx, tx, &ledger); err != nil {
		return ledgerdomain.Ledger{}, err
	}
	stored, err := s.repo.FindByEventID(ctx, tx, eventID)
	if err != nil {
		return ledgerdomain.Ledger{}, err
	}
	if stored == nil {
		return ledgerdomain.Ledger{}, ledgerdomain.ErrLedgerNotFound
	}
	return *stored, nil
}

func (s *Service) Get(ctx context.Context, eventID snowflake.ID) (ledgerdomain.Ledger, error) {
	ledger, err := s.repo.FindByEventID(ctx, s.db, eventID)
	if err != nil {
		return ledgerdomain.Ledger{}, err
	}
	if ledger == nil {
		return ledgerdomain.Ledger{}, ledgerdomain.ErrLedgerNotFound
	}
	return *ledger, nil
}

func (s *Service) Transactions(ctx context.Context, eventID snowflake.ID, page pagination.Pagination) (ledgerdomain.ListTransactionsResponse, error) {
	if _, err := s.Get(ctx, eventID); err != nil {
		return ledgerdomain.ListTransactionsResponse{}, err
	}
	txs, err := s.repo.ListTransactions(ctx, s.db, eventID, &page)
	if err != nil {
		return ledgerdomain.ListTransactionsResponse{}, err
	}
	txs, info := pagination.Trim(txs, page, func(tx ledgerdomain.Transaction) int64 { return int64(tx.ID) })
	return ledgerdomain.ListTransactionsResponse{PageInfo: info, Transactions: txs}, nil
}

func (s *Service) FindTransaction(ctx context.Context, eventID snowflake.ID, kind ledgerdomain.TransactionKind, reference string) (*ledgerdomain.Transaction, error) {
	return s.repo.FindTransaction(ctx, s.db, eventID, kind, strings.TrimSpace(reference))
}

func (s *Service) RecordSale(ctx context.Context, eventID snowflake.ID, amount int64, reference string) (ledgerdomain.Ledger, error) {
	return s.record(ctx, eventID, ledgerdomain.KindSale, amount, reference)
}

func (s *Service) RecordRefund(ctx context.Context, eventID snowflake.ID, amount int64, reference string) (ledgerdomain.Ledger, error) {
	return s.record(ctx, eventID, ledgerdomain.KindRefund, amount, reference)
}

func (s *Service) BookRefund(ctx context.Context, tx *gorm.DB, eventID snowflake.ID, amount int64, reference string) (ledgerdomain.Ledger, bool, error) {
	return s.apply(ctx, tx, eventID, ledgerdomain.KindRefund, amount, reference)
}

func (s *Service) ReservePayout(ctx context.Context, tx *gorm.DB, eventID snowflake.ID, amount int64, reference string) (ledgerdomain.Ledger, error) {
	ledger, _, err := s.apply(ctx, tx, eventID, ledgerdomain.KindPayoutReserve, amount, reference)
	return ledger, err
}

func (s *Service) ReleaseReservation(ctx context.Context, tx *gorm.DB, eventID snowflake.ID, amount int64, reference string) (ledgerdomain.Ledger, error) {
	ledger, _, err := s.apply(ctx, tx, eventID, ledgerdomain.KindPayoutRelease, amount, reference)
	return ledger, err
}

func (s *Service) CommitPayout(ctx context.Context, tx *gorm.DB, eventID snowflake.ID, amount int64, reference string) (ledgerdomain.Ledger, error) {
	ledger, _, err := s.apply(ctx, tx, eventID, ledgerdomain.KindPayoutCommit, amount, reference)
	return ledger, err
}

// Verify replays the transaction log and compares it with the stored figures.
func (s *Service) Verify(ctx context.Context, eventID snowflake.ID) (ledgerdomain.Ledger, error) {
	ledger, err := s.Get(ctx, eventID)
	if err != nil {
		return ledgerdomain.Ledger{}, err
	}
	txs, err := s.repo.ListTransactions(ctx, s.db, eventID, nil)
	if err != nil {
		return ledgerdomain.Ledger{}, err
	}
	replayed, err := ledgerdomain.Replay(eventID, ledger.Currency, ledger.CommissionBps, txs)
	if err != nil {
		s.log.Error("ledger replay failed", zap.String("event_id", eventID.String()), zap.Error(err))
		return ledger, errors.Join(ledgerdomain.ErrReplayMismatch, err)
	}
	if !replayed.SameFigures(ledger) {
		s.log.Error("ledger replay mismatch",
			zap.String("event_id", eventID.String()),
			zap.Int64("stored_net", ledger.NetRevenue),
			zap.Int64("replayed_net", replayed.NetRevenue),
			zap.Int64("stored_available", ledger.AvailableBalance),
			zap.Int64("replayed_available", replayed.AvailableBalance),
		)
		return ledger, ledgerdomain.ErrReplayMismatch
	}
	return ledger, nil
}

// Retire freezes the ledger once its event is terminal and no payout is pending.
func (s *Service) Retire(ctx context.Context, eventID snowflake.ID) (ledgerdomain.Ledger, error) {
	var out ledgerdomain.Ledger
	err := db.RetryOnConflict(ctx, s.attempts, func() error {
		ledger, err := s.repo.FindByEventID(ctx, s.db, eventID)
		if err != nil {
			return err
		}
		if ledger == nil {
			return ledgerdomain.ErrLedgerNotFound
		}
		if ledger.IsRetired() {
			out = *ledger
			return nil
		}

		event, err := s.eventRepo.FindByID(ctx, s.db, eventID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if event == nil || !event.IsTerminal(now) || ledger.PendingPayout != 0 {
			return ledgerdomain.ErrNotRetirable
		}

		ledger.RetiredAt = &now
		ledger.UpdatedAt = now
		if err := s.repo.Update(ctx, s.db, ledger); err != nil {
			s.recordConflict(ctx, err)
			return err
		}
		out = *ledger
		return nil
	})
	if err != nil {
		return ledgerdomain.Ledger{}, err
	}
	return out, nil
}

func (s *Service) record(ctx context.Context, eventID snowflake.ID, kind ledgerdomain.TransactionKind, amount int64, reference string) (ledgerdomain.Ledger, error) {
	var out ledgerdomain.Ledger
	err := db.RetryOnConflict(ctx, s.attempts, func() error {
		return db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
			ledger, _, err := s.apply(ctx, tx, eventID, kind, amount, reference)
			if err != nil {
				return err
			}
			out = ledger
			return nil
		})
	})
	if err != nil {
		return ledgerdomain.Ledger{}, err
	}
	return out, nil
}

// apply appends one transaction to the log and updates the ledger under its
// version. A reference already logged for the same kind and amount is a no-op
// reported as not applied; a different amount is ErrReferenceConflict.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, eventID snowflake.ID, kind ledgerdomain.TransactionKind, amount int64, reference string) (ledgerdomain.Ledger, bool, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return ledgerdomain.Ledger{}, false, ledgerdomain.ErrInvalidReference
	}
	if amount <= 0 {
		return ledgerdomain.Ledger{}, false, ledgerdomain.ErrNegativeAmount
	}

	ledger, err := s.repo.FindByEventID(ctx, tx, eventID)
	if err != nil {
		return ledgerdomain.Ledger{}, false, err
	}
	if ledger == nil {
		return ledgerdomain.Ledger{}, false, ledgerdomain.ErrLedgerNotFound
	}

	existing, err := s.repo.FindTransaction(ctx, tx, eventID, kind, reference)
	if err != nil {
		return ledgerdomain.Ledger{}, false, err
	}
	if existing != nil {
		if existing.Amount != amount {
			s.log.Warn("ledger reference replayed with a different amount",
				zap.String("event_id", eventID.String()),
				zap.String("kind", string(kind)),
				zap.String("reference", reference),
				zap.Int64("recorded_amount", existing.Amount),
				zap.Int64("amount", amount),
			)
			return ledgerdomain.Ledger{}, false, ledgerdomain.ErrReferenceConflict
		}
		return *ledger, false, nil
	}

	if err := ledger.Apply(kind, amount); err != nil {
		return ledgerdomain.Ledger{}, false, err
	}
	now := s.clock.Now()
	ledger.UpdatedAt = now
	if err := s.repo.Update(ctx, tx, ledger); err != nil {
		s.recordConflict(ctx, err)
		return ledgerdomain.Ledger{}, false, err
	}

	inserted, err := s.repo.InsertTransaction(ctx, tx, &ledgerdomain.Transaction{
		ID:         s.genID.Generate(),
		EventID:    eventID,
		Kind:       kind,
		Amount:     amount,
		Reference:  reference,
		OccurredAt: now,
		CreatedAt:  now,
	})
	if err != nil {
		return ledgerdomain.Ledger{}, false, err
	}
	if !inserted {
		return ledgerdomain.Ledger{}, false, db.ErrVersionConflict
	}

	s.log.Debug("ledger transaction applied",
		zap.String("event_id", eventID.String()),
		zap.String("kind", string(kind)),
		zap.Int64("amount", amount),
		zap.String("reference", reference),
		zap.Int64("available_balance", ledger.AvailableBalance),
	)
	return *ledger, true, nil
}

func (s *Service) recordConflict(ctx context.Context, err error) {
	if errors.Is(err, db.ErrVersionConflict) {
		s.obsMetrics.RecordVersionConflict(ctx, "ledger")
	}
}
