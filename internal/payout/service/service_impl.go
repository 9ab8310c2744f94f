package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/clock"
	"github.com/smallbiznis/boxoffice/internal/config"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	ledgerdomain "github.com/smallbiznis/boxoffice/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	"github.com/smallbiznis/boxoffice/internal/orgcontext"
	"github.com/smallbiznis/boxoffice/internal/outbox"
	"github.com/smallbiznis/boxoffice/internal/payout/domain"
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
	Cfg        config.Config
	Repo       domain.Repository
	EventRepo  eventdomain.Repository
	Ledger     ledgerdomain.Service
	Outbox     *outbox.Outbox      `optional:"true"`
	DBConfig   db.Config           `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	minimum    int64
	repo       domain.Repository
	eventRepo  eventdomain.Repository
	ledger     ledgerdomain.Service
	outbox     *outbox.Outbox
	attempts   int
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payout.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		minimum:    p.Cfg.Payout.MinimumMinor,
		repo:       p.Repo,
		eventRepo:  p.EventRepo,
		ledger:     p.Ledger,
		outbox:     p.Outbox,
		attempts:   p.DBConfig.OCCMaxAttempts,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) RegisterBankAccount(ctx context.Context, req domain.RegisterBankAccountRequest) (domain.BankAccountView, error) {
	organizerID, ok := orgcontext.OrganizerIDFromContext(ctx)
	if !ok {
		return domain.BankAccountView{}, domain.ErrInvalidOrganizer
	}

	holder := strings.TrimSpace(req.HolderName)
	iban := domain.NormalizeIBAN(req.IBAN)
	if holder == "" || !validIBAN(iban) {
		return domain.BankAccountView{}, domain.ErrInvalidAccount
	}

	account := domain.BankAccount{
		ID:          s.genID.Generate(),
		OrganizerID: organizerID,
		HolderName:  holder,
		IBAN:        iban,
		BankName:    strings.TrimSpace(req.BankName),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.repo.InsertBankAccount(ctx, s.db, &account); err != nil {
		return domain.BankAccountView{}, err
	}

	s.log.Info("bank account registered",
		zap.String("organizer_id", organizerID.String()),
		zap.String("bank_account_id", account.ID.String()),
	)
	return domain.NewBankAccountView(account), nil
}

func (s *Service) ListBankAccounts(ctx context.Context) ([]domain.BankAccountView, error) {
	organizerID, ok := orgcontext.OrganizerIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganizer
	}
	accounts, err := s.repo.ListBankAccounts(ctx, s.db, organizerID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.BankAccountView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, domain.NewBankAccountView(account))
	}
	return views, nil
}

// Request reserves amount on the event ledger and records a payout request in
// the same transaction.
func (s *Service) Request(ctx context.Context, req domain.RequestPayoutRequest) (domain.PayoutRequest, error) {
	if req.Amount < s.minimum || req.Amount <= 0 {
		return domain.PayoutRequest{}, domain.ErrPayoutBelowMinimum
	}

	reference := domain.NewReference()
	var out domain.PayoutRequest
	err := db.RetryOnConflict(ctx, s.attempts, func() error {
		return db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
			event, err := s.eventRepo.FindByID(ctx, tx, req.EventID)
			if err != nil {
				return err
			}
			if event == nil {
				return eventdomain.ErrNotFound
			}
			account, err := s.repo.FindBankAccount(ctx, tx, req.BankAccountID)
			if err != nil {
				return err
			}
			if account == nil {
				return domain.ErrAccountNotFound
			}
			if account.OrganizerID != event.OrganizerID {
				return domain.ErrAccountNotOwned
			}

			ledger, err := s.ledger.ReservePayout(ctx, tx, event.ID, req.Amount, reference)
			if err != nil {
				return err
			}

			now := s.clock.Now()
			request := domain.PayoutRequest{
				ID:            s.genID.Generate(),
				EventID:       event.ID,
				OrganizerID:   event.OrganizerID,
				Reference:     reference,
				Amount:        req.Amount,
				Currency:      ledger.Currency,
				BankAccountID: account.ID,
				Status:        domain.StatusRequested,
				RequestedAt:   now,
				Version:       1,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.repo.Insert(ctx, tx, &request); err != nil {
				return err
			}
			out = request
			return nil
		})
	})
	if err != nil {
		return domain.PayoutRequest{}, err
	}

	s.obsMetrics.RecordPayout(ctx, string(out.Status))
	s.log.Info("payout requested",
		zap.String("event_id", out.EventID.String()),
		zap.String("reference", out.Reference),
		zap.Int64("amount", out.Amount),
	)
	return out, nil
}

// Advance moves a payout one step. Completion commits the reservation, failure
// releases it. A terminal payout is returned unchanged.
func (s *Service) Advance(ctx context.Context, req domain.AdvanceRequest) (domain.PayoutRequest, error) {
	var (
		out   domain.PayoutRequest
		moved bool
	)
	err := db.RetryOnConflict(ctx, s.attempts, func() error {
		return db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
			request, err := s.repo.FindByID(ctx, tx, req.ID)
			if err != nil {
				return err
			}
			if request == nil {
				return domain.ErrNotFound
			}

			moved, err = request.Advance(req.Outcome, req.PaymentReference, req.FailureReason, s.clock.Now())
			if err != nil {
				return err
			}
			out = *request
			if !moved {
				return nil
			}

			switch request.Status {
			case domain.StatusCompleted:
				if _, err := s.ledger.CommitPayout(ctx, tx, request.EventID, request.Amount, request.Reference); err != nil {
					return err
				}
			case domain.StatusFailed:
				if _, err := s.ledger.ReleaseReservation(ctx, tx, request.EventID, request.Amount, request.Reference); err != nil {
					return err
				}
			}

			if err := s.repo.Update(ctx, tx, request); err != nil {
				if errors.Is(err, db.ErrVersionConflict) {
					s.obsMetrics.RecordVersionConflict(ctx, "payout_request")
				}
				return err
			}
			out = *request
			return s.notify(ctx, tx, *request)
		})
	})
	if err != nil {
		return domain.PayoutRequest{}, err
	}

	if moved {
		s.obsMetrics.RecordPayout(ctx, string(out.Status))
		s.log.Info("payout advanced",
			zap.String("reference", out.Reference),
			zap.String("status", string(out.Status)),
		)
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.PayoutRequest, error) {
	request, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.PayoutRequest{}, err
	}
	if request == nil {
		return domain.PayoutRequest{}, domain.ErrNotFound
	}
	return *request, nil
}

func (s *Service) ListByEvent(ctx context.Context, eventID snowflake.ID) ([]domain.PayoutRequest, error) {
	return s.repo.ListByEvent(ctx, s.db, eventID)
}

func (s *Service) ListPending(ctx context.Context, eventID snowflake.ID) (domain.PendingPayouts, error) {
	requests, err := s.repo.ListByEventStatus(ctx, s.db, eventID, domain.StatusRequested, domain.StatusProcessing)
	if err != nil {
		return domain.PendingPayouts{}, err
	}
	pending := domain.PendingPayouts{Payouts: requests, Count: int64(len(requests))}
	for _, request := range requests {
		pending.TotalAmount += request.Amount
	}
	return pending, nil
}

func (s *Service) Summary(ctx context.Context, eventID snowflake.ID) (domain.PayoutSummary, error) {
	sums, err := s.repo.SumByStatus(ctx, s.db, eventID)
	if err != nil {
		return domain.PayoutSummary{}, err
	}
	thisMonth, err := s.repo.SumCompletedSince(ctx, s.db, eventID, domain.MonthStart(s.clock.Now()))
	if err != nil {
		return domain.PayoutSummary{}, err
	}
	return domain.NewPayoutSummary(eventID, sums, thisMonth), nil
}

func (s *Service) notify(ctx context.Context, tx *gorm.DB, request domain.PayoutRequest) error {
	var eventType string
	switch request.Status {
	case domain.StatusCompleted:
		eventType = outbox.PayoutCompleted
	case domain.StatusFailed:
		eventType = outbox.PayoutFailed
	default:
		return nil
	}

	payload := map[string]any{
		"payout_id":       request.ID.String(),
		"event_id":        request.EventID.String(),
		"organizer_id":    request.OrganizerID.String(),
		"reference":       request.Reference,
		"amount":          request.Amount,
		"currency":        request.Currency,
		"bank_account_id": request.BankAccountID.String(),
	}
	if request.FailureReason != "" {
		payload["failure_reason"] = request.FailureReason
	}
	return s.outbox.PublishTx(ctx, tx, outbox.Event{
		AggregateType: outbox.AggregatePayout,
		AggregateID:   request.ID,
		Type:          eventType,
		Payload:       payload,
		DedupeKey:     eventType + ":" + request.Reference,
	})
}

// validIBAN checks shape only: country code, check digits and an alphanumeric body.
func validIBAN(iban string) bool {
	if len(iban) < 15 || len(iban) > 34 {
		return false
	}
	for i, r := range iban {
		switch {
		case i < 2 && (r < 'A' || r > 'Z'):
			return false
		case i >= 2 && i < 4 && (r < '0' || r > '9'):
			return false
		case (r < 'A' || r > 'Z') && (r < '0' || r > '9'):
			return false
		}
	}
	return true
}
