package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/clock"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	eventrepository "github.com/smallbiznis/boxoffice/internal/event/repository"
	inventorydomain "github.com/smallbiznis/boxoffice/internal/inventory/domain"
	inventoryrepository "github.com/smallbiznis/boxoffice/internal/inventory/repository"
	"github.com/smallbiznis/boxoffice/internal/promocode/domain"
	"github.com/smallbiznis/boxoffice/internal/promocode/repository"
	"github.com/smallbiznis/boxoffice/internal/promocode/service"
	"github.com/smallbiznis/boxoffice/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db            *gorm.DB
	node          *snowflake.Node
	clock         *clock.FakeClock
	eventRepo     eventdomain.Repository
	inventoryRepo inventorydomain.Repository
	svc           domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	node := dbtest.Node(t, 5)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	f := &fixture{
		db:            conn,
		node:          node,
		clock:         clk,
		eventRepo:     eventrepository.Provide(),
		inventoryRepo: inventoryrepository.Provide(),
	}
	f.svc = service.NewService(service.Params{
		DB:            conn,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clk,
		Repo:          repository.Provide(),
		EventRepo:     f.eventRepo,
		InventoryRepo: f.inventoryRepo,
	})
	return f
}

func (f *fixture) event(t *testing.T, status eventdomain.Status) eventdomain.Event {
	t.Helper()
	now := f.clock.Now()
	startsAt := now.Add(30 * 24 * time.Hour)
	event := eventdomain.Event{
		ID:          f.node.Generate(),
		OrganizerID: 7,
		Name:        "Gala",
		Slug:        "gala",
		Status:      status,
		Venue:       "opera",
		StartsAt:    &startsAt,
		Currency:    "RON",
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.eventRepo.Insert(context.Background(), f.db, &event))
	return event
}

func (f *fixture) category(t *testing.T, eventID snowflake.ID) inventorydomain.TicketCategory {
	t.Helper()
	now := f.clock.Now()
	category := inventorydomain.TicketCategory{
		ID: f.node.Generate(), EventID: eventID, Name: "GA", Price: 10_000, Currency: "RON",
		Quantity: 100, Status: inventorydomain.StatusActive, Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.inventoryRepo.Insert(context.Background(), f.db, &category))
	return category
}

func limit(n int64) *int64 { return &n }

func TestExhaustedCodeFailsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, eventdomain.StatusPublished)

	code, err := f.svc.Create(ctx, domain.CreatePromoCodeRequest{
		EventID: event.ID, Code: "early", Kind: domain.KindPercentage, Value: 1_000, UsageLimit: limit(10),
	})
	require.NoError(t, err)
	assert.Equal(t, "EARLY", code.Code)

	for i := 0; i < 10; i++ {
		_, err := f.svc.Redeem(ctx, domain.RedeemRequest{
			ValidateRequest: domain.ValidateRequest{EventID: event.ID, Code: "EARLY", Subtotal: 10_000},
			TransactionID:   fmt.Sprintf("tx-%d", i),
		})
		require.NoError(t, err)
	}

	stored, err := f.svc.Get(ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.UsesCount)

	_, err = f.svc.Validate(ctx, domain.ValidateRequest{EventID: event.ID, Code: "Early", Subtotal: 10_000})
	assert.ErrorIs(t, err, domain.ErrCodeExhausted)
}

func TestValidateDoesNotConsume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, eventdomain.StatusDraft)
	code, err := f.svc.Create(ctx, domain.CreatePromoCodeRequest{
		EventID: event.ID, Code: "FLAT50", Kind: domain.KindFixed, Value: 5_000, UsageLimit: limit(1),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		discount, err := f.svc.Validate(ctx, domain.ValidateRequest{EventID: event.ID, Code: "flat50", Subtotal: 20_000})
		require.NoError(t, err)
		assert.Equal(t, int64(5_000), discount.Amount)
	}

	stored, err := f.svc.Get(ctx, code.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.UsesCount)
	assert.Equal(t, code.Version, stored.Version)
}

func TestRedeemIsIdempotentPerTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, eventdomain.StatusPublished)
	code, err := f.svc.Create(ctx, domain.CreatePromoCodeRequest{
		EventID: event.ID, Code: "VIP", Kind: domain.KindPercentage, Value: 2_000, PerCustomerLimit: limit(1),
	})
	require.NoError(t, err)

	req := domain.RedeemRequest{
		ValidateRequest: domain.ValidateRequest{EventID: event.ID, Code: "VIP", CustomerID: "cust-1", Subtotal: 10_000},
		TransactionID:   "order-1",
	}
	first, err := f.svc.Redeem(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000), first.DiscountAmount)

	second, err := f.svc.Redeem(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	stored, err := f.svc.Get(ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.UsesCount)

	req.TransactionID = "order-2"
	_, err = f.svc.Redeem(ctx, req)
	assert.ErrorIs(t, err, domain.ErrPerCustomerLimitReached)

	req.CustomerID = ""
	_, err = f.svc.Redeem(ctx, req)
	assert.ErrorIs(t, err, domain.ErrCustomerRequired)
}

func TestConcurrentRedeemOfLastUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, eventdomain.StatusPublished)
	_, err := f.svc.Create(ctx, domain.CreatePromoCodeRequest{
		EventID: event.ID, Code: "LAST", Kind: domain.KindFixed, Value: 100, UsageLimit: limit(1),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Redeem(ctx, domain.RedeemRequest{
				ValidateRequest: domain.ValidateRequest{EventID: event.ID, Code: "LAST", Subtotal: 1_000},
				TransactionID:   fmt.Sprintf("tx-%d", i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	redeemed := 0
	for err := range errs {
		switch {
		case err == nil:
			redeemed++
		case errors.Is(err, domain.ErrCodeExhausted):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, redeemed)
}

func TestCreateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	published := f.event(t, eventdomain.StatusPublished)
	other := f.event(t, eventdomain.StatusDraft)
	cancelled := f.event(t, eventdomain.StatusCancelled)
	category := f.category(t, published.ID)
	foreign := f.category(t, other.ID)

	_, err := f.svc.Create(ctx, domain.CreatePromoCodeRequest{
		EventID: published.ID, Code: "Scoped", Kind: domain.KindFixed, Value: 500,
		CategoryIDs: []snowflake.ID{category.ID, category.ID},
	})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, domain.CreatePromoCodeRequest{EventID: published.ID, Code: "SCOPED", Kind: domain.KindFixed, Value: 1})
	assert.ErrorIs(t, err, domain.ErrDuplicateCode)

	_, err = f.svc.Create(ctx, domain.CreatePromoCodeRequest{EventID: other.ID, Code: "scoped", Kind: domain.KindFixed, Value: 1})
	assert.NoError(t, err)

	_, err = f.svc.Create(ctx, domain.CreatePromoCodeRequest{
		EventID: published.ID, Code: "WRONG", Kind: domain.KindFixed, Value: 1, CategoryIDs: []snowflake.ID{foreign.ID},
	})
	assert.ErrorIs(t, err, domain.ErrCategoryNotInEvent)

	_, err = f.svc.Create(ctx, domain.CreatePromoCodeRequest{EventID: cancelled.ID, Code: "LATE", Kind: domain.KindFixed, Value: 1})
	assert.ErrorIs(t, err, eventdomain.ErrIllegalTransition)

	_, err = f.svc.Validate(ctx, domain.ValidateRequest{EventID: published.ID, Code: "SCOPED", CategoryID: foreign.ID, Subtotal: 1_000})
	assert.ErrorIs(t, err, domain.ErrCodeNotApplicable)
	discount, err := f.svc.Validate(ctx, domain.ValidateRequest{EventID: published.ID, Code: "SCOPED", CategoryID: category.ID, Subtotal: 1_000})
	require.NoError(t, err)
	assert.Equal(t, int64(500), discount.Amount)

	codes, err := f.svc.ListByEvent(ctx, published.ID)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.Equal(t, []snowflake.ID{category.ID}, codes[0].CategoryIDs)
}

func TestRevokeAndDeactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, eventdomain.StatusPublished)
	code, err := f.svc.Create(ctx, domain.CreatePromoCodeRequest{
		EventID: event.ID, Code: "ONCE", Kind: domain.KindFixed, Value: 100, UsageLimit: limit(1),
	})
	require.NoError(t, err)

	req := domain.RedeemRequest{
		ValidateRequest: domain.ValidateRequest{EventID: event.ID, Code: "ONCE", Subtotal: 1_000},
		TransactionID:   "order-1",
	}
	_, err = f.svc.Redeem(ctx, req)
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(ctx, event.ID, "once", "order-1"))
	require.NoError(t, f.svc.Revoke(ctx, event.ID, "once", "order-1"))

	stored, err := f.svc.Get(ctx, code.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.UsesCount)

	_, err = f.svc.Validate(ctx, req.ValidateRequest)
	require.NoError(t, err)

	deactivated, err := f.svc.Deactivate(ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInactive, deactivated.Status)

	_, err = f.svc.Validate(ctx, req.ValidateRequest)
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
	_, err = f.svc.Validate(ctx, domain.ValidateRequest{EventID: event.ID, Code: "NOPE"})
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestRedeemAndRevokeSyncDepletedStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, eventdomain.StatusPublished)
	code, err := f.svc.Create(ctx, domain.CreatePromoCodeRequest{
		EventID: event.ID, Code: "PAIR", Kind: domain.KindFixed, Value: 100, UsageLimit: limit(1),
	})
	require.NoError(t, err)

	_, err = f.svc.Redeem(ctx, domain.RedeemRequest{
		ValidateRequest: domain.ValidateRequest{EventID: event.ID, Code: "PAIR", Subtotal: 1_000},
		TransactionID:   "order-1",
	})
	require.NoError(t, err)

	persisted, err := repository.Provide().FindByID(ctx, f.db, code.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDepleted, persisted.Status)

	require.NoError(t, f.svc.Revoke(ctx, event.ID, "PAIR", "order-1"))
	persisted, err = repository.Provide().FindByID(ctx, f.db, code.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, persisted.Status)
}

func TestUpdatePromoCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, eventdomain.StatusPublished)
	code, err := f.svc.Create(ctx, domain.CreatePromoCodeRequest{
		EventID: event.ID, Code: "GROW", Kind: domain.KindPercentage, Value: 1_000, UsageLimit: limit(1),
	})
	require.NoError(t, err)

	_, err = f.svc.Redeem(ctx, domain.RedeemRequest{
		ValidateRequest: domain.ValidateRequest{EventID: event.ID, Code: "GROW", Subtotal: 1_000},
		TransactionID:   "order-1",
	})
	require.NoError(t, err)
	_, err = f.svc.Validate(ctx, domain.ValidateRequest{EventID: event.ID, Code: "GROW", Subtotal: 1_000})
	assert.ErrorIs(t, err, domain.ErrCodeExhausted)

	updated, err := f.svc.Update(ctx, domain.UpdatePromoCodeRequest{ID: code.ID, UsageLimit: limit(3), MaxDiscountAmount: limit(50)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, updated.Status)
	assert.Equal(t, code.Version+2, updated.Version)

	discount, err := f.svc.Validate(ctx, domain.ValidateRequest{EventID: event.ID, Code: "GROW", Subtotal: 1_000})
	require.NoError(t, err)
	assert.Equal(t, int64(50), discount.Amount)

	_, err = f.svc.Update(ctx, domain.UpdatePromoCodeRequest{ID: code.ID, UsageLimit: limit(0)})
	assert.ErrorIs(t, err, domain.ErrInvalidLimit)
	_, err = f.svc.Update(ctx, domain.UpdatePromoCodeRequest{ID: f.node.Generate()})
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)

	stored, err := f.svc.Get(ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), *stored.UsageLimit)
	assert.Equal(t, int64(50), *stored.MaxDiscountAmount)
}

func TestUpdateRejectsCancelledEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, eventdomain.StatusPublished)
	code, err := f.svc.Create(ctx, domain.CreatePromoCodeRequest{
		EventID: event.ID, Code: "GONE", Kind: domain.KindFixed, Value: 100,
	})
	require.NoError(t, err)

	require.NoError(t, f.db.Exec(`UPDATE events SET status = ? WHERE id = ?`, eventdomain.StatusCancelled, event.ID).Error)
	_, err = f.svc.Update(ctx, domain.UpdatePromoCodeRequest{ID: code.ID, UsageLimit: limit(5)})
	assert.ErrorIs(t, err, eventdomain.ErrIllegalTransition)
}

func TestUsageStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, eventdomain.StatusPublished)
	code, err := f.svc.Create(ctx, domain.CreatePromoCodeRequest{
		EventID: event.ID, Code: "STATS", Kind: domain.KindPercentage, Value: 1_000, UsageLimit: limit(10),
	})
	require.NoError(t, err)

	redemptions := []struct {
		customer string
		subtotal int64
	}{
		{"cust-1", 10_000},
		{"cust-1", 20_000},
		{"cust-2", 5_000},
		{"", 1_000},
	}
	for i, r := range redemptions {
		_, err := f.svc.Redeem(ctx, domain.RedeemRequest{
			ValidateRequest: domain.ValidateRequest{EventID: event.ID, Code: "STATS", CustomerID: r.customer, Subtotal: r.subtotal},
			TransactionID:   fmt.Sprintf("order-%d", i),
		})
		require.NoError(t, err)
	}

	stats, err := f.svc.UsageStats(ctx, code.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.UsesCount)
	assert.Equal(t, int64(6), *stats.Remaining)
	assert.Equal(t, int64(3_600), stats.TotalDiscount)
	assert.Equal(t, int64(36_000), stats.TotalSubtotal)
	assert.Equal(t, int64(2), stats.UniqueCustomers)
	assert.Equal(t, int64(900), stats.AverageDiscount)

	_, err = f.svc.UsageStats(ctx, f.node.Generate())
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestExpireDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	event := f.event(t, eventdomain.StatusPublished)
	until := f.clock.Now().Add(time.Hour)
	short, err := f.svc.Create(ctx, domain.CreatePromoCodeRequest{
		EventID: event.ID, Code: "SHORT", Kind: domain.KindFixed, Value: 100, ValidUntil: &until,
	})
	require.NoError(t, err)
	open, err := f.svc.Create(ctx, domain.CreatePromoCodeRequest{
		EventID: event.ID, Code: "OPEN", Kind: domain.KindFixed, Value: 100,
	})
	require.NoError(t, err)

	expired, err := f.svc.ExpireDue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, expired)

	f.clock.Advance(2 * time.Hour)
	listed, err := f.svc.Get(ctx, short.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, listed.Status)

	expired, err = f.svc.ExpireDue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	persisted, err := repository.Provide().FindByID(ctx, f.db, short.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, persisted.Status)
	untouched, err := repository.Provide().FindByID(ctx, f.db, open.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, untouched.Status)

	expired, err = f.svc.ExpireDue(ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, expired)
}
