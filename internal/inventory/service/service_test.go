package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/clock"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	eventrepository "github.com/smallbiznis/boxoffice/internal/event/repository"
	"github.com/smallbiznis/boxoffice/internal/inventory/domain"
	"github.com/smallbiznis/boxoffice/internal/inventory/repository"
	"github.com/smallbiznis/boxoffice/internal/inventory/service"
	"github.com/smallbiznis/boxoffice/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	clock     *clock.FakeClock
	eventRepo eventdomain.Repository
	svc       domain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	node := dbtest.Node(t, 2)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	eventRepo := eventrepository.Provide()

	return &fixture{
		db:        conn,
		node:      node,
		clock:     clk,
		eventRepo: eventRepo,
		svc: service.NewService(service.Params{
			DB:        conn,
			Log:       zap.NewNop(),
			GenID:     node,
			Clock:     clk,
			Repo:      repository.Provide(),
			EventRepo: eventRepo,
		}),
	}
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

func (f *fixture) category(t *testing.T, eventID snowflake.ID, quantity int64) domain.TicketCategory {
	t.Helper()
	category, err := f.svc.Create(context.Background(), domain.CreateCategoryRequest{
		EventID:  eventID,
		Name:     "General",
		Price:    12_500,
		Quantity: quantity,
	})
	require.NoError(t, err)
	return category
}

func TestCreateInheritsEventCurrency(t *testing.T) {
	f := newFixture(t)
	event := f.event(t, eventdomain.StatusDraft)

	category := f.category(t, event.ID, 50)
	assert.Equal(t, "RON", category.Currency)
	assert.Equal(t, domain.StatusActive, category.Status)
	assert.Equal(t, int64(1), category.Version)
}

func TestCreateRejectedWhileEventLocked(t *testing.T) {
	f := newFixture(t)
	event := f.event(t, eventdomain.StatusPublished)

	_, err := f.svc.Create(context.Background(), domain.CreateCategoryRequest{EventID: event.ID, Name: "Late", Price: 1, Quantity: 1})
	assert.ErrorIs(t, err, eventdomain.ErrFieldLocked)

	_, err = f.svc.Create(context.Background(), domain.CreateCategoryRequest{EventID: 999, Name: "Ghost", Quantity: 1})
	assert.ErrorIs(t, err, eventdomain.ErrNotFound)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t)
	event := f.event(t, eventdomain.StatusDraft)
	category := f.category(t, event.ID, 100)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failed    []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ReserveAndSell(context.Background(), category.ID, 60)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, err)
				return
			}
			succeeded++
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], domain.ErrInsufficientInventory)

	stored, err := f.svc.Get(context.Background(), category.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), stored.Sold)
}

func TestManyConcurrentSalesOfLastUnits(t *testing.T) {
	f := newFixture(t)
	event := f.event(t, eventdomain.StatusDraft)
	category := f.category(t, event.ID, 5)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ReserveAndSell(context.Background(), category.ID, 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	sold := 0
	for err := range errs {
		switch {
		case err == nil:
			sold++
		case errors.Is(err, domain.ErrInsufficientInventory):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 5, sold)

	stored, err := f.svc.Get(context.Background(), category.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored.Sold)
	assert.Equal(t, domain.StatusSoldOut, stored.Status)
}

func TestAdjustQuantityBounds(t *testing.T) {
	f := newFixture(t)
	event := f.event(t, eventdomain.StatusDraft)
	category := f.category(t, event.ID, 10)

	_, err := f.svc.ReserveAndSell(context.Background(), category.ID, 10)
	require.NoError(t, err)

	_, err = f.svc.AdjustQuantity(context.Background(), category.ID, 9)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	adjusted, err := f.svc.AdjustQuantity(context.Background(), category.ID, 15)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, adjusted.Status)
	assert.Equal(t, int64(5), adjusted.Available())
}

func TestAdjustQuantityRejectedAfterEventStarts(t *testing.T) {
	f := newFixture(t)
	event := f.event(t, eventdomain.StatusPublished)
	now := f.clock.Now()
	category := domain.TicketCategory{
		ID: f.node.Generate(), EventID: event.ID, Name: "GA", Price: 100, Currency: "RON",
		Quantity: 10, Status: domain.StatusActive, Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repository.Provide().Insert(context.Background(), f.db, &category))

	f.clock.Advance(31 * 24 * time.Hour)
	_, err := f.svc.AdjustQuantity(context.Background(), category.ID, 20)
	assert.ErrorIs(t, err, eventdomain.ErrFieldLocked)
}

func TestForceSoldOutAndDisableAll(t *testing.T) {
	f := newFixture(t)
	event := f.event(t, eventdomain.StatusDraft)
	first := f.category(t, event.ID, 10)
	second := f.category(t, event.ID, 10)

	forced, err := f.svc.ForceSoldOut(context.Background(), first.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSoldOut, forced.Status)
	assert.Zero(t, forced.Sold)

	_, err = f.svc.ReserveAndSell(context.Background(), first.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)

	count, err := f.svc.CountActive(context.Background(), f.db, event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, f.svc.DisableAll(context.Background(), f.db, event.ID))
	for _, id := range []snowflake.ID{first.ID, second.ID} {
		stored, err := f.svc.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDisabled, stored.Status)
	}

	_, err = f.svc.ForceSoldOut(context.Background(), second.ID, true)
	assert.ErrorIs(t, err, domain.ErrCategoryDisabled)
}

func TestUnknownCategory(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReserveAndSell(context.Background(), 12345, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.ReserveAndSell(context.Background(), 12345, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
}
