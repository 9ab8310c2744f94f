package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/clock"
	"github.com/smallbiznis/boxoffice/internal/config"
	"github.com/smallbiznis/boxoffice/internal/event/domain"
	eventrepository "github.com/smallbiznis/boxoffice/internal/event/repository"
	"github.com/smallbiznis/boxoffice/internal/event/service"
	inventorydomain "github.com/smallbiznis/boxoffice/internal/inventory/domain"
	inventoryrepository "github.com/smallbiznis/boxoffice/internal/inventory/repository"
	inventoryservice "github.com/smallbiznis/boxoffice/internal/inventory/service"
	ledgerdomain "github.com/smallbiznis/boxoffice/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/boxoffice/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/boxoffice/internal/ledger/service"
	"github.com/smallbiznis/boxoffice/internal/orgcontext"
	"github.com/smallbiznis/boxoffice/internal/outbox"
	"github.com/smallbiznis/boxoffice/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const organizerID = snowflake.ID(7)

type harness struct {
	ctx       context.Context
	db        *gorm.DB
	clock     *clock.FakeClock
	events    domain.Service
	inventory inventorydomain.Service
	ledger    ledgerdomain.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	conn := dbtest.Open(t)
	node := dbtest.Node(t, 1)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	eventRepo := eventrepository.Provide()

	inventory := inventoryservice.NewService(inventoryservice.Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      inventoryrepository.Provide(),
		EventRepo: eventRepo,
	})
	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      ledgerrepository.Provide(),
		EventRepo: eventRepo,
	})
	events := service.NewService(service.Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Repo:      eventRepo,
		Inventory: inventory,
		Ledger:    ledger,
		Contracts: config.StaticContracts(config.ContractTerms{
			DefaultCommissionBps: 500,
			Organizers:           map[string]int64{"8": 400},
		}),
		Outbox: outbox.New(node, clk),
	})

	return &harness{
		ctx:       orgcontext.WithOrganizerID(context.Background(), organizerID),
		db:        conn,
		clock:     clk,
		events:    events,
		inventory: inventory,
		ledger:    ledger,
	}
}

func (h *harness) draft(t *testing.T) domain.Event {
	t.Helper()
	startsAt := h.clock.Now().Add(30 * 24 * time.Hour)
	event, err := h.events.Create(h.ctx, domain.CreateEventRequest{
		Name:     "Summer Jazz Night",
		Currency: "ron",
		Venue:    "venue-arena",
		StartsAt: &startsAt,
	})
	require.NoError(t, err)
	_, err = h.inventory.Create(h.ctx, inventorydomain.CreateCategoryRequest{
		EventID:  event.ID,
		Name:     "General",
		Price:    10_000,
		Quantity: 100,
	})
	require.NoError(t, err)
	return event
}

func (h *harness) published(t *testing.T) domain.Event {
	t.Helper()
	event, err := h.events.Publish(h.ctx, h.draft(t).ID)
	require.NoError(t, err)
	return event
}

func (h *harness) outboxTypes(t *testing.T) []string {
	t.Helper()
	var types []string
	require.NoError(t, h.db.Raw(`SELECT type FROM outbox_events ORDER BY id`).Scan(&types).Error)
	return types
}

func TestCreateDraft(t *testing.T) {
	h := newHarness(t)
	event := h.draft(t)

	assert.Equal(t, domain.StatusDraft, event.Status)
	assert.Equal(t, "summer-jazz-night", event.Slug)
	assert.Equal(t, "RON", event.Currency)
	assert.Equal(t, organizerID, event.OrganizerID)
	assert.Empty(t, event.LockedFields())

	_, err := h.ledger.Get(h.ctx, event.ID)
	assert.ErrorIs(t, err, ledgerdomain.ErrLedgerNotFound)
}

func TestCreateRequiresOrganizer(t *testing.T) {
	h := newHarness(t)
	_, err := h.events.Create(context.Background(), domain.CreateEventRequest{Name: "x", Currency: "RON"})
	assert.ErrorIs(t, err, domain.ErrInvalidOrganizer)
}

func TestPublishOpensLedgerWithContractRate(t *testing.T) {
	h := newHarness(t)
	event := h.published(t)

	assert.Equal(t, domain.StatusPublished, event.Status)
	assert.NotNil(t, event.PublishedAt)
	assert.ElementsMatch(t, []string{domain.FieldVenue, domain.FieldStartsAt}, event.LockedFields())

	ledger, err := h.ledger.Get(h.ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), ledger.CommissionBps)
	assert.Equal(t, "RON", ledger.Currency)
	assert.Zero(t, ledger.AvailableBalance)
}

func TestPublishRequiresSellableCategoryAndVenue(t *testing.T) {
	h := newHarness(t)
	event, err := h.events.Create(h.ctx, domain.CreateEventRequest{Name: "Bare", Currency: "RON"})
	require.NoError(t, err)

	_, err = h.events.Publish(h.ctx, event.ID)
	assert.ErrorIs(t, err, domain.ErrPublishRequirements)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	stored, err := h.events.Get(h.ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, stored.Status)
	_, err = h.ledger.Get(h.ctx, event.ID)
	assert.ErrorIs(t, err, ledgerdomain.ErrLedgerNotFound)
}

func TestVenueLockedAfterPublishButPostponeMovesDate(t *testing.T) {
	h := newHarness(t)
	event := h.published(t)
	originalStart := *event.StartsAt

	venue := "venue-stadium"
	_, err := h.events.UpdateDetails(h.ctx, domain.UpdateEventRequest{ID: event.ID, Venue: &venue})
	assert.ErrorIs(t, err, domain.ErrFieldLocked)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	newStart := originalStart.Add(14 * 24 * time.Hour)
	_, err = h.events.UpdateDetails(h.ctx, domain.UpdateEventRequest{ID: event.ID, StartsAt: &newStart})
	assert.ErrorIs(t, err, domain.ErrFieldLocked)

	postponed, err := h.events.Postpone(h.ctx, event.ID, newStart)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPostponed, postponed.Status)
	assert.True(t, postponed.StartsAt.Equal(newStart))
	require.NotNil(t, postponed.PostponedFrom)
	assert.True(t, postponed.PostponedFrom.Equal(originalStart))
	assert.Equal(t, "venue-arena", postponed.Venue)

	assert.Equal(t, []string{outbox.EventPostponed}, h.outboxTypes(t))
}

func TestRenameAllowedWhileLocked(t *testing.T) {
	h := newHarness(t)
	event := h.published(t)

	name := "Summer Jazz Night (Extended)"
	updated, err := h.events.UpdateDetails(h.ctx, domain.UpdateEventRequest{ID: event.ID, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, event.Version+1, updated.Version)
}

func TestPostponeRejectsSameOrPastDate(t *testing.T) {
	h := newHarness(t)
	event := h.published(t)

	_, err := h.events.Postpone(h.ctx, event.ID, *event.StartsAt)
	assert.ErrorIs(t, err, domain.ErrInvalidDate)
	_, err = h.events.Postpone(h.ctx, event.ID, h.clock.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidDate)
}

func TestIllegalTransitionsLeaveStatusUnchanged(t *testing.T) {
	h := newHarness(t)
	draft := h.draft(t)

	_, err := h.events.Postpone(h.ctx, draft.ID, h.clock.Now().Add(60*24*time.Hour))
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	published := h.published(t)
	_, err = h.events.Schedule(h.ctx, published.ID, h.clock.Now().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	_, err = h.events.Publish(h.ctx, published.ID)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	for id, want := range map[snowflake.ID]domain.Status{
		draft.ID:     domain.StatusDraft,
		published.ID: domain.StatusPublished,
	} {
		stored, err := h.events.Get(h.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, stored.Status)
	}
}

func TestCancelDisablesCategoriesAndRecordsObligations(t *testing.T) {
	h := newHarness(t)
	event := h.published(t)

	_, err := h.events.Cancel(h.ctx, event.ID, "  ")
	assert.ErrorIs(t, err, domain.ErrReasonRequired)

	cancelled, err := h.events.Cancel(h.ctx, event.ID, "venue flooded")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, "venue flooded", cancelled.CancelReason)

	categories, err := h.inventory.ListByEvent(h.ctx, event.ID)
	require.NoError(t, err)
	require.NotEmpty(t, categories)
	for _, category := range categories {
		assert.Equal(t, inventorydomain.StatusDisabled, category.Status)
	}

	assert.Equal(t, []string{outbox.EventCancelled, outbox.EventRefundObligation}, h.outboxTypes(t))

	_, err = h.events.Publish(h.ctx, event.ID)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	_, err = h.events.Cancel(h.ctx, event.ID, "again")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestStartedEventIsTerminal(t *testing.T) {
	h := newHarness(t)
	event := h.published(t)

	h.clock.Advance(31 * 24 * time.Hour)
	_, err := h.events.Cancel(h.ctx, event.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	name := "renamed"
	_, err = h.events.UpdateDetails(h.ctx, domain.UpdateEventRequest{ID: event.ID, Name: &name})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestScheduledEventsPublishWhenDue(t *testing.T) {
	h := newHarness(t)
	draft := h.draft(t)

	_, err := h.events.Schedule(h.ctx, draft.ID, h.clock.Now().Add(-time.Minute))
	assert.ErrorIs(t, err, domain.ErrInvalidDate)

	scheduled, err := h.events.Schedule(h.ctx, draft.ID, h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, scheduled.Status)

	ids, err := h.events.PublishDue(h.ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, ids)

	h.clock.Advance(2 * time.Hour)
	ids, err = h.events.PublishDue(h.ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{draft.ID}, ids)

	stored, err := h.events.Get(h.ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, stored.Status)
}

func TestRepublishAfterPostponeKeepsLedger(t *testing.T) {
	h := newHarness(t)
	event := h.published(t)

	_, err := h.ledger.RecordSale(h.ctx, event.ID, 20_000, "txn-1")
	require.NoError(t, err)

	_, err = h.events.Postpone(h.ctx, event.ID, event.StartsAt.Add(7*24*time.Hour))
	require.NoError(t, err)
	republished, err := h.events.Publish(h.ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, republished.Status)

	ledger, err := h.ledger.Get(h.ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20_000), ledger.GrossRevenue)
}

func TestCommissionRateFrozenPerOrganizerContract(t *testing.T) {
	h := newHarness(t)
	ctx := orgcontext.WithOrganizerID(context.Background(), 8)
	startsAt := h.clock.Now().Add(10 * 24 * time.Hour)
	event, err := h.events.Create(ctx, domain.CreateEventRequest{Name: "Indie", Currency: "EUR", Venue: "club", StartsAt: &startsAt})
	require.NoError(t, err)
	_, err = h.inventory.Create(ctx, inventorydomain.CreateCategoryRequest{EventID: event.ID, Name: "GA", Price: 2_500, Quantity: 10})
	require.NoError(t, err)

	_, err = h.events.Publish(ctx, event.ID)
	require.NoError(t, err)
	ledger, err := h.ledger.Get(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), ledger.CommissionBps)
}
