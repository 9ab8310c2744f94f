package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-redis/redismock/v9"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/boxoffice/internal/clock"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	promodomain "github.com/smallbiznis/boxoffice/internal/promocode/domain"
	"github.com/smallbiznis/boxoffice/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockEventService struct {
	eventdomain.Service
	mock.Mock
}

func (m *mockEventService) PublishDue(ctx context.Context, now time.Time) ([]snowflake.ID, error) {
	args := m.Called(ctx, now)
	ids, _ := args.Get(0).([]snowflake.ID)
	return ids, args.Error(1)
}

type mockPromoService struct {
	promodomain.Service
	mock.Mock
}

func (m *mockPromoService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

type testScheduler struct {
	*Scheduler
	clock    *clock.FakeClock
	registry *prometheus.Registry
}

// newTestScheduler points the scheduler metrics at a fresh registry for the test.
func newTestScheduler(t *testing.T, events eventdomain.Service, locker *ratelimit.Locker, cfg Config) testScheduler {
	t.Helper()
	registry := prometheus.NewRegistry()
	t.Cleanup(swapPrometheusRegistry(registry))
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{ServiceName: "boxoffice", Environment: "test"})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	s, err := New(Params{
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		EventSvc: events,
		Locker:   locker,
		Config:   cfg,
	})
	require.NoError(t, err)
	return testScheduler{Scheduler: s, clock: clk, registry: registry}
}

func TestRunOncePublishesDueEvents(t *testing.T) {
	events := &mockEventService{}
	s := newTestScheduler(t, events, nil, Config{})
	events.On("PublishDue", mock.Anything, s.clock.Now()).
		Return([]snowflake.ID{11, 12}, nil).Once()

	require.NoError(t, s.RunOnce(context.Background()))
	events.AssertExpectations(t)

	labels := map[string]string{"service": "boxoffice", "env": "test", "job": JobPublishDue, "resource": "events"}
	assert.Equal(t, 2.0, getCounterValue(t, s.registry, "boxoffice_scheduler_batch_processed_total", labels))
}

func TestRunOnceExpiresPromoCodes(t *testing.T) {
	events := &mockEventService{}
	promos := &mockPromoService{}
	s := newTestScheduler(t, events, nil, Config{})
	s.promoSvc = promos
	events.On("PublishDue", mock.Anything, mock.Anything).Return(nil, nil).Once()
	promos.On("ExpireDue", mock.Anything, s.clock.Now()).Return(3, nil).Once()

	require.NoError(t, s.RunOnce(context.Background()))
	promos.AssertExpectations(t)

	labels := map[string]string{"service": "boxoffice", "env": "test", "job": JobExpirePromoCodes, "resource": "promo_codes"}
	assert.Equal(t, 3.0, getCounterValue(t, s.registry, "boxoffice_scheduler_batch_processed_total", labels))
}

func TestRunOnceReturnsJobErrors(t *testing.T) {
	events := &mockEventService{}
	s := newTestScheduler(t, events, nil, Config{})
	boom := errors.New("boom")
	events.On("PublishDue", mock.Anything, mock.Anything).Return(nil, boom).Once()

	err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), JobPublishDue)
}

func TestRunOnceSkipsDisabledJobs(t *testing.T) {
	events := &mockEventService{}
	s := newTestScheduler(t, events, nil, Config{EnabledJobs: []string{"something_else"}})

	require.NoError(t, s.RunOnce(context.Background()))
	events.AssertNotCalled(t, "PublishDue", mock.Anything, mock.Anything)
}

func TestRunOnceSkipsWhenLeaseIsHeld(t *testing.T) {
	client, redisMock := redismock.NewClientMock()
	redisMock.CustomMatch(func(expected, actual []interface{}) error { return nil }).
		ExpectSetNX("boxoffice:scheduler:"+JobPublishDue, "", time.Second).SetVal(false)

	events := &mockEventService{}
	s := newTestScheduler(t, events, ratelimit.NewLocker(client), Config{})

	require.NoError(t, s.RunOnce(context.Background()))
	events.AssertNotCalled(t, "PublishDue", mock.Anything, mock.Anything)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	s := newTestScheduler(t, &mockEventService{}, nil, Config{})
	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{"service": "boxoffice", "env": "test", "job": "timeout_job"}
	assert.Equal(t, 1.0, getCounterValue(t, s.registry, "boxoffice_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "boxoffice",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, 1.0, getCounterValue(t, s.registry, "boxoffice_scheduler_job_errors_total", errorLabels))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{RunInterval: 5 * time.Second}.withDefaults()
	assert.Equal(t, 5*time.Second, cfg.JobTimeout)

	cfg = Config{}.withDefaults()
	assert.Equal(t, DefaultConfig().RunInterval, cfg.RunInterval)
	assert.Equal(t, DefaultConfig().JobTimeout, cfg.JobTimeout)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetSchedulerMetricsForTest()
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
