package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/clock"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	promodomain "github.com/smallbiznis/boxoffice/internal/promocode/domain"
	"github.com/smallbiznis/boxoffice/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const (
	JobPublishDue       = "publish_due"
	JobExpirePromoCodes = "expire_promo_codes"

	leaseKeyPrefix = "boxoffice:scheduler:"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	EventSvc eventdomain.Service
	PromoSvc promodomain.Service `optional:"true"`
	Locker   *ratelimit.Locker   `optional:"true"`
	Config   Config              `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	eventSvc eventdomain.Service
	promoSvc promodomain.Service
	locker   *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.EventSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		eventSvc: p.EventSvc,
		promoSvc: p.PromoSvc,
		locker:   p.Locker,
	}, nil
}

// runJob runs fn under a deadline. With a locker configured only the replica
// holding the job lease runs it; the others skip the tick.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, leaseKeyPrefix+name, timeout)
		if err != nil {
			return fmt.Errorf("%s: lease: %w", name, err)
		}
		if !ok {
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), leaseKeyPrefix+name, token); err != nil {
				s.log.Warn("failed to release job lease", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	ctx, run := s.startJobRun(ctx, name)
	s.logJobStart(ctx, run)
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// A deadline is a soft timeout: the next tick picks up the remainder.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

type job struct {
	Name string
	Run  func(context.Context) error
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []job{
		{JobPublishDue, s.PublishDueJob},
	}
	if s.promoSvc != nil {
		jobs = append(jobs, job{JobExpirePromoCodes, s.ExpirePromoCodesJob})
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if runLag := time.Since(nextRun); runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// PublishDueJob publishes scheduled events whose publish time has passed.
func (s *Scheduler) PublishDueJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	published, err := s.eventSvc.PublishDue(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	run.AddProcessed(len(published))
	obsmetrics.Scheduler().AddBatchProcessed(JobPublishDue, "events", len(published))
	for _, id := range published {
		s.logger(ctx).Info("scheduled event published", zap.String("event_id", id.String()))
	}
	return nil
}

// ExpirePromoCodesJob persists the expired status of codes whose window closed.
func (s *Scheduler) ExpirePromoCodesJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	expired, err := s.promoSvc.ExpireDue(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	run.AddProcessed(expired)
	obsmetrics.Scheduler().AddBatchProcessed(JobExpirePromoCodes, "promo_codes", expired)
	return nil
}
