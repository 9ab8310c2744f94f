package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/smallbiznis/boxoffice/internal/config"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	"github.com/smallbiznis/boxoffice/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const relayLockKey = "boxoffice:outbox:relay"

// Publisher delivers one outbox record to the notification collaborator.
type Publisher interface {
	Publish(ctx context.Context, record Record) error
}

// Message is the JSON body delivered for each record.
type Message struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

func messageFor(record Record) Message {
	return Message{
		ID:            record.ID.String(),
		Type:          record.Type,
		AggregateType: record.AggregateType,
		AggregateID:   record.AggregateID.String(),
		OccurredAt:    record.CreatedAt,
		Payload:       json.RawMessage(record.Payload),
	}
}

// AMQPPublisher publishes records to a durable RabbitMQ queue with persistent delivery.
type AMQPPublisher struct {
	mu    sync.Mutex
	url   string
	queue string
	conn  *amqp.Connection
	ch    *amqp.Channel
}

func NewAMQPPublisher(url, queue string) *AMQPPublisher {
	return &AMQPPublisher{url: url, queue: queue}
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := amqp.Dial(p.url)
		if err != nil {
			return nil, err
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, record Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}
	body, err := json.Marshal(messageFor(record))
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    record.DedupeKey,
		Type:         record.Type,
		Timestamp:    record.CreatedAt,
		Body:         body,
	})
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

type RelayParams struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Outbox     *Outbox
	Publisher  Publisher           `optional:"true"`
	Locker     *ratelimit.Locker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Relay drains pending outbox rows into the publisher. Only the replica holding
// the redis lease relays when a locker is configured.
type Relay struct {
	db         *gorm.DB
	log        *zap.Logger
	outbox     *Outbox
	publisher  Publisher
	locker     *ratelimit.Locker
	obsMetrics *obsmetrics.Metrics
	interval   time.Duration
	batch      int

	stop chan struct{}
	done chan struct{}
}

func NewRelay(p RelayParams) *Relay {
	interval := p.Config.Outbox.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{
		db:         p.DB,
		log:        p.Log.Named("outbox.relay"),
		outbox:     p.Outbox,
		publisher:  p.Publisher,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
		interval:   interval,
		batch:      p.Config.Outbox.BatchSize,
	}
}

// RunOnce relays one batch and returns the number of records published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	if r.publisher == nil {
		return 0, nil
	}

	if r.locker != nil {
		token, ok, err := r.locker.TryLock(ctx, relayLockKey, 2*r.interval)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		defer func() {
			if err := r.locker.Release(context.WithoutCancel(ctx), relayLockKey, token); err != nil {
				r.log.Warn("failed to release relay lock", zap.Error(err))
			}
		}()
	}

	records, err := r.outbox.Pending(ctx, r.db, r.batch)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, record := range records {
		if err := r.publisher.Publish(ctx, record); err != nil {
			r.log.Warn("outbox publish failed",
				zap.String("outbox_id", record.ID.String()),
				zap.String("type", record.Type),
				zap.Error(err),
			)
			if markErr := r.outbox.MarkFailed(ctx, r.db, record.ID, err); markErr != nil {
				return published, markErr
			}
			// Keep ordering: stop at the first failure and retry next tick.
			break
		}
		if err := r.outbox.MarkPublished(ctx, r.db, record.ID); err != nil {
			return published, err
		}
		r.obsMetrics.RecordOutboxPublished(ctx, record.Type, 1)
		published++
	}
	return published, nil
}

func (r *Relay) Start() {
	if r.publisher == nil {
		r.log.Info("outbox relay disabled; notifications stay pending")
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop()
}

func (r *Relay) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-r.stop
		cancel()
	}()

	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.log.Error("outbox relay tick failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Relay) Stop(ctx context.Context) error {
	if r.stop == nil {
		return nil
	}
	close(r.stop)
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
