package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	ticketsSold      metric.Int64Counter
	grossRevenue     metric.Int64Counter
	refunds          metric.Int64Counter
	payouts          metric.Int64Counter
	transitions      metric.Int64Counter
	promoRedemptions metric.Int64Counter
	versionConflicts metric.Int64Counter
	outboxPublished  metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "boxoffice"
	}
	meter := provider.Meter(name)

	counters := []struct {
		name   string
		unit   string
	}{
		{"boxoffice_tickets_sold_total", "{ticket}"},
		{"boxoffice_gross_revenue_minor_total", "{minor}"},
		{"boxoffice_refunds_minor_total", "{minor}"},
		{"boxoffice_payouts_total", "{payout}"},
		{"boxoffice_event_transitions_total", "{transition}"},
		{"boxoffice_promo_redemptions_total", "{redemption}"},
		{"boxoffice_version_conflicts_total", "{conflict}"},
		{"boxoffice_outbox_published_total", "{message}"},
		{"boxoffice_rate_limit_denied_total", "{request}"},
	}

	m := &Metrics{}
	targets := []*metric.Int64Counter{
		&m.ticketsSold,
		&m.grossRevenue,
		&m.refunds,
		&m.payouts,
		&m.transitions,
		&m.promoRedemptions,
		&m.versionConflicts,
		&m.outboxPublished,
		&m.rateLimitDenied,
	}
	for i := range counters {
		counter, err := meter.Int64Counter(counters[i].name, metric.WithUnit(counters[i].unit))
		if err != nil {
			return nil, err
		}
		*targets[i] = counter
	}

	return m, nil
}

// NewNoop returns instruments bound to a noop provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordSale counts sold tickets and charged revenue.
func (m *Metrics) RecordSale(ctx context.Context, currency string, tickets, amount int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(attribute.String("currency", currency))...)
	m.ticketsSold.Add(ctx, tickets, attrs)
	m.grossRevenue.Add(ctx, amount, attrs)
}

// RecordRefund counts refunded minor units.
func (m *Metrics) RecordRefund(ctx context.Context, currency string, amount int64) {
	if m == nil {
		return
	}
	m.refunds.Add(ctx, amount, metric.WithAttributes(FilterAttributes(attribute.String("currency", currency))...))
}

// RecordPayout counts payout requests reaching a status.
func (m *Metrics) RecordPayout(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.payouts.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("status", status))...))
}

// RecordTransition counts event lifecycle transitions.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	)...))
}

// RecordPromoRedemption counts promo code redemptions.
func (m *Metrics) RecordPromoRedemption(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.promoRedemptions.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("kind", kind))...))
}

// RecordVersionConflict counts optimistic-concurrency misses per aggregate.
func (m *Metrics) RecordVersionConflict(ctx context.Context, aggregate string) {
	if m == nil {
		return
	}
	m.versionConflicts.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("aggregate", aggregate))...))
}

// RecordOutboxPublished counts relayed notifications.
func (m *Metrics) RecordOutboxPublished(ctx context.Context, eventType string, n int64) {
	if m == nil {
		return
	}
	m.outboxPublished.Add(ctx, n, metric.WithAttributes(FilterAttributes(attribute.String("event_type", eventType))...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("endpoint", endpoint))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"currency":   {},
	"status":     {},
	"from":       {},
	"to":         {},
	"kind":       {},
	"aggregate":  {},
	"event_type": {},
	"endpoint":   {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
