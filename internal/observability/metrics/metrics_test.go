package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("currency", "RON"),
		attribute.String("event_id", "123"),
		attribute.String("status", "completed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "currency" || attrs[1].Key != "status" {
		t.Fatalf("unexpected attributes retained: %v", attrs)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordSale(context.Background(), "RON", 1, 100)
	m.RecordPayout(context.Background(), "completed")

	noop := NewNoop()
	if noop == nil {
		t.Fatalf("expected noop metrics")
	}
	noop.RecordTransition(context.Background(), "draft", "published")
}
