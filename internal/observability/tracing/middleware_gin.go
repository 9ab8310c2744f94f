package tracing

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/boxoffice/internal/observability/context"
	"github.com/smallbiznis/boxoffice/internal/orgcontext"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	AttrOrganizerID = attribute.Key("boxoffice.organizer_id")
	AttrEventID     = attribute.Key("boxoffice.event_id")
	AttrCategoryID  = attribute.Key("boxoffice.category_id")
	AttrPayoutID    = attribute.Key("boxoffice.payout_id")
	AttrPromoCodeID = attribute.Key("boxoffice.promo_code_id")
)

// routeResources maps the path segment in front of an :id parameter to the
// attribute carrying that id.
var routeResources = map[string]attribute.Key{
	"events":      AttrEventID,
	"categories":  AttrCategoryID,
	"payouts":     AttrPayoutID,
	"promo-codes": AttrPromoCodeID,
}

// GinMiddleware opens a server span per request and tags it with the organizer
// and the event, category, payout or promo code the route addresses.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("boxoffice/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		method := strings.ToUpper(c.Request.Method)
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			if member, err := baggage.NewMember("request_id", requestID); err == nil {
				if bag, err := baggage.New(member); err == nil {
					ctx = baggage.ContextWithBaggage(ctx, bag)
				}
			}
			span.SetAttributes(attribute.String("request_id", requestID))
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		}
		// The organizer middleware runs inside this one, so read it after Next.
		if organizerID, ok := orgcontext.OrganizerIDFromContext(c.Request.Context()); ok {
			attrs = append(attrs, AttrOrganizerID.String(organizerID.String()))
		}
		attrs = append(attrs, RouteAttributes(route, c.Params)...)
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status >= http.StatusInternalServerError {
			if lastErr := c.Errors.Last(); lastErr != nil {
				if safeErr := SafeError(lastErr.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// RouteAttributes names the resource a matched route addresses, e.g.
// /events/:id/payouts yields boxoffice.event_id.
func RouteAttributes(route string, params gin.Params) []attribute.KeyValue {
	id, ok := params.Get("id")
	if !ok || id == "" {
		return nil
	}
	segments := strings.Split(strings.Trim(route, "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i+1] != ":id" {
			continue
		}
		if key, ok := routeResources[segments[i]]; ok {
			return []attribute.KeyValue{key.String(id)}
		}
	}
	return nil
}
