package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	OutcomePlaced            = "placed"
	OutcomeReplayed          = "replayed"
	OutcomeEmptyCart         = "empty_cart"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeError             = "error"
)

// CheckoutMetrics records checkout outcomes and latency. The zero value is
// not usable; build it with NewCheckoutMetrics.
type CheckoutMetrics struct {
	orders   metric.Int64Counter
	duration metric.Float64Histogram
	events   metric.Int64Counter
}

func NewCheckoutMetrics() (*CheckoutMetrics, error) {
	meter := otel.Meter("monocart/checkout")

	orders, err := meter.Int64Counter("checkout.orders",
		metric.WithDescription("Checkout attempts by outcome."),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("checkout.duration",
		metric.WithDescription("Checkout transaction latency."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	events, err := meter.Int64Counter("checkout.inventory_events",
		metric.WithDescription("Inventory update events handed to the fan-out."),
	)
	if err != nil {
		return nil, err
	}

	return &CheckoutMetrics{orders: orders, duration: duration, events: events}, nil
}

func (m *CheckoutMetrics) Record(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.orders.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

func (m *CheckoutMetrics) InventoryEvents(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.events.Add(ctx, int64(n))
}
