package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/prperemyshlev/photo-enhancer"

// Metrics holds the business counters. A nil *Metrics records nothing.
type Metrics struct {
	checkouts    metric.Int64Counter
	transitions  metric.Int64Counter
	processed    metric.Int64Counter
	softFailures metric.Int64Counter
}

// NewMetrics registers the counters on the global meter provider
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	checkouts, err := meter.Int64Counter("payments.checkouts",
		metric.WithDescription("Checkout attempts by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create checkouts counter: %w", err)
	}

	transitions, err := meter.Int64Counter("payments.transitions",
		metric.WithDescription("Payment intent state transitions by status and source"))
	if err != nil {
		return nil, fmt.Errorf("failed to create transitions counter: %w", err)
	}

	processed, err := meter.Int64Counter("photos.processed",
		metric.WithDescription("Processed uploads by conversion kind"))
	if err != nil {
		return nil, fmt.Errorf("failed to create processed counter: %w", err)
	}

	softFailures, err := meter.Int64Counter("photos.enhancer_soft_failures",
		metric.WithDescription("Uploads returned unchanged because the enhancer produced no image"))
	if err != nil {
		return nil, fmt.Errorf("failed to create soft failure counter: %w", err)
	}

	return &Metrics{
		checkouts:    checkouts,
		transitions:  transitions,
		processed:    processed,
		softFailures: softFailures,
	}, nil
}

// Checkout counts a checkout attempt. outcome is e.g. "created", "free" or "rejected".
func (m *Metrics) Checkout(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Transition counts a payment intent leaving pending
func (m *Metrics) Transition(ctx context.Context, status, source string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("source", source),
	))
}

// PhotoProcessed counts a finished upload
func (m *Metrics) PhotoProcessed(ctx context.Context, kind string, enhanced bool) {
	if m == nil {
		return
	}
	m.processed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("enhanced", enhanced),
	))
	if !enhanced {
		m.softFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

// PrometheusHandler returns a Gin handler for Prometheus metrics
func PrometheusHandler(handler http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler != nil {
			handler.ServeHTTP(c.Writer, c.Request)
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "metrics handler not initialized",
			})
		}
	}
}
