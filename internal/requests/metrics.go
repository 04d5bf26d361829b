package requests

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/breatheroute/privacydesk/internal/requests"

// Metrics holds the lifecycle counters.
type Metrics struct {
	created   metric.Int64Counter
	confirmed metric.Int64Counter
	expired   metric.Int64Counter
	deleted   metric.Int64Counter
	rejected  metric.Int64Counter
}

// NewMetrics creates lifecycle counters on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	counter := func(name, description string) (metric.Int64Counter, error) {
		return meter.Int64Counter(name,
			metric.WithDescription(description),
			metric.WithUnit("{request}"),
		)
	}

	created, err := counter("gdpr.requests.created", "Privacy requests created")
	if err != nil {
		return nil, err
	}
	confirmed, err := counter("gdpr.requests.confirmed", "Privacy requests confirmed")
	if err != nil {
		return nil, err
	}
	expired, err := counter("gdpr.requests.expired", "Unconfirmed privacy requests removed on expiry")
	if err != nil {
		return nil, err
	}
	deleted, err := counter("gdpr.requests.deleted", "Privacy requests deleted by an administrator")
	if err != nil {
		return nil, err
	}
	rejected, err := counter("gdpr.requests.rejected", "Privacy requests rejected at creation")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		created:   created,
		confirmed: confirmed,
		expired:   expired,
		deleted:   deleted,
		rejected:  rejected,
	}, nil
}

func typeAttr(t RequestType) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("gdpr.request.type", string(t)))
}

// The record methods tolerate a nil receiver so the service runs without metrics.

func (m *Metrics) recordCreated(ctx context.Context, t RequestType) {
	if m != nil {
		m.created.Add(ctx, 1, typeAttr(t))
	}
}

func (m *Metrics) recordConfirmed(ctx context.Context, t RequestType) {
	if m != nil {
		m.confirmed.Add(ctx, 1, typeAttr(t))
	}
}

func (m *Metrics) recordExpired(ctx context.Context) {
	if m != nil {
		m.expired.Add(ctx, 1)
	}
}

func (m *Metrics) recordDeleted(ctx context.Context, t RequestType) {
	if m != nil {
		m.deleted.Add(ctx, 1, typeAttr(t))
	}
}

func (m *Metrics) recordRejected(ctx context.Context) {
	if m != nil {
		m.rejected.Add(ctx, 1)
	}
}
