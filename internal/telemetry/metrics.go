package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/readpilot"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Entitlement metrics
	EntitlementChecksTotal   metric.Int64Counter
	EntitlementCheckDuration metric.Float64Histogram

	// Membership cookie metrics
	MembershipWritesTotal  metric.Int64Counter
	MembershipReloadsTotal metric.Int64Counter

	// Analyze metrics
	AnalyzeRequestsTotal metric.Int64Counter
	AnalyzeErrorsTotal   metric.Int64Counter
	AnalyzeDuration      metric.Float64Histogram
	AnalyzeCardsTotal    metric.Int64Counter

	// Session metrics
	SessionsCreatedTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments bind to the global meter provider, so InitTelemetry should run first
// when exporting is enabled.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.EntitlementChecksTotal, _ = meter.Int64Counter(
		"readpilot.entitlement.checks.total",
		metric.WithDescription("Total number of entitlement checks by proof kind and outcome"),
		metric.WithUnit("{check}"),
	)

	m.EntitlementCheckDuration, _ = meter.Float64Histogram(
		"readpilot.entitlement.check.duration",
		metric.WithDescription("Duration of entitlement checks including upstream calls"),
		metric.WithUnit("ms"),
	)

	m.MembershipWritesTotal, _ = meter.Int64Counter(
		"readpilot.membership.writes.total",
		metric.WithDescription("Total number of membership cookie writes"),
		metric.WithUnit("{write}"),
	)

	m.MembershipReloadsTotal, _ = meter.Int64Counter(
		"readpilot.membership.reloads.total",
		metric.WithDescription("Total number of page reloads forced by a membership change"),
		metric.WithUnit("{reload}"),
	)

	m.AnalyzeRequestsTotal, _ = meter.Int64Counter(
		"readpilot.analyze.requests.total",
		metric.WithDescription("Total number of analyze requests sent to the analysis service"),
		metric.WithUnit("{request}"),
	)

	m.AnalyzeErrorsTotal, _ = meter.Int64Counter(
		"readpilot.analyze.errors.total",
		metric.WithDescription("Total number of failed analyze requests"),
		metric.WithUnit("{error}"),
	)

	m.AnalyzeDuration, _ = meter.Float64Histogram(
		"readpilot.analyze.duration",
		metric.WithDescription("Duration of analyze requests"),
		metric.WithUnit("ms"),
	)

	m.AnalyzeCardsTotal, _ = meter.Int64Counter(
		"readpilot.analyze.cards.total",
		metric.WithDescription("Total number of question/answer cards returned"),
		metric.WithUnit("{card}"),
	)

	m.SessionsCreatedTotal, _ = meter.Int64Counter(
		"readpilot.sessions.created.total",
		metric.WithDescription("Total number of sign-ins"),
		metric.WithUnit("{session}"),
	)

	return m
}
