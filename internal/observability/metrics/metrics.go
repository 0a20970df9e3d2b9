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
	paymentIntents     metric.Int64Counter
	webhookDeliveries  metric.Int64Counter
	commissionsCreated metric.Int64Counter
	referralsApplied   metric.Int64Counter
	ledgerEntries      metric.Int64Counter
	rateLimitDenied    metric.Int64Counter
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
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "tekwealth"
	}
	meter := provider.Meter(name)

	paymentIntents, err := meter.Int64Counter("tekwealth_payment_intents_total")
	if err != nil {
		return nil, err
	}
	webhookDeliveries, err := meter.Int64Counter("tekwealth_payment_webhooks_total")
	if err != nil {
		return nil, err
	}
	commissionsCreated, err := meter.Int64Counter("tekwealth_commission_transactions_total")
	if err != nil {
		return nil, err
	}
	referralsApplied, err := meter.Int64Counter("tekwealth_referrals_applied_total")
	if err != nil {
		return nil, err
	}
	ledgerEntries, err := meter.Int64Counter("tekwealth_ledger_entries_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("tekwealth_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		paymentIntents:     paymentIntents,
		webhookDeliveries:  webhookDeliveries,
		commissionsCreated: commissionsCreated,
		referralsApplied:   referralsApplied,
		ledgerEntries:      ledgerEntries,
		rateLimitDenied:    rateLimitDenied,
	}, nil
}

// RecordPaymentIntent counts intent requests by provider and result.
func (m *Metrics) RecordPaymentIntent(ctx context.Context, provider, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.paymentIntents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWebhook counts webhook deliveries by gateway status and handling outcome.
func (m *Metrics) RecordWebhook(ctx context.Context, provider, status, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("payment_status", strings.TrimSpace(status)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhookDeliveries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCommissions counts commission transactions written for one payment.
func (m *Metrics) RecordCommissions(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.commissionsCreated.Add(ctx, int64(count))
}

func (m *Metrics) RecordReferralApplied(ctx context.Context, edges int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.Bool("propagated", edges > 1))
	m.referralsApplied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLedgerEntry increments ledger entry counts.
func (m *Metrics) RecordLedgerEntry(ctx context.Context, sourceType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source_type", strings.TrimSpace(sourceType)))
	m.ledgerEntries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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

// User and payment identifiers never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":       {},
	"provider":       {},
	"result":         {},
	"payment_status": {},
	"outcome":        {},
	"propagated":     {},
	"source_type":    {},
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
