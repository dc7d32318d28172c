package otelmetrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-banklink/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const instrumentationName = "github.com/goliatone/go-banklink"

// Recorder implements core.MetricsRecorder on an OpenTelemetry meter.
// Instruments are created on first use and reused by name.
type Recorder struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	onError    func(error)
}

type RecorderOption func(*Recorder)

// WithErrorHandler receives instrument creation errors, which are otherwise
// dropped.
func WithErrorHandler(fn func(error)) RecorderOption {
	return func(r *Recorder) {
		r.onError = fn
	}
}

func NewRecorder(meter metric.Meter, opts ...RecorderOption) (*Recorder, error) {
	if meter == nil {
		return nil, fmt.Errorf("otelmetrics: meter is required")
	}
	recorder := &Recorder{
		meter:      meter,
		counters:   map[string]metric.Int64Counter{},
		histograms: map[string]metric.Float64Histogram{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(recorder)
		}
	}
	return recorder, nil
}

func (r *Recorder) IncCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	counter, err := r.counter(name)
	if err != nil {
		r.report(err)
		return
	}
	counter.Add(contextOrBackground(ctx), value, metric.WithAttributes(attributes(tags)...))
}

func (r *Recorder) ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	histogram, err := r.histogram(name)
	if err != nil {
		r.report(err)
		return
	}
	histogram.Record(contextOrBackground(ctx), value, metric.WithAttributes(attributes(tags)...))
}

func (r *Recorder) counter(name string) (metric.Int64Counter, error) {
	if r == nil || r.meter == nil {
		return nil, fmt.Errorf("otelmetrics: recorder is not configured")
	}
	name = strings.TrimSpace(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if counter, ok := r.counters[name]; ok {
		return counter, nil
	}
	counter, err := r.meter.Int64Counter(name)
	if err != nil {
		return nil, fmt.Errorf("otelmetrics: counter %q: %w", name, err)
	}
	r.counters[name] = counter
	return counter, nil
}

func (r *Recorder) histogram(name string) (metric.Float64Histogram, error) {
	if r == nil || r.meter == nil {
		return nil, fmt.Errorf("otelmetrics: recorder is not configured")
	}
	name = strings.TrimSpace(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if histogram, ok := r.histograms[name]; ok {
		return histogram, nil
	}
	histogram, err := r.meter.Float64Histogram(name, metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("otelmetrics: histogram %q: %w", name, err)
	}
	r.histograms[name] = histogram
	return histogram, nil
}

func (r *Recorder) report(err error) {
	if r != nil && r.onError != nil {
		r.onError(err)
	}
}

func attributes(tags map[string]string) []attribute.KeyValue {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for key := range tags {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]attribute.KeyValue, 0, len(keys))
	for _, key := range keys {
		out = append(out, attribute.String(key, tags[key]))
	}
	return out
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// Telemetry owns a meter provider exporting to a private Prometheus registry.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	registry *prom.Registry
	recorder *Recorder
}

type Config struct {
	ServiceName string
	Environment string
}

func Setup(cfg Config, opts ...RecorderOption) (*Telemetry, error) {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "banklink"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironmentName(strings.TrimSpace(cfg.Environment)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otelmetrics: create resource: %w", err)
	}

	registry := prom.NewRegistry()
	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("otelmetrics: create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	recorder, err := NewRecorder(provider.Meter(instrumentationName), opts...)
	if err != nil {
		return nil, err
	}
	return &Telemetry{provider: provider, registry: registry, recorder: recorder}, nil
}

func (t *Telemetry) Recorder() core.MetricsRecorder {
	if t == nil || t.recorder == nil {
		return core.NopMetricsRecorder{}
	}
	return t.recorder
}

func (t *Telemetry) MeterProvider() metric.MeterProvider {
	if t == nil {
		return nil
	}
	return t.provider
}

// Handler serves the Prometheus text exposition of recorded metrics.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(contextOrBackground(ctx))
}

var _ core.MetricsRecorder = (*Recorder)(nil)
