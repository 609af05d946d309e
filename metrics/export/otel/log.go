package otel

import (
	"context"
	"errors"
	"time"

	falcomAuth "github.com/MrEthical07/falcomAuth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

// LogExporter is an sdkmetric.Exporter that writes each collection as one
// structured log entry. Zero-valued series are left out.
type LogExporter struct {
	logger *zap.Logger
}

func NewLogExporter(logger *zap.Logger) *LogExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogExporter{logger: logger}
}

func (e *LogExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *LogExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *LogExporter) Export(_ context.Context, rm *metricdata.ResourceMetrics) error {
	var fields []zap.Field
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			var total int64
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
			}
			if total != 0 {
				fields = append(fields, zap.Int64(m.Name, total))
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	e.logger.Info("metrics", fields...)
	return nil
}

func (e *LogExporter) ForceFlush(context.Context) error { return nil }

func (e *LogExporter) Shutdown(context.Context) error { return nil }

// Pipeline is an SDK meter provider with the engine exporter registered on it.
type Pipeline struct {
	provider *sdkmetric.MeterProvider
	exporter *Exporter
}

// NewLogPipeline collects source every interval and hands the result to a
// LogExporter.
func NewLogPipeline(source Source, interval time.Duration, logger *zap.Logger) (*Pipeline, error) {
	reader := sdkmetric.NewPeriodicReader(NewLogExporter(logger), sdkmetric.WithInterval(interval))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exp, err := New(provider.Meter("falcomauth"), source)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return &Pipeline{provider: provider, exporter: exp}, nil
}

// Flush forces a collection and export now.
func (p *Pipeline) Flush(ctx context.Context) error {
	return p.provider.ForceFlush(ctx)
}

// Close exports a final collection and stops the reader.
func (p *Pipeline) Close(ctx context.Context) error {
	return errors.Join(p.provider.Shutdown(ctx), p.exporter.Close())
}

var (
	_ sdkmetric.Exporter = (*LogExporter)(nil)
	_ Source             = (*falcomAuth.Engine)(nil)
)
