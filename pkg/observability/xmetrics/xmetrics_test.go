package xmetrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestObserver(t *testing.T) (Observer, *tracetest.InMemoryExporter, *sdkmetric.ManualReader) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	obs, err := NewOTelObserver(
		WithInstrumentationName("xmetrics-test"),
		WithTracerProvider(tp),
		WithMeterProvider(mp),
	)
	require.NoError(t, err)
	return obs, exporter, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestStart_NilObserver(t *testing.T) {
	//nolint:staticcheck // 验证 nil ctx 归一化
	ctx, span := Start(nil, nil, SpanOptions{})
	require.NotNil(t, ctx)
	assert.IsType(t, NoopSpan{}, span)
	span.End(Result{})
	AddEvent(span, "ignored")
}

type nilObserver struct{}

func (nilObserver) Start(context.Context, SpanOptions) (context.Context, Span) { return nil, nil }

func TestStart_ObserverReturnsNil(t *testing.T) {
	ctx, span := Start(context.Background(), nilObserver{}, SpanOptions{})
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "Internal", KindInternal.String())
	assert.Equal(t, "Client", KindClient.String())
}

func TestOTelObserver_SuccessSpan(t *testing.T) {
	obs, exporter, reader := newTestObserver(t)

	_, span := Start(context.Background(), obs, SpanOptions{
		Component: "xatomic",
		Operation: "run",
		Attrs:     []Attr{String("lock", "lock:jobs")},
	})
	AddEvent(span, "lock.busy", Int("attempt", 1), Duration("delay_ns", 150*time.Millisecond))
	span.End(Result{Attrs: []Attr{Int("attempts", 2), Bool("acquired", true)}})
	span.End(Result{Err: errors.New("ignored")})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	got := spans[0]
	assert.Equal(t, "xatomic.run", got.Name)
	assert.Equal(t, codes.Ok, got.Status.Code)
	assert.Contains(t, got.Attributes, attribute.String("lock", "lock:jobs"))
	assert.Contains(t, got.Attributes, attribute.Int("attempts", 2))
	require.Len(t, got.Events, 1)
	assert.Equal(t, "lock.busy", got.Events[0].Name)

	metrics := collect(t, reader)
	total, ok := metrics[metricOperationTotal].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, total.DataPoints, 1)
	assert.EqualValues(t, 1, total.DataPoints[0].Value)
	status, _ := total.DataPoints[0].Attributes.Value("status")
	assert.Equal(t, "ok", status.AsString())

	events, ok := metrics[metricOperationEvents].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, events.DataPoints, 1)
	assert.EqualValues(t, 1, events.DataPoints[0].Value)

	_, ok = metrics[metricOperationDuration].Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestOTelObserver_ErrorSpan(t *testing.T) {
	obs, exporter, _ := newTestObserver(t)

	_, span := obs.Start(context.Background(), SpanOptions{})
	span.End(Result{Err: errors.New("stale")})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "unknown.unknown", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "stale", spans[0].Status.Description)
}

func TestOTelObserver_ExplicitErrorStatusWithoutErr(t *testing.T) {
	obs, exporter, _ := newTestObserver(t)

	_, span := obs.Start(context.Background(), SpanOptions{Component: "c", Operation: "o", Kind: KindClient})
	span.End(Result{Status: StatusError})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "operation failed", spans[0].Status.Description)
}

func TestToOTel_SkipsInvalid(t *testing.T) {
	kvs := toOTel([]Attr{
		{Key: "", Value: "x"},
		{Key: "nil", Value: nil},
		{Key: "i64", Value: int64(7)},
		{Key: "f", Value: 1.5},
		{Key: "other", Value: struct{ A int }{1}},
	})
	require.Len(t, kvs, 3)
	assert.Equal(t, attribute.Int64("i64", 7), kvs[0])
	assert.Equal(t, attribute.Float64("f", 1.5), kvs[1])
	assert.Equal(t, attribute.String("other", "{1}"), kvs[2])
}

func TestNewOTelObserver_Defaults(t *testing.T) {
	obs, err := NewOTelObserver(nil, WithInstrumentationName(""), WithTracerProvider(nil), WithMeterProvider(nil))
	require.NoError(t, err)
	require.NotNil(t, obs)
}
