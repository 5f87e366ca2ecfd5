package otel

import (
	"context"
	"errors"
	"sync"
	"testing"

	authsentry "github.com/MrEthical07/authsentry"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot authsentry.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authsentry.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := authsentry.MetricsSnapshot{
		Counters: make(map[authsentry.MetricID]uint64, len(f.snapshot.Counters)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("authsentry-test")

	src := &fakeSource{
		snapshot: authsentry.MetricsSnapshot{
			Counters: map[authsentry.MetricID]uint64{
				authsentry.MetricLoginSuccess: 3,
			},
		},
		dropped: 1,
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("authsentry-test")

	if _, err := NewOTelExporterFromSource(meter, nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
}

func TestExporterRejectsNilMeter(t *testing.T) {
	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestCloseIsIdempotentOnNil(t *testing.T) {
	var exp *OTelExporter
	if err := exp.Close(); err != nil {
		t.Fatalf("nil exporter Close should be a no-op: %v", err)
	}
}
