package otel

import (
	"context"
	"sync"
	"testing"

	challengeAuth "github.com/MrEthical07/challengeAuth"
	"github.com/MrEthical07/challengeAuth/identity/memstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu      sync.RWMutex
	counts  map[string]uint64
	dropped uint64
}

func (f *fakeSource) EventCounts() map[string]uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]uint64, len(f.counts))
	for k, v := range f.counts {
		out[k] = v
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("challengeauth-test")

	src := &fakeSource{
		counts:  map[string]uint64{"login_success": 3, "login_failure": 1},
		dropped: 2,
	}
	exp, err := NewExporter(meter, src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	data := collect(t, reader)
	events, ok := data["challengeauth.events"].(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected int64 sum for events, got %T", data["challengeauth.events"])
	}
	got := map[string]int64{}
	for _, dp := range events.DataPoints {
		name, _ := dp.Attributes.Value("event")
		got[name.AsString()] = dp.Value
	}
	if got["login_success"] != 3 || got["login_failure"] != 1 {
		t.Fatalf("unexpected event points: %v", got)
	}

	dropped, ok := data["challengeauth.audit.dropped"].(metricdata.Sum[int64])
	if !ok || len(dropped.DataPoints) != 1 || dropped.DataPoints[0].Value != 2 {
		t.Fatalf("unexpected audit dropped data: %+v", data["challengeauth.audit.dropped"])
	}
}

func TestExporterRejectsNilInputs(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("challengeauth-test")

	if _, err := NewExporter(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
	if _, err := NewExporter(nil, &fakeSource{}); err == nil {
		t.Fatal("expected error for nil meter")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("challengeauth-test")

	src := &fakeSource{counts: map[string]uint64{"login_success": 1}}
	exp, err := NewExporter(meter, src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.counts["login_success"] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}

func TestExporterReadsEngineCounts(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := challengeAuth.DefaultConfig()
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	engine, err := challengeAuth.New().WithConfig(cfg).WithRedis(rdb).WithStore(memstore.New()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, err := engine.InitLogin(context.Background(), "nobody"); err != nil {
		t.Fatalf("InitLogin failed: %v", err)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exp, err := NewExporter(provider.Meter("challengeauth-test"), engine)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() { _ = exp.Close() }()

	events := collect(t, reader)["challengeauth.events"].(metricdata.Sum[int64])
	got := map[string]int64{}
	for _, dp := range events.DataPoints {
		name, _ := dp.Attributes.Value("event")
		got[name.AsString()] = dp.Value
	}
	if got[challengeAuth.EventLoginDecoy] != 1 || got[challengeAuth.EventLoginInit] != 1 {
		t.Fatalf("unexpected counts: %v", got)
	}
	if len(got) != len(challengeAuth.EventNames) {
		t.Fatalf("expected every event reported, got %d", len(got))
	}
}
