package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func TestSnapshotReadsGlobalCounters(t *testing.T) {
	ctx := context.Background()
	tel, err := Init(ctx, Config{})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer tel.Shutdown(ctx)

	meter := otel.Meter("strikewatch/test")
	runs, _ := meter.Int64Counter("runs_total")
	fetches, _ := meter.Int64Counter("fetches_total")

	runs.Add(ctx, 2)
	fetches.Add(ctx, 1, metric.WithAttributes(attribute.String("host", "b.example")))
	fetches.Add(ctx, 3, metric.WithAttributes(attribute.String("host", "a.example")))

	got, err := tel.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	want := []Counter{
		{Name: "fetches_total", Attributes: map[string]string{"host": "a.example"}, Value: 3},
		{Name: "fetches_total", Attributes: map[string]string{"host": "b.example"}, Value: 1},
		{Name: "runs_total", Value: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d counters, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Name != want[i].Name || got[i].Value != want[i].Value || got[i].Attributes["host"] != want[i].Attributes["host"] {
			t.Errorf("counter %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSnapshotEmpty(t *testing.T) {
	ctx := context.Background()
	tel, err := Init(ctx, Config{ServiceName: "strikewatch-test"})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer tel.Shutdown(ctx)

	got, err := tel.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no counters, got %+v", got)
	}
}
