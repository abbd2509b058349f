package observability

import (
	"context"
	"testing"

	"github.com/taskflowio/ltq/internal/config"
)

func TestSetupTracing_Disabled(t *testing.T) {
	cfg := config.Config{OTLPEndpoint: ""}
	shutdown, err := SetupTracing(cfg)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if shutdown != nil {
		t.Fatalf("expected nil shutdown when tracing disabled")
	}
}

func TestSetupTracing_WithEndpoint(t *testing.T) {
	cfg := config.Config{OTLPEndpoint: "localhost:4317"}

	// otlptracegrpc.New dials lazily, so this should succeed even with no
	// collector listening; only an actual export attempt would fail.
	shutdown, err := SetupTracing(cfg)
	if err != nil {
		t.Fatalf("unexpected err configuring exporter: %v", err)
	}
	if shutdown == nil {
		t.Fatal("expected non-nil shutdown function when endpoint set")
	}
	_ = shutdown(context.Background())
}
