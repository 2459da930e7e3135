package telemetry

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/bobuk/gcalbook/internal/config"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupWithEndpoint(t *testing.T) {
	// The gRPC exporter connects lazily, so no collector is needed here.
	shutdown, err := Setup(context.Background(), config.TracingConfig{
		Endpoint: "127.0.0.1:4317",
		Insecure: true,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
