package observability_test

import (
	"context"
	"testing"

	"cart-flipper/server/internal/observability"
)

func TestSetupNoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := observability.Setup(context.Background(), observability.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupCreatesProviderWhenEndpointSet(t *testing.T) {
	// Use a non-routable address so no actual export happens.
	shutdown, err := observability.Setup(context.Background(), observability.Config{
		OTLPEndpoint: "http://192.0.2.1:4318",
		ServiceName:  "test-service",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Shutdown should flush cleanly even though the endpoint is unreachable.
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}
