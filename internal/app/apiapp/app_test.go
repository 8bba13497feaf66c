package apiapp

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Ozonelabrada/resqhub-sub003/internal/config"
)

func TestNewWiresExpirationSweeper(t *testing.T) {
	app, err := New(context.Background(), config.Default(), zap.NewNop())
	if err != nil {
		t.Fatalf("create app: %v", err)
	}

	if app.sweeper == nil {
		t.Fatalf("api app must carry the expiration sweeper")
	}

	// With a cancelled context the loop runs its initial sweep and stops.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- app.RunSweeper(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("sweeper loop returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("sweeper loop did not stop on cancelled context")
	}
}
