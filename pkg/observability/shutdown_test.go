package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewShutdownManager(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{"with custom timeout", 10 * time.Second, 10 * time.Second},
		{"with zero timeout uses default", 0, 30 * time.Second},
		{"with negative timeout uses default", -time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, tt.timeout)
			if sm.shutdownTimeout != tt.expectedTimeout {
				t.Errorf("Expected timeout %v, got %v", tt.expectedTimeout, sm.shutdownTimeout)
			}
		})
	}

	if sm := NewShutdownManager(nil, nil, 0); sm.logger == nil {
		t.Error("Expected default logger")
	}
}

func TestShutdownManager_RunsHooks(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, time.Second)

	var calls int32
	for _, name := range []string{"scheduler", "database", "redis"} {
		sm.Register(name, func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 hook calls, got %d", got)
	}
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, time.Second)

	sm.Register("database", func(ctx context.Context) error { return errors.New("close failed") })
	sm.Register("redis", func(ctx context.Context) error { return nil })

	err := sm.Shutdown(context.Background())
	if err == nil {
		t.Fatal("Expected error")
	}
	if !strings.Contains(err.Error(), "database: close failed") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, time.Second)

	release := make(chan struct{})
	defer close(release)
	sm.Register("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := sm.Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestShutdownManager_StopsServer(t *testing.T) {
	server := &http.Server{Addr: "127.0.0.1:0"}
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), server, time.Second)

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("Expected ErrServerClosed after shutdown, got %v", err)
	}
}

func TestShutdownManager_WaitForShutdownOnContext(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), nil, time.Second)

	var ran atomic.Bool
	sm.Register("hook", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sm.WaitForShutdown(ctx); err != nil {
		t.Fatalf("WaitForShutdown failed: %v", err)
	}
	if !ran.Load() {
		t.Error("Expected hook to run")
	}
}
