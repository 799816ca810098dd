package worker

import (
	"context"
	"testing"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_ZeroRateIsUnlimited(t *testing.T) {
	limiter := NewLimiter(0, 1)

	for i := 0; i < 10; i++ {
		if !limiter.Allow("/data/sub-V1001_task-visual_events.tsv") {
			t.Fatalf("expected unlimited loads, denied at %d", i)
		}
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "/data/a/sub-V1001_task-visual_events.tsv"); err != nil {
		t.Errorf("wait failed: %v", err)
	}

	// Different root should also work
	if err := limiter.Wait(ctx, "/data/b/sub-V1002_task-visual_events.tsv"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_SharedRoot(t *testing.T) {
	// 1 load per second, burst 1
	limiter := NewLimiter(1, 1)

	if !limiter.Allow("/data/a/sub-V1001_task-visual_events.tsv") {
		t.Fatal("first load should pass")
	}

	// Same directory shares the bucket
	if limiter.Allow("/data/a/sub-V1002_task-visual_events.tsv") {
		t.Error("expected second load from the same root to be paced")
	}

	// Other directory has its own bucket
	if !limiter.Allow("/data/b/sub-V1003_task-visual_events.tsv") {
		t.Error("expected load from another root to pass")
	}
}

func TestLimiter_SetRootRate(t *testing.T) {
	limiter := NewLimiter(10, 10)
	limiter.SetRootRate("/slow/", 0.1, 1)

	if !limiter.Allow("/slow/a.tsv") {
		t.Error("first load should pass")
	}
	if limiter.Allow("/slow/b.tsv") {
		t.Error("second load should be paced")
	}
	if !limiter.Allow("/fast/a.tsv") {
		t.Error("other root should pass")
	}
}

func TestLimiter_WaitCancelled(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	_ = limiter.Allow("/data/a.tsv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx, "/data/b.tsv"); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestDataRoot(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/a/file.tsv", "/data/a"},
		{"/data/a/../b/file.tsv", "/data/b"},
		{"file.tsv", "."},
	}

	for _, tt := range tests {
		if got := dataRoot(tt.path); got != tt.want {
			t.Errorf("dataRoot(%q) = %q, expected %q", tt.path, got, tt.want)
		}
	}
}
