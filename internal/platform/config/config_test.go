package config

import (
	"testing"
	"time"
)

func TestPendingStaleAfterDefaultsToPollWindow(t *testing.T) {
	t.Setenv("JUDGE_POLL_INTERVAL_MS", "1000")
	t.Setenv("JUDGE_POLL_MAX_ATTEMPTS", "30")
	t.Setenv("STALE_SWEEP_INTERVAL_SECONDS", "30")
	t.Setenv("PENDING_STALE_AFTER_SECONDS", "")
	Load()

	want := 30*time.Second + 30*time.Second + QueueWaitAllowance
	if got := AppConfig.PendingStaleAfter; got != want {
		t.Errorf("PendingStaleAfter = %v, want %v", got, want)
	}
	if AppConfig.PendingStaleAfter >= 10*time.Minute {
		t.Errorf("PendingStaleAfter = %v, pending work would linger", AppConfig.PendingStaleAfter)
	}
}

func TestPendingStaleAfterOverride(t *testing.T) {
	t.Setenv("PENDING_STALE_AFTER_SECONDS", "45")
	Load()

	if got := AppConfig.PendingStaleAfter; got != 45*time.Second {
		t.Errorf("PendingStaleAfter = %v, want 45s", got)
	}
}
