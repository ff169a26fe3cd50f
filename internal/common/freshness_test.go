package common

import (
	"testing"
	"time"
)

func TestIsFresh(t *testing.T) {
	if !IsFresh(time.Now().Add(-30*time.Second), time.Minute) {
		t.Error("30s-old timestamp should be fresh within 1m")
	}
	if IsFresh(time.Now().Add(-2*time.Minute), time.Minute) {
		t.Error("2m-old timestamp should be stale within 1m")
	}
	if IsFresh(time.Time{}, time.Hour) {
		t.Error("zero timestamp is never fresh")
	}
}

func TestIsFreshAt(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	if !IsFreshAt(now, now.Add(-30*time.Second), time.Minute) {
		t.Error("expected fresh against the given clock")
	}
	if IsFreshAt(now, now.Add(-time.Minute), time.Minute) {
		t.Error("exactly-ttl-old timestamp should be stale")
	}
	if IsFreshAt(now, time.Time{}, time.Hour) {
		t.Error("zero timestamp is never fresh")
	}
}
