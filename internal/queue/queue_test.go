package queue

import (
	"context"
	"testing"
	"time"
)

func TestHoldUntil_PastDueReturnsImmediately(t *testing.T) {
	start := time.Now()
	if !holdUntil(context.Background(), start.Add(-time.Minute)) {
		t.Fatal("past due time should not block")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("holdUntil blocked for %v on a past due time", elapsed)
	}
}

func TestHoldUntil_ZeroTimeReturnsImmediately(t *testing.T) {
	if !holdUntil(context.Background(), time.Time{}) {
		t.Fatal("zero due time should not block")
	}
}

func TestHoldUntil_WaitsForFutureDue(t *testing.T) {
	delay := 30 * time.Millisecond
	start := time.Now()
	if !holdUntil(context.Background(), start.Add(delay)) {
		t.Fatal("expected wait to complete")
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Fatalf("returned after %v, before the %v due time", elapsed, delay)
	}
}

func TestHoldUntil_CancelledContextAbandonsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if holdUntil(ctx, start.Add(time.Minute)) {
		t.Fatal("cancelled context should abandon the wait")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("holdUntil ignored cancellation for %v", elapsed)
	}
}
