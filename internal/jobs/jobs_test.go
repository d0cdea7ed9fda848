package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

func setupTracker(t *testing.T) *Tracker {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewTracker(client)
}

func TestTracker_Lifecycle(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	job, err := tracker.Create(ctx, models.JobFullSync)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if job.State != models.JobStatePending || job.Progress != 0 {
		t.Fatalf("unexpected new job: %+v", job)
	}

	if err := tracker.Start(ctx, job.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := tracker.SetProgress(ctx, job.ID, 20, "syncing static data"); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}
	if err := tracker.Succeed(ctx, job.ID, map[string]any{"series": 42}); err != nil {
		t.Fatalf("Succeed failed: %v", err)
	}

	got, err := tracker.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != models.JobStateSuccess || got.Progress != 100 {
		t.Fatalf("unexpected final job: %+v", got)
	}
	if got.Result["series"] != float64(42) {
		t.Fatalf("result not persisted: %v", got.Result)
	}
	if got.FinishedAt == nil {
		t.Fatal("expected finished timestamp")
	}
}

func TestTracker_ProgressIsMonotonic(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	job, _ := tracker.Create(ctx, models.JobIncrementalSync)

	if err := tracker.SetProgress(ctx, job.ID, 60, "series"); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}
	if err := tracker.SetProgress(ctx, job.ID, 20, "late update"); err != nil {
		t.Fatalf("SetProgress failed: %v", err)
	}

	got, _ := tracker.Get(ctx, job.ID)
	if got.Progress != 60 {
		t.Fatalf("progress regressed to %d", got.Progress)
	}
	if got.Status != "late update" {
		t.Fatalf("status should still update, got %q", got.Status)
	}
}

func TestTracker_TerminalStatesAreImmutable(t *testing.T) {
	tracker := setupTracker(t)
	ctx := context.Background()

	job, _ := tracker.Create(ctx, models.JobSyncContentImages)
	if err := tracker.Fail(ctx, job.ID, "upstream down"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	if err := tracker.SetProgress(ctx, job.ID, 50, "zombie update"); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if err := tracker.Succeed(ctx, job.ID, nil); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}

	got, _ := tracker.Get(ctx, job.ID)
	if got.State != models.JobStateFailure || got.Error != "upstream down" {
		t.Fatalf("terminal job mutated: %+v", got)
	}
}

func TestTracker_GetUnknownJob(t *testing.T) {
	tracker := setupTracker(t)

	if _, err := tracker.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
