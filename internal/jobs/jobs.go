package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/tvdbproxy/pkg/models"
)

// ErrNotFound indicates no job exists under the given id
var ErrNotFound = errors.New("job not found")

// ErrTerminal indicates an update was attempted on a finished job
var ErrTerminal = errors.New("job already finished")

// retention keeps finished job records queryable for a day
const retention = 24 * time.Hour

const keyPrefix = "tvdb:jobs:"

// Tracker persists sync job state in Redis. State moves
// PENDING -> PROGRESS -> SUCCESS | FAILURE, progress only increases, and
// terminal states are immutable.
type Tracker struct {
	client *redis.Client
}

// NewTracker creates a job tracker over an existing Redis client
func NewTracker(client *redis.Client) *Tracker {
	return &Tracker{client: client}
}

func jobKey(id string) string {
	return keyPrefix + id
}

// Create registers a new pending job and returns it
func (t *Tracker) Create(ctx context.Context, jobType string) (*models.SyncJob, error) {
	now := time.Now().UTC()
	job := &models.SyncJob{
		ID:        uuid.New().String(),
		Type:      jobType,
		State:     models.JobStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := t.save(ctx, job); err != nil {
		return nil, err
	}

	return job, nil
}

// Get retrieves a job by id
func (t *Tracker) Get(ctx context.Context, id string) (*models.SyncJob, error) {
	data, err := t.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	var job models.SyncJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}

	return &job, nil
}

// Start moves a job into the PROGRESS state
func (t *Tracker) Start(ctx context.Context, id string) error {
	return t.update(ctx, id, func(job *models.SyncJob) error {
		job.State = models.JobStateProgress
		now := time.Now().UTC()
		job.StartedAt = &now
		return nil
	})
}

// SetProgress advances job progress. Progress never moves backwards; a
// lower value than the current one is ignored.
func (t *Tracker) SetProgress(ctx context.Context, id string, progress int, status string) error {
	return t.update(ctx, id, func(job *models.SyncJob) error {
		job.State = models.JobStateProgress
		if progress > job.Progress {
			job.Progress = progress
		}
		if status != "" {
			job.Status = status
		}
		return nil
	})
}

// Succeed finishes a job with its result payload
func (t *Tracker) Succeed(ctx context.Context, id string, result map[string]interface{}) error {
	return t.update(ctx, id, func(job *models.SyncJob) error {
		job.State = models.JobStateSuccess
		job.Progress = 100
		job.Result = result
		now := time.Now().UTC()
		job.FinishedAt = &now
		return nil
	})
}

// Fail finishes a job with an error message
func (t *Tracker) Fail(ctx context.Context, id string, errMsg string) error {
	return t.update(ctx, id, func(job *models.SyncJob) error {
		job.State = models.JobStateFailure
		job.Error = errMsg
		now := time.Now().UTC()
		job.FinishedAt = &now
		return nil
	})
}

func (t *Tracker) update(ctx context.Context, id string, mutate func(*models.SyncJob) error) error {
	job, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return ErrTerminal
	}

	if err := mutate(job); err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()

	return t.save(ctx, job)
}

func (t *Tracker) save(ctx context.Context, job *models.SyncJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	if err := t.client.Set(ctx, jobKey(job.ID), data, retention).Err(); err != nil {
		return fmt.Errorf("failed to store job %s: %w", job.ID, err)
	}

	return nil
}
