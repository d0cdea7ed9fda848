package models

import "time"

// SyncJob tracks the state of a background synchronization job. Records are
// created when a job is enqueued and mutated only by the executing worker;
// once terminal they are immutable.
type SyncJob struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	State      string         `json:"state"`
	Progress   int            `json:"progress"` // 0-100, monotonically non-decreasing
	Status     string         `json:"status"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Job states
const (
	JobStatePending  = "PENDING"
	JobStateProgress = "PROGRESS"
	JobStateSuccess  = "SUCCESS"
	JobStateFailure  = "FAILURE"
)

// IsTerminal reports whether the job has reached a final state
func (j *SyncJob) IsTerminal() bool {
	return j.State == JobStateSuccess || j.State == JobStateFailure
}

// Sync job types
const (
	JobFullSync             = "full_sync"
	JobIncrementalSync      = "incremental_sync"
	JobSyncStaticData       = "sync_static_data"
	JobSyncSeriesDetailed   = "sync_series_detailed"
	JobSyncContentImages    = "sync_content_images"
	JobSyncAllMissingImages = "sync_all_missing_images"
	JobCleanupOrphans       = "cleanup_orphaned_images"
	JobCleanupExpiredCache  = "cleanup_expired_cache"
	JobPrefetchPopular      = "prefetch_popular_content"
)

// SyncMessage is the wire payload published to the job queue
type SyncMessage struct {
	JobID      string    `json:"job_id"`
	Type       string    `json:"type"`
	EntityType string    `json:"entity_type,omitempty"`
	EntityID   int64     `json:"entity_id,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
