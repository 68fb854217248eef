package models

import (
	"time"

	"github.com/google/uuid"
)

// MergeJob represents the structure of a pairwise video merge job in the
// database. TotalFrames is computed once at submission from probed frame
// counts; TotalFramesDone is a monotonic counter advanced by workers.
type MergeJob struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Status          string     `json:"status"`
	Progress        int        `json:"progress"` // 0-100, derived, never decreases
	PercentDone     int        `json:"percent_done"`
	TotalFrames     int64      `json:"total_frames"`
	TotalFramesDone int64      `json:"total_frames_done"`
	FailureReason   *string    `json:"failure_reason,omitempty"` // Nullable TEXT
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"` // Nullable TIMESTAMPTZ
}

// UploadedVideo is one user-supplied input of a MergeJob. Kind distinguishes
// the short clips from the single large reference video.
type UploadedVideo struct {
	ID          uuid.UUID `json:"id"`
	MergeJobID  uuid.UUID `json:"merge_job_id"`
	Kind        string    `json:"kind"` // "short" or "large"
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Uploaded video kinds.
const (
	VideoKindShort = "short"
	VideoKindLarge = "large"
)

// MergedSegment represents one concatenated output belonging to a MergeJob,
// one per (short, large) pair.
type MergedSegment struct {
	ID          uuid.UUID `json:"id"`
	MergeJobID  uuid.UUID `json:"merge_job_id"`
	FileName    string    `json:"file_name"`
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
}
